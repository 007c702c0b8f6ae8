package order

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var errInvalidatorNilState = errors.New("order invalidator: state not configured")

// InvalidatorState exposes the per-signer storage required by the
// invalidator. Bitmap words are keyed by (signer, slot); remaining amounts by
// (signer, order hash). One signer's namespace is never visible to another.
type InvalidatorState interface {
	BitInvalidatorGet(signer [20]byte, slot uint64) (*uint256.Int, bool, error)
	BitInvalidatorPut(signer [20]byte, slot uint64, word *uint256.Int) error
	RemainingGet(signer [20]byte, orderHash [32]byte) (*big.Int, bool, error)
	RemainingPut(signer [20]byte, orderHash [32]byte, remaining *big.Int) error
}

// Invalidator tracks which of a signer's orders are still fillable. Orders
// consumed as a unit occupy a single bit in a 256-bit word addressed by the
// nonce embedded in the maker traits; partially fillable orders carry a
// remaining-amount counter keyed by order hash. Bits are monotonic: once set
// they are never cleared.
type Invalidator struct {
	state InvalidatorState
}

// NewInvalidator constructs an invalidator over the supplied state backend.
func NewInvalidator(state InvalidatorState) *Invalidator {
	return &Invalidator{state: state}
}

// BitsFor returns the stored 256-bit word for (signer, slot). A missing slot
// reads as the zero word.
func (inv *Invalidator) BitsFor(signer [20]byte, slot uint64) (*uint256.Int, error) {
	if inv == nil || inv.state == nil {
		return nil, errInvalidatorNilState
	}
	word, ok, err := inv.state.BitInvalidatorGet(signer, slot)
	if err != nil {
		return nil, err
	}
	if !ok || word == nil {
		return uint256.NewInt(0), nil
	}
	return word.Clone(), nil
}

// IsBitSet reports whether the given bit of the signer's slot word is set.
func (inv *Invalidator) IsBitSet(signer [20]byte, slot uint64, bit uint) (bool, error) {
	word, err := inv.BitsFor(signer, slot)
	if err != nil {
		return false, err
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), bit)
	return !new(uint256.Int).And(word, mask).IsZero(), nil
}

// InvalidateBits ORs the mask into the signer's slot word. It returns
// ErrAlreadyInvalidated when the mask has no effect, which callers treat as
// an idempotency signal rather than a hard failure.
func (inv *Invalidator) InvalidateBits(signer [20]byte, slot uint64, mask *uint256.Int) error {
	if inv == nil || inv.state == nil {
		return errInvalidatorNilState
	}
	if mask == nil || mask.IsZero() {
		return fmt.Errorf("order invalidator: empty mask")
	}
	word, err := inv.BitsFor(signer, slot)
	if err != nil {
		return err
	}
	updated := new(uint256.Int).Or(word, mask)
	if updated.Eq(word) {
		return ErrAlreadyInvalidated
	}
	return inv.state.BitInvalidatorPut(signer, slot, updated)
}

// RemainingFor returns the remaining making amount for the order. Before the
// first fill no entry exists and the full makingAmount is reported; the entry
// is materialised lazily by Consume.
func (inv *Invalidator) RemainingFor(signer [20]byte, orderHash [32]byte, makingAmount *big.Int) (*big.Int, error) {
	if inv == nil || inv.state == nil {
		return nil, errInvalidatorNilState
	}
	remaining, ok, err := inv.state.RemainingGet(signer, orderHash)
	if err != nil {
		return nil, err
	}
	if !ok || remaining == nil {
		if makingAmount == nil {
			return big.NewInt(0), nil
		}
		return new(big.Int).Set(makingAmount), nil
	}
	return new(big.Int).Set(remaining), nil
}

// Consume decrements the order's remaining amount by the fill amount,
// initialising the ledger entry to makingAmount on first use. It fails with
// ErrInsufficientRemaining when the amount exceeds what is left, leaving the
// stored value untouched.
func (inv *Invalidator) Consume(signer [20]byte, orderHash [32]byte, makingAmount, amount *big.Int) (*big.Int, error) {
	if inv == nil || inv.state == nil {
		return nil, errInvalidatorNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	remaining, err := inv.RemainingFor(signer, orderHash, makingAmount)
	if err != nil {
		return nil, err
	}
	if remaining.Sign() == 0 {
		return nil, ErrOrderAlreadyFilled
	}
	if amount.Cmp(remaining) > 0 {
		return nil, ErrInsufficientRemaining
	}
	updated := new(big.Int).Sub(remaining, amount)
	if err := inv.state.RemainingPut(signer, orderHash, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Zero forces the order's remaining amount to zero, used for cancellation of
// remaining-tracked orders. Zeroing an already-zero entry is a no-op.
func (inv *Invalidator) Zero(signer [20]byte, orderHash [32]byte) error {
	if inv == nil || inv.state == nil {
		return errInvalidatorNilState
	}
	return inv.state.RemainingPut(signer, orderHash, big.NewInt(0))
}

// MaskForBit returns the single-bit mask for the given bit position.
func MaskForBit(bit uint) *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), bit)
}
