package order

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MakerTraits is a bit-packed field carrying the maker's fill preferences and
// the nonce used for slot-based invalidation. The low byte holds boolean
// flags; bits 16..55 hold a 40-bit nonce-or-epoch value.
type MakerTraits uint64

const (
	// TraitAllowPartialFills permits fills smaller than the full remaining amount.
	TraitAllowPartialFills MakerTraits = 1 << 0
	// TraitAllowMultipleFills permits more than one fill against the order.
	TraitAllowMultipleFills MakerTraits = 1 << 1
	// TraitHasExtension marks that the order carries extension bytes (a
	// committed secret-tree root for progressive partial fills).
	TraitHasExtension MakerTraits = 1 << 2
	// TraitHasPreInteraction marks a maker pre-interaction hook.
	TraitHasPreInteraction MakerTraits = 1 << 3
	// TraitHasPostInteraction marks a maker post-interaction hook.
	TraitHasPostInteraction MakerTraits = 1 << 4

	traitNonceShift = 16
	traitNonceBits  = 40
	traitNonceMask  = MakerTraits((1<<traitNonceBits)-1) << traitNonceShift
)

func (t MakerTraits) AllowPartialFills() bool  { return t&TraitAllowPartialFills != 0 }
func (t MakerTraits) AllowMultipleFills() bool { return t&TraitAllowMultipleFills != 0 }
func (t MakerTraits) HasExtension() bool       { return t&TraitHasExtension != 0 }
func (t MakerTraits) HasPreInteraction() bool  { return t&TraitHasPreInteraction != 0 }
func (t MakerTraits) HasPostInteraction() bool { return t&TraitHasPostInteraction != 0 }

// UseBitInvalidator reports whether the order is tracked by the per-signer
// bitmap rather than the remaining-amount ledger. Orders that cannot be
// partially or repeatedly filled are consumed as a unit, so a single bit
// suffices.
func (t MakerTraits) UseBitInvalidator() bool {
	return !t.AllowPartialFills() || !t.AllowMultipleFills()
}

// Nonce returns the 40-bit nonce-or-epoch value embedded in the traits.
func (t MakerTraits) Nonce() uint64 {
	return uint64((t & traitNonceMask) >> traitNonceShift)
}

// WithNonce returns a copy of the traits with the nonce field replaced.
func (t MakerTraits) WithNonce(nonce uint64) MakerTraits {
	cleared := t &^ traitNonceMask
	return cleared | (MakerTraits(nonce)<<traitNonceShift)&traitNonceMask
}

// Slot returns the bitmap word index for the embedded nonce, and Bit the
// position inside that word.
func (t MakerTraits) Slot() uint64 { return t.Nonce() / 256 }
func (t MakerTraits) Bit() uint    { return uint(t.Nonce() % 256) }

// Order is a signed commitment by a maker to exchange MakingAmount of
// MakerAsset for TakingAmount of TakerAsset. Orders are immutable once
// hashed; all mutable bookkeeping lives in the invalidator.
type Order struct {
	Salt         uint64
	Maker        [20]byte
	Receiver     [20]byte
	MakerAsset   string
	TakerAsset   string
	MakingAmount *big.Int
	TakingAmount *big.Int
	Expiration   int64
	AllowedTaker [20]byte
	Traits       MakerTraits
	Extension    []byte
	CreatedAt    int64
	// CancelledAt records when the maker cancelled the order; zero means it
	// was never cancelled. The field is bookkeeping and excluded from Hash.
	CancelledAt int64
}

// Clone returns a deep copy of the order so callers can safely mutate the
// copy without affecting the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.MakingAmount != nil {
		clone.MakingAmount = new(big.Int).Set(o.MakingAmount)
	} else {
		clone.MakingAmount = big.NewInt(0)
	}
	if o.TakingAmount != nil {
		clone.TakingAmount = new(big.Int).Set(o.TakingAmount)
	} else {
		clone.TakingAmount = big.NewInt(0)
	}
	clone.Extension = append([]byte(nil), o.Extension...)
	return &clone
}

// PayoutReceiver resolves the payout identity, defaulting to the maker when
// no explicit receiver was set.
func (o *Order) PayoutReceiver() [20]byte {
	if o.Receiver != ([20]byte{}) {
		return o.Receiver
	}
	return o.Maker
}

// IsPrivate reports whether the order restricts which taker may fill it.
func (o *Order) IsPrivate() bool { return o.AllowedTaker != ([20]byte{}) }

// NormalizeAsset canonicalises an opaque asset handle. Handles are treated as
// case-insensitive symbols; the engine imposes no further interpretation.
func NormalizeAsset(handle string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(handle))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty asset handle", ErrInvalidAssetPair)
	}
	return trimmed, nil
}

// SanitizeOrder validates and normalises the supplied order, returning a
// cloned instance with canonical asset casing and non-nil amounts. The
// function does not mutate the original value.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("nil order")
	}
	clone := o.Clone()
	makerAsset, err := NormalizeAsset(clone.MakerAsset)
	if err != nil {
		return nil, err
	}
	takerAsset, err := NormalizeAsset(clone.TakerAsset)
	if err != nil {
		return nil, err
	}
	if makerAsset == takerAsset {
		return nil, ErrInvalidAssetPair
	}
	clone.MakerAsset = makerAsset
	clone.TakerAsset = takerAsset
	if clone.MakingAmount.Sign() <= 0 || clone.TakingAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if clone.Maker == ([20]byte{}) {
		return nil, fmt.Errorf("order: maker required")
	}
	if clone.Traits.HasExtension() != (len(clone.Extension) > 0) {
		return nil, ErrExtensionMismatch
	}
	return clone, nil
}

// Hash returns the canonical keccak256 identifier of the order. Every field
// that affects settlement is folded in, so two orders differing in any field
// address distinct invalidator and escrow state.
func (o *Order) Hash() [32]byte {
	var buf []byte
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], o.Salt)
	buf = append(buf, scratch[:]...)
	buf = append(buf, o.Maker[:]...)
	buf = append(buf, o.Receiver[:]...)
	buf = appendString(buf, o.MakerAsset)
	buf = appendString(buf, o.TakerAsset)
	buf = appendBig(buf, o.MakingAmount)
	buf = appendBig(buf, o.TakingAmount)
	binary.BigEndian.PutUint64(scratch[:], uint64(o.Expiration))
	buf = append(buf, scratch[:]...)
	buf = append(buf, o.AllowedTaker[:]...)
	binary.BigEndian.PutUint64(scratch[:], uint64(o.Traits))
	buf = append(buf, scratch[:]...)
	buf = append(buf, ethcrypto.Keccak256(o.Extension)...)
	return ethcrypto.Keccak256Hash(buf)
}

func appendString(buf []byte, s string) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(s)))
	buf = append(buf, l[:]...)
	return append(buf, s...)
}

func appendBig(buf []byte, v *big.Int) []byte {
	b := []byte{}
	if v != nil {
		b = v.Bytes()
	}
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf = append(buf, l[:]...)
	return append(buf, b...)
}

// ExtensionData is the decoded form of an order's extension bytes: the number
// of equal tranches and the Merkle root committing to the tranche secrets.
type ExtensionData struct {
	Parts uint32
	Root  [32]byte
}

const extensionSize = 4 + 32

// EncodeExtension serialises the tranche count and secret-tree root into the
// order's extension bytes.
func EncodeExtension(data ExtensionData) []byte {
	buf := make([]byte, extensionSize)
	binary.BigEndian.PutUint32(buf[:4], data.Parts)
	copy(buf[4:], data.Root[:])
	return buf
}

// ParseExtension decodes extension bytes produced by EncodeExtension.
func ParseExtension(b []byte) (ExtensionData, error) {
	if len(b) != extensionSize {
		return ExtensionData{}, fmt.Errorf("%w: extension must be %d bytes, got %d", ErrExtensionMismatch, extensionSize, len(b))
	}
	data := ExtensionData{Parts: binary.BigEndian.Uint32(b[:4])}
	copy(data.Root[:], b[4:])
	if data.Parts == 0 {
		return ExtensionData{}, fmt.Errorf("%w: zero tranche count", ErrExtensionMismatch)
	}
	return data, nil
}
