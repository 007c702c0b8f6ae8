package escrow

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Leg identifies which side of a cross-chain swap an escrow secures.
type Leg uint8

const (
	// LegSource holds the maker's asset on the chain the order originated on.
	LegSource Leg = iota
	// LegDestination holds the resolver's matching asset on the counter-chain.
	LegDestination
)

// Valid reports whether the leg value is within the supported range.
func (l Leg) Valid() bool { return l == LegSource || l == LegDestination }

func (l Leg) String() string {
	if l == LegDestination {
		return "destination"
	}
	return "source"
}

// State enumerates the escrow lifecycle. Withdrawn and Cancelled are
// terminal. Expired is never persisted: it is derived by Status when a
// funded escrow outlives its public-cancellation deadline without a call.
type State uint8

const (
	StateCreated State = iota
	StateFunded
	StateWithdrawn
	StateCancelled
	StateExpired
)

// Valid reports whether the state is a persistable value.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateFunded, StateWithdrawn, StateCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool { return s == StateWithdrawn || s == StateCancelled }

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateFunded:
		return "funded"
	case StateWithdrawn:
		return "withdrawn"
	case StateCancelled:
		return "cancelled"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Timelocks holds the absolute deadlines gating one escrow leg. All values
// are unix seconds derived from a shared deployment reference time.
type Timelocks struct {
	DeployedAt              int64
	WithdrawalStart         int64
	PublicWithdrawalStart   int64
	CancellationStart       int64
	PublicCancellationStart int64
}

// Immutables is the full definition of one escrow leg. Every field
// participates in the deterministic identifier, so a counterparty can compute
// the expected escrow identity before it is funded and verify it
// independently.
type Immutables struct {
	OrderHash     [32]byte
	Hashlock      [32]byte
	Maker         [20]byte
	Taker         [20]byte
	Token         string
	Amount        *big.Int
	SafetyDeposit *big.Int
	Leg           Leg
	Timelocks     Timelocks
}

// Clone returns a deep copy of the immutables.
func (im *Immutables) Clone() *Immutables {
	if im == nil {
		return nil
	}
	clone := *im
	if im.Amount != nil {
		clone.Amount = new(big.Int).Set(im.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if im.SafetyDeposit != nil {
		clone.SafetyDeposit = new(big.Int).Set(im.SafetyDeposit)
	} else {
		clone.SafetyDeposit = big.NewInt(0)
	}
	return &clone
}

// ID returns the deterministic escrow identifier: the keccak256 hash of the
// canonical immutables encoding. The same inputs always address the same
// logical escrow.
func (im *Immutables) ID() [32]byte {
	var buf []byte
	var scratch [8]byte
	buf = append(buf, im.OrderHash[:]...)
	buf = append(buf, im.Hashlock[:]...)
	buf = append(buf, im.Maker[:]...)
	buf = append(buf, im.Taker[:]...)
	buf = appendString(buf, im.Token)
	buf = appendBig(buf, im.Amount)
	buf = appendBig(buf, im.SafetyDeposit)
	buf = append(buf, byte(im.Leg))
	for _, deadline := range []int64{
		im.Timelocks.DeployedAt,
		im.Timelocks.WithdrawalStart,
		im.Timelocks.PublicWithdrawalStart,
		im.Timelocks.CancellationStart,
		im.Timelocks.PublicCancellationStart,
	} {
		binary.BigEndian.PutUint64(scratch[:], uint64(deadline))
		buf = append(buf, scratch[:]...)
	}
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

// Equal reports whether two immutable definitions are identical.
func (im *Immutables) Equal(other *Immutables) bool {
	if im == nil || other == nil {
		return im == other
	}
	return im.ID() == other.ID()
}

// Escrow is one stored escrow instance: its immutable definition, the
// depositor that funds it, and the mutable state.
type Escrow struct {
	ID         [32]byte
	Immutables Immutables
	Depositor  [20]byte
	State      State
	CreatedAt  int64
	UpdatedAt  int64
}

// Clone returns a deep copy of the escrow so callers can safely mutate the
// copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Immutables = *e.Immutables.Clone()
	return &clone
}

// NormalizeToken canonicalises the opaque token handle.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("escrow: empty token handle")
	}
	return trimmed, nil
}

// SanitizeImmutables validates and normalises an escrow definition, returning
// a cloned instance with canonical token casing and non-nil amounts.
func SanitizeImmutables(im *Immutables) (*Immutables, error) {
	if im == nil {
		return nil, fmt.Errorf("nil immutables")
	}
	clone := im.Clone()
	token, err := NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = token
	if clone.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if clone.SafetyDeposit.Sign() < 0 {
		return nil, fmt.Errorf("escrow: negative safety deposit")
	}
	if !clone.Leg.Valid() {
		return nil, fmt.Errorf("escrow: invalid leg: %d", clone.Leg)
	}
	if clone.Hashlock == ([32]byte{}) {
		return nil, fmt.Errorf("escrow: hashlock required")
	}
	if clone.Maker == ([20]byte{}) || clone.Taker == ([20]byte{}) {
		return nil, fmt.Errorf("escrow: maker and taker required")
	}
	tl := clone.Timelocks
	if tl.WithdrawalStart > tl.CancellationStart {
		return nil, fmt.Errorf("escrow: withdrawal window must precede cancellation")
	}
	return clone, nil
}

// Hashlock derives the commitment an escrow is locked under. Preimage
// commitments use SHA-256 so the same hashlock verifies on chains without a
// keccak primitive.
func Hashlock(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// VerifySecret reports whether the secret opens the hashlock.
func VerifySecret(secret []byte, hashlock [32]byte) bool {
	return Hashlock(secret) == hashlock
}
