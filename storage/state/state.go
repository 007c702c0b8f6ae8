// Package state persists engine state in a key-value database. Records are
// stored as JSON under typed key prefixes so a single backend can hold
// orders, invalidator words, escrows, and balances side by side.
package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"crosslock/native/escrow"
	"crosslock/native/order"
	"crosslock/storage"
)

const (
	orderPrefix   = "order/"
	bitPrefix     = "inv/bit/"
	remPrefix     = "inv/rem/"
	escrowPrefix  = "escrow/"
	balancePrefix = "balance/"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the
	// sender's balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
)

// State adapts a storage.Database to the interfaces the order book and
// escrow registry engines expect, and doubles as the asset ledger escrows
// settle through. All writes go straight to the backing database; there is
// no in-memory cache to invalidate.
type State struct {
	mu sync.Mutex
	db storage.Database
}

// NewState wraps the given database.
func NewState(db storage.Database) *State {
	return &State{db: db}
}

func orderKey(hash [32]byte) []byte {
	return []byte(orderPrefix + hex.EncodeToString(hash[:]))
}

func bitKey(signer [20]byte, slot uint64) []byte {
	return []byte(bitPrefix + hex.EncodeToString(signer[:]) + "/" + strconv.FormatUint(slot, 10))
}

func remKey(signer [20]byte, hash [32]byte) []byte {
	return []byte(remPrefix + hex.EncodeToString(signer[:]) + "/" + hex.EncodeToString(hash[:]))
}

func escrowKey(id [32]byte) []byte {
	return []byte(escrowPrefix + hex.EncodeToString(id[:]))
}

func balanceKey(owner [20]byte, token string) []byte {
	return []byte(balancePrefix + hex.EncodeToString(owner[:]) + "/" + token)
}

// --- order book state ---

// OrderPut stores an order keyed by its canonical hash.
func (s *State) OrderPut(o *order.Order) error {
	if o == nil {
		return errors.New("state: nil order")
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("state: encode order: %w", err)
	}
	hash := o.Hash()
	return s.db.Put(orderKey(hash), raw)
}

// OrderGet loads an order by hash.
func (s *State) OrderGet(hash [32]byte) (*order.Order, bool, error) {
	raw, err := s.db.Get(orderKey(hash))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var o order.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, false, fmt.Errorf("state: decode order: %w", err)
	}
	return &o, true, nil
}

// OrderList returns every stored order, sorted by key.
func (s *State) OrderList() ([]*order.Order, error) {
	var out []*order.Order
	err := s.db.Iterate([]byte(orderPrefix), func(_, value []byte) error {
		var o order.Order
		if err := json.Unmarshal(value, &o); err != nil {
			return fmt.Errorf("state: decode order: %w", err)
		}
		out = append(out, &o)
		return nil
	})
	return out, err
}

// BitInvalidatorGet loads the 256-bit invalidator word for a signer slot.
func (s *State) BitInvalidatorGet(signer [20]byte, slot uint64) (*uint256.Int, bool, error) {
	raw, err := s.db.Get(bitKey(signer, slot))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(raw) > 32 {
		return nil, false, fmt.Errorf("state: invalidator word too long: %d bytes", len(raw))
	}
	return new(uint256.Int).SetBytes(raw), true, nil
}

// BitInvalidatorPut stores the 256-bit invalidator word for a signer slot.
func (s *State) BitInvalidatorPut(signer [20]byte, slot uint64, word *uint256.Int) error {
	if word == nil {
		word = uint256.NewInt(0)
	}
	return s.db.Put(bitKey(signer, slot), word.Bytes())
}

// RemainingGet loads the remaining making amount for a partial-fill order.
func (s *State) RemainingGet(signer [20]byte, hash [32]byte) (*big.Int, bool, error) {
	raw, err := s.db.Get(remKey(signer, hash))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return new(big.Int).SetBytes(raw), true, nil
}

// RemainingPut stores the remaining making amount for a partial-fill order.
func (s *State) RemainingPut(signer [20]byte, hash [32]byte, remaining *big.Int) error {
	if remaining == nil || remaining.Sign() < 0 {
		return errors.New("state: invalid remaining amount")
	}
	return s.db.Put(remKey(signer, hash), remaining.Bytes())
}

// --- escrow registry state ---

// EscrowPut stores an escrow keyed by its identifier.
func (s *State) EscrowPut(esc *escrow.Escrow) error {
	if esc == nil {
		return errors.New("state: nil escrow")
	}
	raw, err := json.Marshal(esc)
	if err != nil {
		return fmt.Errorf("state: encode escrow: %w", err)
	}
	return s.db.Put(escrowKey(esc.ID), raw)
}

// EscrowGet loads an escrow by identifier.
func (s *State) EscrowGet(id [32]byte) (*escrow.Escrow, bool, error) {
	raw, err := s.db.Get(escrowKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var esc escrow.Escrow
	if err := json.Unmarshal(raw, &esc); err != nil {
		return nil, false, fmt.Errorf("state: decode escrow: %w", err)
	}
	return &esc, true, nil
}

// EscrowList returns every stored escrow, sorted by key.
func (s *State) EscrowList() ([]*escrow.Escrow, error) {
	var out []*escrow.Escrow
	err := s.db.Iterate([]byte(escrowPrefix), func(_, value []byte) error {
		var esc escrow.Escrow
		if err := json.Unmarshal(value, &esc); err != nil {
			return fmt.Errorf("state: decode escrow: %w", err)
		}
		out = append(out, &esc)
		return nil
	})
	return out, err
}

// EscrowVaultAddress derives the custody address for a token. The address
// is a pure function of the token symbol so every node resolves the same
// vault without coordination.
func (s *State) EscrowVaultAddress(token string) ([20]byte, error) {
	var addr [20]byte
	if token == "" {
		return addr, errors.New("state: empty token")
	}
	digest := ethcrypto.Keccak256([]byte("crosslock/vault/" + token))
	copy(addr[:], digest[12:])
	return addr, nil
}

// --- asset ledger ---

// BalanceOf returns the stored balance for an owner and token. Missing
// entries read as zero.
func (s *State) BalanceOf(owner [20]byte, token string) (*big.Int, error) {
	raw, err := s.db.Get(balanceKey(owner, token))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// Mint credits an owner's balance. Used to seed test fixtures and bridge
// deposits into the ledger.
func (s *State) Mint(owner [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("state: invalid mint amount")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, err := s.BalanceOf(owner, token)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return s.db.Put(balanceKey(owner, token), balance.Bytes())
}

// Transfer atomically debits from and credits to. A transfer that exceeds
// the sender's balance fails without moving anything.
func (s *State) Transfer(from, to [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("state: invalid transfer amount")
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fromBalance, err := s.BalanceOf(from, token)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, need %s", ErrInsufficientBalance,
			hex.EncodeToString(from[:]), fromBalance, token, amount)
	}
	toBalance, err := s.BalanceOf(to, token)
	if err != nil {
		return err
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance.Add(toBalance, amount)
	if err := s.db.Put(balanceKey(from, token), fromBalance.Bytes()); err != nil {
		return err
	}
	return s.db.Put(balanceKey(to, token), toBalance.Bytes())
}
