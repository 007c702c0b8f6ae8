package order

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crosslock/core/events"
	"crosslock/core/types"
	nativecommon "crosslock/native/common"
	"crosslock/native/secrets"
)

var (
	errBookNilState = errors.New("order book: state not configured")
)

const (
	// DefaultMaxActiveOrders caps the number of live orders accepted by the book.
	DefaultMaxActiveOrders = 10_000
	// DefaultMaxExpirationDays caps how far in the future an order may expire.
	DefaultMaxExpirationDays = 30
)

// bookState exposes the storage the book requires on top of the invalidator
// namespace. Orders are keyed by their canonical hash.
type bookState interface {
	InvalidatorState
	OrderPut(*Order) error
	OrderGet(hash [32]byte) (*Order, bool, error)
	OrderList() ([]*Order, error)
}

// SignatureVerifier checks an order signature against the claimed maker. It
// is injected so deployments can swap the wire signature scheme without
// touching the book.
type SignatureVerifier interface {
	Verify(signer [20]byte, digest [32]byte, signature []byte) bool
}

// RecoverVerifier is the default verifier: it recovers a secp256k1 public key
// from a 65-byte signature and compares the derived address to the signer.
type RecoverVerifier struct{}

// Verify implements SignatureVerifier.
func (RecoverVerifier) Verify(signer [20]byte, digest [32]byte, signature []byte) bool {
	if len(signature) != 65 {
		return false
	}
	pubKey, err := ethcrypto.SigToPub(digest[:], signature)
	if err != nil {
		return false
	}
	return ethcrypto.PubkeyToAddress(*pubKey) == ethcommon.BytesToAddress(signer[:])
}

// FillResult reports the outcome of a successful fill: the amounts exchanged,
// the capacity left on the order, and (for orders committed to a secret tree)
// the index of the tranche secret the resolver may now use to open escrows.
type FillResult struct {
	OrderHash    [32]byte
	MakingAmount *big.Int
	TakingAmount *big.Int
	Remaining    *big.Int
	SecretIndex  uint32
	HasSecret    bool
}

// Stats aggregates book activity for the query surface.
type Stats struct {
	OrdersCreated   uint64
	OrdersFilled    uint64
	OrdersCancelled uint64
	VolumeByAsset   map[string]*big.Int
}

func (s *Stats) clone() Stats {
	out := Stats{
		OrdersCreated:   s.OrdersCreated,
		OrdersFilled:    s.OrdersFilled,
		OrdersCancelled: s.OrdersCancelled,
		VolumeByAsset:   make(map[string]*big.Int, len(s.VolumeByAsset)),
	}
	for asset, vol := range s.VolumeByAsset {
		out.VolumeByAsset[asset] = new(big.Int).Set(vol)
	}
	return out
}

// Book owns the map of outstanding orders and serialises every mutation so
// concurrent fills can never overdraw an order. Custody never moves through
// the book: fills only compute amounts and consume invalidator capacity, and
// the escrow registry settles funds out of band.
type Book struct {
	mu          sync.Mutex
	state       bookState
	invalidator *Invalidator
	verifier    SignatureVerifier
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	nowFn       func() int64

	maxActiveOrders   int
	maxExpirationDays int

	stats Stats
}

// NewBook creates a book with the recovery-based signature verifier and a
// no-op emitter. Callers must supply a state backend via SetState.
func NewBook() *Book {
	return &Book{
		verifier:          RecoverVerifier{},
		emitter:           events.NoopEmitter{},
		nowFn:             func() int64 { return time.Now().Unix() },
		maxActiveOrders:   DefaultMaxActiveOrders,
		maxExpirationDays: DefaultMaxExpirationDays,
		stats:             Stats{VolumeByAsset: make(map[string]*big.Int)},
	}
}

// SetState configures the state backend used by the book and rebinds the
// invalidator to it.
func (b *Book) SetState(state bookState) {
	b.state = state
	b.invalidator = NewInvalidator(state)
}

// SetVerifier overrides the signature verifier. Passing nil restores the
// default recovery verifier.
func (b *Book) SetVerifier(v SignatureVerifier) {
	if v == nil {
		b.verifier = RecoverVerifier{}
		return
	}
	b.verifier = v
}

// SetEmitter configures the event emitter used by the book. Passing nil
// resets the emitter to a no-op implementation.
func (b *Book) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// SetPauses configures the module pause view consulted before mutations.
func (b *Book) SetPauses(p nativecommon.PauseView) { b.pauses = p }

// SetNowFunc overrides the time source used by the book. Primarily intended
// for tests to provide deterministic timestamps.
func (b *Book) SetNowFunc(now func() int64) {
	if now == nil {
		b.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	b.nowFn = now
}

// SetLimits overrides the active-order cap and expiration horizon. Zero
// values keep the current setting.
func (b *Book) SetLimits(maxActive, maxExpirationDays int) {
	if maxActive > 0 {
		b.maxActiveOrders = maxActive
	}
	if maxExpirationDays > 0 {
		b.maxExpirationDays = maxExpirationDays
	}
}

func (b *Book) emit(event *types.Event) {
	if b == nil || b.emitter == nil || event == nil {
		return
	}
	b.emitter.Emit(orderEvent{evt: event})
}

func (b *Book) now() int64 {
	if b == nil || b.nowFn == nil {
		return time.Now().Unix()
	}
	return b.nowFn()
}

// Submit validates the signed order and stores it keyed by its hash. The
// signature must recover to the maker; the expiration must be in the future
// and within the configured horizon; extension bytes, when present, must
// decode to a well-formed secret-tree commitment.
func (b *Book) Submit(o *Order, signature []byte) ([32]byte, error) {
	if b == nil || b.state == nil {
		return [32]byte{}, errBookNilState
	}
	if err := nativecommon.Guard(b.pauses, nativecommon.ModuleOrders); err != nil {
		return [32]byte{}, err
	}
	sanitized, err := SanitizeOrder(o)
	if err != nil {
		return [32]byte{}, err
	}
	now := b.now()
	if sanitized.Expiration <= now {
		return [32]byte{}, ErrInvalidExpiration
	}
	horizon := now + int64(b.maxExpirationDays)*24*3600
	if sanitized.Expiration > horizon {
		return [32]byte{}, fmt.Errorf("%w: beyond %d day horizon", ErrInvalidExpiration, b.maxExpirationDays)
	}
	if sanitized.Traits.HasExtension() {
		if _, err := ParseExtension(sanitized.Extension); err != nil {
			return [32]byte{}, err
		}
	}
	hash := sanitized.Hash()
	if !b.verifier.Verify(sanitized.Maker, hash, signature) {
		return [32]byte{}, ErrInvalidSignature
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	existing, ok, err := b.state.OrderGet(hash)
	if err != nil {
		return [32]byte{}, err
	}
	if ok && existing != nil {
		// Identical resubmission is idempotent.
		return hash, nil
	}
	active, err := b.activeOrdersLocked()
	if err != nil {
		return [32]byte{}, err
	}
	if len(active) >= b.maxActiveOrders {
		return [32]byte{}, ErrTooManyOrders
	}
	if sanitized.Traits.UseBitInvalidator() {
		// The slot bit represents exactly one order, so a bit-tracked order
		// whose nonce collides with a consumed bit or with a live sibling
		// would share its invalidation. Makers must pick a fresh nonce.
		set, err := b.invalidator.IsBitSet(sanitized.Maker, sanitized.Traits.Slot(), sanitized.Traits.Bit())
		if err != nil {
			return [32]byte{}, err
		}
		if set {
			return [32]byte{}, ErrNonceUsed
		}
		for _, live := range active {
			if live.Maker == sanitized.Maker && live.Traits.UseBitInvalidator() && live.Traits.Nonce() == sanitized.Traits.Nonce() {
				return [32]byte{}, ErrNonceUsed
			}
		}
	}
	if sanitized.CreatedAt == 0 {
		sanitized.CreatedAt = now
	}
	if err := b.state.OrderPut(sanitized); err != nil {
		return [32]byte{}, err
	}
	b.stats.OrdersCreated++
	b.emit(NewOrderCreatedEvent(hash, sanitized))
	return hash, nil
}

// Fill consumes capacity on the order and reports the exchanged amounts. The
// taking amount is computed proportionally with ceiling division so rounding
// always favours the maker. For orders committed to a secret tree the caller
// must supply a Merkle proof for the tranche boundary the fill reaches; the
// returned secret index is what the resolver uses to derive the escrow
// hashlock. No funds move here.
func (b *Book) Fill(caller [20]byte, orderHash [32]byte, amount *big.Int, proof *secrets.Proof) (*FillResult, error) {
	if b == nil || b.state == nil {
		return nil, errBookNilState
	}
	if err := nativecommon.Guard(b.pauses, nativecommon.ModuleOrders); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, err := b.loadLocked(orderHash)
	if err != nil {
		return nil, err
	}
	if o.CancelledAt != 0 {
		return nil, ErrOrderCancelled
	}
	if o.IsPrivate() && caller != o.AllowedTaker {
		return nil, ErrUnauthorized
	}
	if o.Expiration <= b.now() {
		return nil, ErrOrderExpired
	}

	if o.Traits.UseBitInvalidator() {
		return b.fillWholeLocked(o, orderHash, amount)
	}
	return b.fillPartialLocked(o, orderHash, amount, proof)
}

// fillWholeLocked handles orders consumed as a unit. The slot bit is set by
// the first accepted fill, so at most one fill ever lands; when partial fills
// are allowed (but multiple are not) that single fill may take less than the
// full size and the rest of the order is forfeited.
func (b *Book) fillWholeLocked(o *Order, hash [32]byte, amount *big.Int) (*FillResult, error) {
	set, err := b.invalidator.IsBitSet(o.Maker, o.Traits.Slot(), o.Traits.Bit())
	if err != nil {
		return nil, err
	}
	if set {
		return nil, ErrOrderAlreadyFilled
	}
	if !o.Traits.AllowPartialFills() && amount.Cmp(o.MakingAmount) != 0 {
		return nil, ErrInvalidPartialFill
	}
	if amount.Cmp(o.MakingAmount) > 0 {
		return nil, ErrInsufficientRemaining
	}
	if err := b.invalidator.InvalidateBits(o.Maker, o.Traits.Slot(), MaskForBit(o.Traits.Bit())); err != nil {
		if errors.Is(err, ErrAlreadyInvalidated) {
			return nil, ErrOrderAlreadyFilled
		}
		return nil, err
	}
	result := &FillResult{
		OrderHash:    hash,
		MakingAmount: new(big.Int).Set(amount),
		TakingAmount: takingFor(o, amount),
		Remaining:    big.NewInt(0),
	}
	b.recordFillLocked(o, result)
	return result, nil
}

func (b *Book) fillPartialLocked(o *Order, hash [32]byte, amount *big.Int, proof *secrets.Proof) (*FillResult, error) {
	remaining, err := b.invalidator.RemainingFor(o.Maker, hash, o.MakingAmount)
	if err != nil {
		return nil, err
	}
	if remaining.Sign() == 0 {
		return nil, ErrOrderAlreadyFilled
	}
	if amount.Cmp(remaining) > 0 {
		return nil, ErrInsufficientRemaining
	}

	result := &FillResult{
		OrderHash:    hash,
		MakingAmount: new(big.Int).Set(amount),
		TakingAmount: takingFor(o, amount),
	}

	if o.Traits.HasExtension() {
		ext, err := ParseExtension(o.Extension)
		if err != nil {
			return nil, err
		}
		filledAfter := new(big.Int).Sub(o.MakingAmount, remaining)
		filledAfter.Add(filledAfter, amount)
		index, err := secrets.IndexForFill(filledAfter, o.MakingAmount, ext.Parts)
		if err != nil {
			return nil, err
		}
		if proof == nil {
			return nil, ErrSecretProofRequired
		}
		if proof.Index != index {
			return nil, fmt.Errorf("%w: expected leaf %d, proof carries %d", ErrInvalidSecretProof, index, proof.Index)
		}
		if !secrets.VerifyProof(ext.Root, proof) {
			return nil, ErrInvalidSecretProof
		}
		result.SecretIndex = index
		result.HasSecret = true
	}

	updated, err := b.invalidator.Consume(o.Maker, hash, o.MakingAmount, amount)
	if err != nil {
		return nil, err
	}
	result.Remaining = updated
	b.recordFillLocked(o, result)
	return result, nil
}

// takingFor computes ceil(takingAmount * amount / makingAmount).
func takingFor(o *Order, amount *big.Int) *big.Int {
	num := new(big.Int).Mul(o.TakingAmount, amount)
	num.Add(num, new(big.Int).Sub(o.MakingAmount, big.NewInt(1)))
	return num.Div(num, o.MakingAmount)
}

func (b *Book) recordFillLocked(o *Order, result *FillResult) {
	b.stats.OrdersFilled++
	vol, ok := b.stats.VolumeByAsset[o.MakerAsset]
	if !ok {
		vol = big.NewInt(0)
		b.stats.VolumeByAsset[o.MakerAsset] = vol
	}
	vol.Add(vol, result.MakingAmount)
	b.emit(NewOrderFilledEvent(o, result))
}

// Cancel invalidates the order and records the cancellation on the stored
// record so later fills fail with ErrOrderCancelled rather than reading as
// consumed. Only the maker may cancel. Cancelling an already-cancelled order
// is a no-op success; an unknown hash fails with ErrOrderNotFound; a fully
// filled order fails with ErrOrderAlreadyFilled.
func (b *Book) Cancel(caller [20]byte, orderHash [32]byte) error {
	if b == nil || b.state == nil {
		return errBookNilState
	}
	if err := nativecommon.Guard(b.pauses, nativecommon.ModuleOrders); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok, err := b.state.OrderGet(orderHash)
	if err != nil {
		return err
	}
	if !ok || o == nil {
		return ErrOrderNotFound
	}
	if caller != o.Maker {
		return ErrUnauthorized
	}
	if o.CancelledAt != 0 {
		return nil
	}
	if o.Traits.UseBitInvalidator() {
		err := b.invalidator.InvalidateBits(o.Maker, o.Traits.Slot(), MaskForBit(o.Traits.Bit()))
		if errors.Is(err, ErrAlreadyInvalidated) {
			return ErrOrderAlreadyFilled
		}
		if err != nil {
			return err
		}
	} else {
		remaining, err := b.invalidator.RemainingFor(o.Maker, orderHash, o.MakingAmount)
		if err != nil {
			return err
		}
		if remaining.Sign() == 0 {
			return ErrOrderAlreadyFilled
		}
		if err := b.invalidator.Zero(o.Maker, orderHash); err != nil {
			return err
		}
	}
	o.CancelledAt = b.now()
	if err := b.state.OrderPut(o); err != nil {
		return err
	}
	b.stats.OrdersCancelled++
	b.emit(NewOrderCancelledEvent(orderHash, o))
	return nil
}

// CancelBatch cancels multiple orders owned by the caller, reporting a
// per-order result so one failure does not mask the others.
func (b *Book) CancelBatch(caller [20]byte, hashes [][32]byte) map[[32]byte]error {
	results := make(map[[32]byte]error, len(hashes))
	for _, hash := range hashes {
		results[hash] = b.Cancel(caller, hash)
	}
	return results
}

func (b *Book) loadLocked(hash [32]byte) (*Order, error) {
	o, ok, err := b.state.OrderGet(hash)
	if err != nil {
		return nil, err
	}
	if !ok || o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// Get returns the stored order for a hash, if any.
func (b *Book) Get(orderHash [32]byte) (*Order, bool, error) {
	if b == nil || b.state == nil {
		return nil, false, errBookNilState
	}
	o, ok, err := b.state.OrderGet(orderHash)
	if err != nil || !ok {
		return nil, ok, err
	}
	return o.Clone(), true, nil
}

// Remaining reports the order's remaining making amount. Bit-invalidated
// orders report either the full amount or zero.
func (b *Book) Remaining(orderHash [32]byte) (*big.Int, error) {
	if b == nil || b.state == nil {
		return nil, errBookNilState
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	o, err := b.loadLocked(orderHash)
	if err != nil {
		return nil, err
	}
	if o.Traits.UseBitInvalidator() {
		set, err := b.invalidator.IsBitSet(o.Maker, o.Traits.Slot(), o.Traits.Bit())
		if err != nil {
			return nil, err
		}
		if set {
			return big.NewInt(0), nil
		}
		return new(big.Int).Set(o.MakingAmount), nil
	}
	return b.invalidator.RemainingFor(o.Maker, orderHash, o.MakingAmount)
}

// Active returns every order that is neither consumed, cancelled nor expired.
func (b *Book) Active() ([]*Order, error) {
	if b == nil || b.state == nil {
		return nil, errBookNilState
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeOrdersLocked()
}

func (b *Book) activeOrdersLocked() ([]*Order, error) {
	all, err := b.state.OrderList()
	if err != nil {
		return nil, err
	}
	now := b.now()
	active := make([]*Order, 0, len(all))
	for _, o := range all {
		if o.Expiration <= now || o.CancelledAt != 0 {
			continue
		}
		live, err := b.isLiveLocked(o)
		if err != nil {
			return nil, err
		}
		if live {
			active = append(active, o.Clone())
		}
	}
	return active, nil
}

func (b *Book) isLiveLocked(o *Order) (bool, error) {
	if o.Traits.UseBitInvalidator() {
		set, err := b.invalidator.IsBitSet(o.Maker, o.Traits.Slot(), o.Traits.Bit())
		return !set, err
	}
	remaining, err := b.invalidator.RemainingFor(o.Maker, o.Hash(), o.MakingAmount)
	if err != nil {
		return false, err
	}
	return remaining.Sign() > 0, nil
}

// ByMaker returns every stored order signed by the given maker.
func (b *Book) ByMaker(maker [20]byte) ([]*Order, error) {
	if b == nil || b.state == nil {
		return nil, errBookNilState
	}
	all, err := b.state.OrderList()
	if err != nil {
		return nil, err
	}
	matched := make([]*Order, 0)
	for _, o := range all {
		if o.Maker == maker {
			matched = append(matched, o.Clone())
		}
	}
	return matched, nil
}

// ByAssetPair returns every active order exchanging the given pair.
func (b *Book) ByAssetPair(makerAsset, takerAsset string) ([]*Order, error) {
	active, err := b.Active()
	if err != nil {
		return nil, err
	}
	matched := make([]*Order, 0, len(active))
	for _, o := range active {
		if o.MakerAsset == makerAsset && o.TakerAsset == takerAsset {
			matched = append(matched, o)
		}
	}
	return matched, nil
}

// Statistics returns a snapshot of the book's activity counters.
func (b *Book) Statistics() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.clone()
}
