package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"crosslock/core/events"
	"crosslock/core/types"
	nativecommon "crosslock/native/common"
)

var (
	errRegistryNilState = errors.New("escrow registry: state not configured")
)


// AssetLedger is the custody capability the registry settles through. The
// registry treats it as opaque: transfers are atomic and reported
// synchronously, and any failure reason is surfaced verbatim to the caller.
type AssetLedger interface {
	Transfer(from, to [20]byte, token string, amount *big.Int) error
	BalanceOf(owner [20]byte, token string) (*big.Int, error)
}

// AccessGate decides which callers qualify for the public withdraw/cancel
// incentive once the private deadlines pass. A nil gate admits everyone.
type AccessGate interface {
	Allowed(caller [20]byte) bool
}

// registryState exposes the storage the registry requires. Escrows are keyed
// by their deterministic identifier.
type registryState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id [32]byte) (*Escrow, bool, error)
	EscrowList() ([]*Escrow, error)
	EscrowVaultAddress(token string) ([20]byte, error)
}

// Registry owns the map of escrow instances and runs the hashlock/timelock
// state machine per escrow. Transitions are evaluated lazily against the
// clock read at call time; nothing moves without an explicit call, so
// "expired" is a derived status rather than an event.
type Registry struct {
	mu      sync.Mutex
	state   registryState
	ledger  AssetLedger
	gate    AccessGate
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewRegistry creates a registry with a no-op emitter. Callers must supply a
// state backend and an asset ledger before any transition.
func NewRegistry() *Registry {
	return &Registry{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetLedger configures the asset ledger capability.
func (r *Registry) SetLedger(ledger AssetLedger) { r.ledger = ledger }

// SetAccessGate configures the public-phase caller gate. Passing nil admits
// any caller after the public deadlines.
func (r *Registry) SetAccessGate(gate AccessGate) { r.gate = gate }

// SetEmitter configures the event emitter used by the registry. Passing nil
// resets the emitter to a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetPauses configures the module pause view consulted before mutations.
func (r *Registry) SetPauses(p nativecommon.PauseView) { r.pauses = p }

// SetNowFunc overrides the time source used by the registry. Primarily
// intended for tests to provide deterministic timestamps.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) emit(event *types.Event) {
	if r == nil || r.emitter == nil || event == nil {
		return
	}
	r.emitter.Emit(escrowEvent{evt: event})
}

func (r *Registry) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().Unix()
	}
	return r.nowFn()
}

// Create initialises and persists a new escrow from its immutable
// definition. The identifier is derived purely from the immutables, so
// recreating an identical definition is idempotent while a colliding
// identifier with a different definition is rejected. The depositor defaults
// to the taker, the resolver that fronts liquidity on both legs.
func (r *Registry) Create(im *Immutables, depositor [20]byte) (*Escrow, error) {
	if r == nil || r.state == nil {
		return nil, errRegistryNilState
	}
	if err := nativecommon.Guard(r.pauses, nativecommon.ModuleEscrows); err != nil {
		return nil, err
	}
	sanitized, err := SanitizeImmutables(im)
	if err != nil {
		return nil, err
	}
	if depositor == ([20]byte{}) {
		depositor = sanitized.Taker
	}
	id := sanitized.ID()

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok, err := r.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if ok && existing != nil {
		if !existing.Immutables.Equal(sanitized) || existing.Depositor != depositor {
			return nil, ErrEscrowExists
		}
		return existing.Clone(), nil
	}
	now := r.now()
	esc := &Escrow{
		ID:         id,
		Immutables: *sanitized,
		Depositor:  depositor,
		State:      StateCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	r.emit(NewEscrowCreatedEvent(esc))
	return esc.Clone(), nil
}

// Fund moves amount plus safety deposit from the depositor into the escrow
// vault and marks the escrow funded. The operation is idempotent.
func (r *Registry) Fund(id [32]byte, from [20]byte) error {
	if r == nil || r.state == nil {
		return errRegistryNilState
	}
	if err := nativecommon.Guard(r.pauses, nativecommon.ModuleEscrows); err != nil {
		return err
	}
	if r.ledger == nil {
		return ErrLedgerNotConfigured
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	esc, err := r.loadLocked(id)
	if err != nil {
		return err
	}
	if esc.State == StateFunded {
		return nil
	}
	if esc.State != StateCreated {
		return fmt.Errorf("%w: cannot fund in state %s", ErrInvalidState, esc.State)
	}
	if from != esc.Depositor {
		return ErrUnauthorized
	}
	vault, err := r.state.EscrowVaultAddress(esc.Immutables.Token)
	if err != nil {
		return err
	}
	total := new(big.Int).Add(esc.Immutables.Amount, esc.Immutables.SafetyDeposit)
	if err := r.ledger.Transfer(esc.Depositor, vault, esc.Immutables.Token, total); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	esc.State = StateFunded
	esc.UpdatedAt = r.now()
	if err := r.state.EscrowPut(esc); err != nil {
		return err
	}
	r.emit(NewEscrowFundedEvent(esc))
	return nil
}

// Withdraw releases the escrowed amount to the leg's beneficiary in exchange
// for the hashlock secret. Before the public-withdrawal deadline only the
// taker may call; afterwards any gated caller may finish a stalled swap and
// collect the safety deposit as the incentive. Checks run in a fixed order
// (state, caller, secret, window) so an unauthorized caller is rejected even
// outside the withdrawal window; a ledger failure leaves the escrow state
// untouched.
func (r *Registry) Withdraw(id [32]byte, caller [20]byte, secret []byte) error {
	if r == nil || r.state == nil {
		return errRegistryNilState
	}
	if err := nativecommon.Guard(r.pauses, nativecommon.ModuleEscrows); err != nil {
		return err
	}
	if r.ledger == nil {
		return ErrLedgerNotConfigured
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	esc, err := r.loadLocked(id)
	if err != nil {
		return err
	}
	if err := r.requireFundedLocked(esc); err != nil {
		return err
	}
	tl := esc.Immutables.Timelocks
	now := r.now()
	if now < tl.PublicWithdrawalStart {
		if caller != esc.Immutables.Taker {
			return ErrUnauthorized
		}
	} else if !r.allowed(caller) {
		return ErrUnauthorized
	}
	if !VerifySecret(secret, esc.Immutables.Hashlock) {
		return ErrInvalidSecret
	}
	if now < tl.WithdrawalStart {
		return fmt.Errorf("%w: withdrawal opens at %d", ErrTooEarly, tl.WithdrawalStart)
	}
	if now >= tl.CancellationStart {
		return fmt.Errorf("%w: cancellation window opened at %d", ErrTooLate, tl.CancellationStart)
	}
	recipient := esc.Immutables.Taker
	if esc.Immutables.Leg == LegDestination {
		recipient = esc.Immutables.Maker
	}
	if err := r.payoutLocked(esc, recipient, caller); err != nil {
		return err
	}
	esc.State = StateWithdrawn
	esc.UpdatedAt = now
	if err := r.state.EscrowPut(esc); err != nil {
		return err
	}
	r.emit(NewEscrowWithdrawnEvent(esc, caller))
	return nil
}

// Cancel returns the escrowed amount to the depositor once the cancellation
// window opens. Before the public-cancellation deadline only the depositor
// may call; afterwards any gated caller may trigger recovery and collect the
// safety deposit.
func (r *Registry) Cancel(id [32]byte, caller [20]byte) error {
	if r == nil || r.state == nil {
		return errRegistryNilState
	}
	if err := nativecommon.Guard(r.pauses, nativecommon.ModuleEscrows); err != nil {
		return err
	}
	if r.ledger == nil {
		return ErrLedgerNotConfigured
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	esc, err := r.loadLocked(id)
	if err != nil {
		return err
	}
	if err := r.requireFundedLocked(esc); err != nil {
		return err
	}
	tl := esc.Immutables.Timelocks
	now := r.now()
	if now < tl.CancellationStart {
		return fmt.Errorf("%w: cancellation opens at %d", ErrTooEarly, tl.CancellationStart)
	}
	if now < tl.PublicCancellationStart {
		if caller != esc.Depositor {
			return ErrUnauthorized
		}
	} else if !r.allowed(caller) {
		return ErrUnauthorized
	}
	if err := r.payoutLocked(esc, esc.Depositor, caller); err != nil {
		return err
	}
	esc.State = StateCancelled
	esc.UpdatedAt = now
	if err := r.state.EscrowPut(esc); err != nil {
		return err
	}
	r.emit(NewEscrowCancelledEvent(esc, caller))
	return nil
}

// payoutLocked moves the escrowed amount to the recipient and the safety
// deposit to the caller. If the deposit transfer fails after the amount
// moved, the amount transfer is compensated so the vault never ends up
// partially drained; both errors are reported if the compensation also
// fails.
func (r *Registry) payoutLocked(esc *Escrow, recipient, caller [20]byte) error {
	vault, err := r.state.EscrowVaultAddress(esc.Immutables.Token)
	if err != nil {
		return err
	}
	token := esc.Immutables.Token
	if err := r.ledger.Transfer(vault, recipient, token, esc.Immutables.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	deposit := esc.Immutables.SafetyDeposit
	if deposit.Sign() == 0 {
		return nil
	}
	if err := r.ledger.Transfer(vault, caller, token, deposit); err != nil {
		if rbErr := r.ledger.Transfer(recipient, vault, token, esc.Immutables.Amount); rbErr != nil {
			return fmt.Errorf("%w: %v (compensation also failed: %v)", ErrTransferFailed, err, rbErr)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

func (r *Registry) requireFundedLocked(esc *Escrow) error {
	switch esc.State {
	case StateFunded:
		return nil
	case StateWithdrawn:
		return ErrAlreadyWithdrawn
	case StateCancelled:
		return ErrAlreadyCancelled
	default:
		return fmt.Errorf("%w: escrow is %s", ErrInvalidState, esc.State)
	}
}

func (r *Registry) allowed(caller [20]byte) bool {
	if r.gate == nil {
		return true
	}
	return r.gate.Allowed(caller)
}

func (r *Registry) loadLocked(id [32]byte) (*Escrow, error) {
	esc, ok, err := r.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || esc == nil {
		return nil, ErrEscrowNotFound
	}
	return esc, nil
}

// Get returns the stored escrow for an identifier, if any.
func (r *Registry) Get(id [32]byte) (*Escrow, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, errRegistryNilState
	}
	esc, ok, err := r.state.EscrowGet(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return esc.Clone(), true, nil
}

// Status reports the escrow's effective state at the current time. A funded
// escrow whose public-cancellation deadline has passed without a call reads
// as Expired; the stored state is unchanged until someone actually cancels.
func (r *Registry) Status(id [32]byte) (State, error) {
	if r == nil || r.state == nil {
		return StateCreated, errRegistryNilState
	}
	esc, ok, err := r.state.EscrowGet(id)
	if err != nil {
		return StateCreated, err
	}
	if !ok || esc == nil {
		return StateCreated, ErrEscrowNotFound
	}
	if esc.State == StateFunded && r.now() >= esc.Immutables.Timelocks.PublicCancellationStart {
		return StateExpired, nil
	}
	return esc.State, nil
}

// Phase reports which timelock window the escrow is in at the current time.
func (r *Registry) Phase(id [32]byte) (Phase, error) {
	if r == nil || r.state == nil {
		return PhaseBeforeWithdrawal, errRegistryNilState
	}
	esc, ok, err := r.state.EscrowGet(id)
	if err != nil {
		return PhaseBeforeWithdrawal, err
	}
	if !ok || esc == nil {
		return PhaseBeforeWithdrawal, ErrEscrowNotFound
	}
	return StatusAt(esc.Immutables.Timelocks, r.now()), nil
}

// List returns every stored escrow.
func (r *Registry) List() ([]*Escrow, error) {
	if r == nil || r.state == nil {
		return nil, errRegistryNilState
	}
	stored, err := r.state.EscrowList()
	if err != nil {
		return nil, err
	}
	out := make([]*Escrow, 0, len(stored))
	for _, esc := range stored {
		out = append(out, esc.Clone())
	}
	return out, nil
}

// ByOrder returns every escrow belonging to the given order hash, typically
// the source and destination legs of each fill.
func (r *Registry) ByOrder(orderHash [32]byte) ([]*Escrow, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	matched := make([]*Escrow, 0, 2)
	for _, esc := range all {
		if esc.Immutables.OrderHash == orderHash {
			matched = append(matched, esc)
		}
	}
	return matched, nil
}
