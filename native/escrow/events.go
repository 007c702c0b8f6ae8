package escrow

import (
	"encoding/hex"
	"strconv"

	"crosslock/core/types"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeEscrowFunded    = "escrow.funded"
	EventTypeEscrowWithdrawn = "escrow.withdrawn"
	EventTypeEscrowCancelled = "escrow.cancelled"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewEscrowCreatedEvent returns the canonical event payload for a newly
// registered escrow.
func NewEscrowCreatedEvent(esc *Escrow) *types.Event {
	attrs := baseAttrs(esc)
	if esc != nil {
		attrs["amount"] = esc.Immutables.Amount.String()
		attrs["safetyDeposit"] = esc.Immutables.SafetyDeposit.String()
		attrs["depositor"] = hex.EncodeToString(esc.Depositor[:])
	}
	return &types.Event{Type: EventTypeEscrowCreated, Attributes: attrs}
}

// NewEscrowFundedEvent returns the canonical event payload emitted once the
// deposit lands in the vault.
func NewEscrowFundedEvent(esc *Escrow) *types.Event {
	return &types.Event{Type: EventTypeEscrowFunded, Attributes: baseAttrs(esc)}
}

// NewEscrowWithdrawnEvent returns the canonical event payload for a secret
// reveal, recording who triggered the release.
func NewEscrowWithdrawnEvent(esc *Escrow, caller [20]byte) *types.Event {
	attrs := baseAttrs(esc)
	attrs["caller"] = hex.EncodeToString(caller[:])
	return &types.Event{Type: EventTypeEscrowWithdrawn, Attributes: attrs}
}

// NewEscrowCancelledEvent returns the canonical event payload for a refund.
func NewEscrowCancelledEvent(esc *Escrow, caller [20]byte) *types.Event {
	attrs := baseAttrs(esc)
	attrs["caller"] = hex.EncodeToString(caller[:])
	return &types.Event{Type: EventTypeEscrowCancelled, Attributes: attrs}
}

func baseAttrs(esc *Escrow) map[string]string {
	attrs := map[string]string{}
	if esc == nil {
		return attrs
	}
	attrs["escrowId"] = hex.EncodeToString(esc.ID[:])
	attrs["orderHash"] = hex.EncodeToString(esc.Immutables.OrderHash[:])
	attrs["leg"] = esc.Immutables.Leg.String()
	attrs["token"] = esc.Immutables.Token
	attrs["state"] = esc.State.String()
	attrs["updatedAt"] = strconv.FormatInt(esc.UpdatedAt, 10)
	return attrs
}
