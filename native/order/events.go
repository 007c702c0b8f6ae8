package order

import (
	"encoding/hex"
	"strconv"

	"crosslock/core/types"
)

const (
	EventTypeOrderCreated   = "order.created"
	EventTypeOrderFilled    = "order.filled"
	EventTypeOrderCancelled = "order.cancelled"
)

type orderEvent struct {
	evt *types.Event
}

func (e orderEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e orderEvent) Event() *types.Event { return e.evt }

// NewOrderCreatedEvent returns the canonical event payload for a newly
// accepted order.
func NewOrderCreatedEvent(hash [32]byte, o *Order) *types.Event {
	attrs := baseAttrs(hash, o)
	if o != nil {
		attrs["makingAmount"] = o.MakingAmount.String()
		attrs["takingAmount"] = o.TakingAmount.String()
		attrs["expiration"] = strconv.FormatInt(o.Expiration, 10)
	}
	return &types.Event{Type: EventTypeOrderCreated, Attributes: attrs}
}

// NewOrderFilledEvent returns the canonical event payload for a fill,
// including the secret leaf index when the order is committed to a tree.
func NewOrderFilledEvent(o *Order, result *FillResult) *types.Event {
	attrs := baseAttrs(result.OrderHash, o)
	attrs["makingAmount"] = result.MakingAmount.String()
	attrs["takingAmount"] = result.TakingAmount.String()
	attrs["remaining"] = result.Remaining.String()
	if result.HasSecret {
		attrs["secretIndex"] = strconv.FormatUint(uint64(result.SecretIndex), 10)
	}
	return &types.Event{Type: EventTypeOrderFilled, Attributes: attrs}
}

// NewOrderCancelledEvent returns the canonical event payload for a maker
// cancellation.
func NewOrderCancelledEvent(hash [32]byte, o *Order) *types.Event {
	return &types.Event{Type: EventTypeOrderCancelled, Attributes: baseAttrs(hash, o)}
}

func baseAttrs(hash [32]byte, o *Order) map[string]string {
	attrs := map[string]string{
		"orderHash": hex.EncodeToString(hash[:]),
	}
	if o == nil {
		return attrs
	}
	attrs["maker"] = hex.EncodeToString(o.Maker[:])
	attrs["makerAsset"] = o.MakerAsset
	attrs["takerAsset"] = o.TakerAsset
	return attrs
}
