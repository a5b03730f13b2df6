package order

import "fmt"

// Status is the lifecycle state of an order.
//
// Cash orders enter Created directly. Gateway orders exist only as a pending
// checkout intent until settlement is confirmed; a durable order then starts
// at SettlementConfirmed. Fulfillment is administrator-driven and strictly
// forward.
type Status string

const (
	StatusCreated             Status = "created"
	StatusAwaitingSettlement  Status = "awaiting_settlement" // intent only, never stored on a durable order
	StatusSettlementConfirmed Status = "settlement_confirmed"
	StatusPacking             Status = "packing"
	StatusShipped             Status = "shipped"
	StatusOutForDelivery      Status = "out_for_delivery"
	StatusDelivered           Status = "delivered"
	StatusSettlementFailed    Status = "settlement_failed"
	StatusSettlementConflict  Status = "settlement_conflict" // paid but unfulfillable, needs manual reconciliation
	StatusCancelled           Status = "cancelled"
)

// InvalidTransitionError reports a rejected status transition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}

// transitions is the complete set of allowed moves. Absence means rejection;
// there is no way back into AwaitingSettlement or Created.
var transitions = map[Status][]Status{
	StatusCreated:             {StatusPacking, StatusCancelled},
	StatusAwaitingSettlement:  {StatusSettlementConfirmed, StatusSettlementFailed},
	StatusSettlementConfirmed: {StatusPacking, StatusCancelled},
	StatusPacking:             {StatusShipped, StatusCancelled},
	StatusShipped:             {StatusOutForDelivery},
	StatusOutForDelivery:      {StatusDelivered},
}

// fulfillmentOrder is the forward-only administrator-driven chain.
var fulfillmentOrder = []Status{StatusPacking, StatusShipped, StatusOutForDelivery, StatusDelivered}

// CanTransitionTo reports whether a move from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// NextFulfillment returns the next step in the fulfillment chain, or false
// when s has no forward fulfillment step.
func (s Status) NextFulfillment() (Status, bool) {
	switch s {
	case StatusCreated, StatusSettlementConfirmed:
		return StatusPacking, true
	}
	for i, step := range fulfillmentOrder[:len(fulfillmentOrder)-1] {
		if s == step {
			return fulfillmentOrder[i+1], true
		}
	}
	return "", false
}

// TransitionTo advances the order's status, rejecting disallowed moves.
func (o *Order) TransitionTo(next Status) error {
	if !o.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{From: o.Status, To: next}
	}
	o.Status = next
	return nil
}
