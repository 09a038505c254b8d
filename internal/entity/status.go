package entity

// Event is something that can happen to an existing order.
type Event string

const (
	EventApprove    Event = "approve"
	EventReject     Event = "reject"
	EventAddPayment Event = "add-payment"
	EventCancel     Event = "cancel"
)

var Events = []Event{EventApprove, EventReject, EventAddPayment, EventCancel}

var Statuses = []Status{StatusPendingApproval, StatusPendingPayment, StatusPaid, StatusCancelled}

// transitions lists the source states each event is legal from. cancelled has no outgoing edges.
var transitions = map[Event][]Status{
	EventApprove:    {StatusPendingApproval},
	EventReject:     {StatusPendingApproval},
	EventAddPayment: {StatusPendingPayment},
	EventCancel:     {StatusPendingPayment, StatusPaid},
}

// CanApply reports whether event is legal for an order in status from.
func CanApply(from Status, event Event) bool {
	for _, s := range transitions[event] {
		if s == from {
			return true
		}
	}
	return false
}

// CheckTransition returns an *IllegalTransitionError when event is not legal from the order's status.
func (o *Order) CheckTransition(event Event) error {
	if !CanApply(o.Status, event) {
		return &IllegalTransitionError{From: o.Status, Event: event}
	}
	return nil
}
