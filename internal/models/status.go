package models

import "fmt"

// Status is the lifecycle state of a formation request.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPaymentPending  Status = "PAYMENT_PENDING"
	StatusPaid            Status = "PAID"
	StatusProcessing      Status = "PROCESSING"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
)

var allStatuses = []Status{
	StatusDraft,
	StatusAwaitingPayment,
	StatusPaymentPending,
	StatusPaid,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// transitions lists the forward edges of the workflow. FAILED is reachable
// from every non-terminal state and is absorbing, as is COMPLETED.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusAwaitingPayment, StatusFailed},
	StatusAwaitingPayment: {StatusPaymentPending, StatusPaid, StatusFailed},
	StatusPaymentPending:  {StatusPaid, StatusFailed},
	StatusPaid:            {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing:      {StatusCompleted, StatusFailed},
}

// AdminSettableStatuses are the tokens accepted by the privileged status
// endpoint. DRAFT is only ever an initial state and AWAITING_PAYMENT is
// entered by the owner confirming intent to pay.
var AdminSettableStatuses = []Status{
	StatusPaymentPending,
	StatusPaid,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// ParseStatus converts a raw token into a known Status.
func ParseStatus(raw string) (Status, error) {
	for _, s := range allStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// IsAdminSettable reports whether s may be requested through the
// privileged transition endpoint.
func IsAdminSettable(s Status) bool {
	for _, allowed := range AdminSettableStatuses {
		if allowed == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether the workflow allows moving from one state
// to another. Self transitions are not allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// AllowsGeneration reports whether final documents may be produced for a
// request in this state.
func (s Status) AllowsGeneration() bool {
	switch s {
	case StatusPaid, StatusProcessing, StatusCompleted:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
