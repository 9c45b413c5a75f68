package enums

// PaymentState is the reconciliation result reported for a payment intent.
// It mirrors the gateway's observable intent states rather than what is
// persisted on the transaction row.
type PaymentState string

const (
	PaymentStateSettled      PaymentState = "settled"
	PaymentStateProcessing   PaymentState = "processing"
	PaymentStatePendingInput PaymentState = "requires_payment_method"
	PaymentStateFailed       PaymentState = "failed"
)

// String implements fmt.Stringer.
func (p PaymentState) String() string {
	return string(p)
}
