package events

// Topic constants for domain events emitted by checkout and payment reconciliation.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicPaymentFailed  = "payment.failed"
	TopicPaymentAnomaly = "payment.anomaly"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicPaymentFailed,
		TopicPaymentAnomaly,
	}
}
