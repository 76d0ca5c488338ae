package events

// Topic constants for domain events emitted by payment settlement.
const (
	TopicPaymentSucceeded           = "payment.succeeded"
	TopicPaymentFailed              = "payment.failed"
	TopicDonationCompleted          = "donation.completed"
	TopicMembershipActivated        = "membership.activated"
	TopicEventRegistrationConfirmed = "event_registration.confirmed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicPaymentSucceeded,
		TopicPaymentFailed,
		TopicDonationCompleted,
		TopicMembershipActivated,
		TopicEventRegistrationConfirmed,
	}
}
