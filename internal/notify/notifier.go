package notify

// Event names pushed over the realtime channel. Frontends key off these.
const (
	EventTransactionCreated = "transaction:created"
	EventTransactionUpdated = "transaction:updated"
	EventUserUpdated        = "user:updated"
)

// Notifier delivers realtime events to connected sessions. Delivery is
// fire-and-forget; no acknowledgement reaches the caller.
type Notifier interface {
	NotifyUser(userID, event string, payload any)
	NotifyAdmins(event string, payload any)
}
