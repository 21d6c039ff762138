package repositories

// DeliveryChannel hands a structured message to whichever transport endpoint
// owns a session. It reports failure through the return value and never
// blocks on the client.
type DeliveryChannel interface {
	Deliver(sessionID string, message interface{}) bool
}

// SessionRegistry tracks which sessions are allowed to receive work.
type SessionRegistry interface {
	Add(sessionID string)
	Remove(sessionID string)
	IsActive(sessionID string) bool
	ListActive() []string
}
