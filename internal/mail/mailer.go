package mail

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Result reports the outcome of a delivery attempt. Senders never panic or
// surface errors any other way.
type Result struct {
	OK  bool
	Err error
}

// Sender performs a single delivery attempt.
type Sender interface {
	Send(msg Message) Result
}
