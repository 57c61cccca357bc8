// Package email abstracts outbound mail delivery for dependency injection
// and testing.
package email

import "context"

// Message represents an email to be sent.
type Message struct {
	From        string
	To          string
	ToName      string
	Subject     string
	HTMLBody    string
	Attachments []string // file paths, optional
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
