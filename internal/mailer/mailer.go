// Package mailer dispatches transactional email through an HTTP provider.
// Delivery is fire-and-forget from the caller's perspective: a 2xx from the
// provider is the only confirmation awaited.
package mailer

import "context"

// Message is one outbound email.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer sends one message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
