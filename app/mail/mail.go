// Package mail delivers transactional email for the auth flows.
package mail

import (
	"context"
	"errors"
)

var ErrInvalidMessage = errors.New("invalid mail message")

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

func (m Message) Validate() error {
	if m.To == "" || m.Subject == "" {
		return ErrInvalidMessage
	}
	if m.HTML == "" && m.Text == "" {
		return ErrInvalidMessage
	}
	return nil
}

type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
