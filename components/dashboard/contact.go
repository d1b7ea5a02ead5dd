package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrInvalidContact wraps contact messages missing required fields.
var ErrInvalidContact = errors.New("dashboard: invalid contact message")

// ContactMessage is a message sent from the contact page.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Normalized trims every field.
func (m ContactMessage) Normalized() ContactMessage {
	return ContactMessage{
		Name:    strings.TrimSpace(m.Name),
		Email:   strings.TrimSpace(m.Email),
		Subject: strings.TrimSpace(m.Subject),
		Message: strings.TrimSpace(m.Message),
	}
}

// Validate requires every field and a parseable email address.
func (m ContactMessage) Validate() error {
	m = m.Normalized()
	var missing []string
	if m.Name == "" {
		missing = append(missing, "name")
	}
	if m.Email == "" {
		missing = append(missing, "email")
	}
	if m.Subject == "" {
		missing = append(missing, "subject")
	}
	if m.Message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidContact, strings.Join(missing, ", "))
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return fmt.Errorf("%w: email: %v", ErrInvalidContact, err)
	}
	return nil
}

// ContactSender delivers contact messages.
type ContactSender interface {
	SendContact(ctx context.Context, msg ContactMessage) error
}
