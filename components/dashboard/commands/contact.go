package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// SubmitContactCommand validates and forwards contact messages.
type SubmitContactCommand struct {
	sender    dashboard.ContactSender
	telemetry Telemetry
}

// NewSubmitContactCommand builds a command instance.
func NewSubmitContactCommand(sender dashboard.ContactSender, telemetry Telemetry) *SubmitContactCommand {
	return &SubmitContactCommand{sender: sender, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[dashboard.ContactMessage] = (*SubmitContactCommand)(nil)

// Execute sends the message.
func (c *SubmitContactCommand) Execute(ctx context.Context, msg dashboard.ContactMessage) error {
	if c.sender == nil {
		return errors.New("contact command requires sender")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	msg = msg.Normalized()
	if err := c.sender.SendContact(ctx, msg); err != nil {
		c.telemetry.Record(ctx, "dashboard.contact.failed", map[string]any{"error": err.Error()})
		return err
	}
	c.telemetry.Record(ctx, "dashboard.contact.sent", map[string]any{"subject": msg.Subject})
	return nil
}
