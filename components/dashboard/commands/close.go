package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
)

// CloseViewInput identifies the view session to unmount.
type CloseViewInput struct {
	ViewID string `json:"view_id"`
}

type closeService interface {
	CloseView(ctx context.Context, id string) error
}

// CloseViewCommand wraps Service.CloseView.
type CloseViewCommand struct {
	service   closeService
	telemetry Telemetry
}

// NewCloseViewCommand builds a command instance.
func NewCloseViewCommand(service closeService, telemetry Telemetry) *CloseViewCommand {
	return &CloseViewCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[CloseViewInput] = (*CloseViewCommand)(nil)

// Execute unmounts the view.
func (c *CloseViewCommand) Execute(ctx context.Context, msg CloseViewInput) error {
	if c.service == nil {
		return errors.New("close view command requires service")
	}
	if msg.ViewID == "" {
		return errMissingViewID
	}
	if err := c.service.CloseView(ctx, msg.ViewID); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "dashboard.command.close", map[string]any{"view_id": msg.ViewID})
	return nil
}
