package commands

import (
	"context"
	"encoding/json"
	"errors"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// SetParamsInput replaces fields of one fetcher's params.
type SetParamsInput struct {
	ViewID  string          `json:"view_id"`
	Fetcher string          `json:"fetcher"`
	Params  json.RawMessage `json:"params"`
}

type paramsService interface {
	SetParams(ctx context.Context, id, fetcher string, params json.RawMessage) (dashboard.ViewSnapshot, error)
}

// SetParamsCommand wraps Service.SetParams.
type SetParamsCommand struct {
	service   paramsService
	telemetry Telemetry
}

// NewSetParamsCommand builds a command instance.
func NewSetParamsCommand(service paramsService, telemetry Telemetry) *SetParamsCommand {
	return &SetParamsCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[SetParamsInput] = (*SetParamsCommand)(nil)

// Execute updates the params.
func (c *SetParamsCommand) Execute(ctx context.Context, msg SetParamsInput) error {
	if c.service == nil {
		return errors.New("set params command requires service")
	}
	if msg.ViewID == "" {
		return errMissingViewID
	}
	if msg.Fetcher == "" {
		return errors.New("set params command requires fetcher")
	}
	if _, err := c.service.SetParams(ctx, msg.ViewID, msg.Fetcher, msg.Params); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "dashboard.command.params", map[string]any{
		"view_id": msg.ViewID,
		"fetcher": msg.Fetcher,
	})
	return nil
}
