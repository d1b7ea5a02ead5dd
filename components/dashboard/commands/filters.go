package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// ApplyFiltersInput carries one selection edit for a mounted view.
type ApplyFiltersInput struct {
	ViewID   string                   `json:"view_id"`
	Mutation dashboard.FilterMutation `json:"mutation"`
}

type filterService interface {
	ApplyFilters(ctx context.Context, id string, mutation dashboard.FilterMutation) (dashboard.ViewSnapshot, error)
}

// ApplyFiltersCommand wraps Service.ApplyFilters.
type ApplyFiltersCommand struct {
	service   filterService
	telemetry Telemetry
}

// NewApplyFiltersCommand builds a command instance.
func NewApplyFiltersCommand(service filterService, telemetry Telemetry) *ApplyFiltersCommand {
	return &ApplyFiltersCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ApplyFiltersInput] = (*ApplyFiltersCommand)(nil)

// Execute applies the edit.
func (c *ApplyFiltersCommand) Execute(ctx context.Context, msg ApplyFiltersInput) error {
	if c.service == nil {
		return errors.New("apply filters command requires service")
	}
	if msg.ViewID == "" {
		return errMissingViewID
	}
	snap, err := c.service.ApplyFilters(ctx, msg.ViewID, msg.Mutation)
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, "dashboard.command.filters", map[string]any{
		"view_id": msg.ViewID,
		"action":  string(msg.Mutation.Action),
		"url":     snap.URL,
	})
	return nil
}
