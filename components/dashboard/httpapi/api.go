package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-commerce-dashboard/components/dashboard"
	"github.com/goliatone/go-commerce-dashboard/components/dashboard/commands"
	"github.com/goliatone/go-commerce-dashboard/components/dashboard/queries"
)

// Executor is the transport-facing surface of the dashboard commands.
type Executor interface {
	ApplyFilters(ctx context.Context, input commands.ApplyFiltersInput) (dashboard.ViewSnapshot, error)
	SetParams(ctx context.Context, input commands.SetParamsInput) (dashboard.ViewSnapshot, error)
	CloseView(ctx context.Context, input commands.CloseViewInput) error
	Snapshot(ctx context.Context, input queries.ViewSnapshotInput) (dashboard.ViewSnapshot, error)
	SubmitContact(ctx context.Context, msg dashboard.ContactMessage) error
}

// CommandExecutor runs go-command commanders and reads the resulting state
// back through the snapshot query.
type CommandExecutor struct {
	Filters   gocommand.Commander[commands.ApplyFiltersInput]
	Params    gocommand.Commander[commands.SetParamsInput]
	Close     gocommand.Commander[commands.CloseViewInput]
	Contact   gocommand.Commander[dashboard.ContactMessage]
	Snapshots gocommand.Querier[queries.ViewSnapshotInput, dashboard.ViewSnapshot]
}

var errNotConfigured = errors.New("httpapi: command not configured")

// NewCommandExecutor wires the default commands against a service.
func NewCommandExecutor(service *dashboard.Service, sender dashboard.ContactSender, telemetry commands.Telemetry) *CommandExecutor {
	exec := &CommandExecutor{
		Filters:   commands.NewApplyFiltersCommand(service, telemetry),
		Params:    commands.NewSetParamsCommand(service, telemetry),
		Close:     commands.NewCloseViewCommand(service, telemetry),
		Snapshots: queries.NewViewSnapshotQuery(service),
	}
	if sender != nil {
		exec.Contact = commands.NewSubmitContactCommand(sender, telemetry)
	}
	return exec
}

// ApplyFilters implements Executor.
func (e *CommandExecutor) ApplyFilters(ctx context.Context, input commands.ApplyFiltersInput) (dashboard.ViewSnapshot, error) {
	if e.Filters == nil {
		return dashboard.ViewSnapshot{}, errNotConfigured
	}
	if err := e.Filters.Execute(ctx, input); err != nil {
		return dashboard.ViewSnapshot{}, err
	}
	return e.Snapshot(ctx, queries.ViewSnapshotInput{ViewID: input.ViewID})
}

// SetParams implements Executor.
func (e *CommandExecutor) SetParams(ctx context.Context, input commands.SetParamsInput) (dashboard.ViewSnapshot, error) {
	if e.Params == nil {
		return dashboard.ViewSnapshot{}, errNotConfigured
	}
	if err := e.Params.Execute(ctx, input); err != nil {
		return dashboard.ViewSnapshot{}, err
	}
	return e.Snapshot(ctx, queries.ViewSnapshotInput{ViewID: input.ViewID})
}

// CloseView implements Executor.
func (e *CommandExecutor) CloseView(ctx context.Context, input commands.CloseViewInput) error {
	if e.Close == nil {
		return errNotConfigured
	}
	return e.Close.Execute(ctx, input)
}

// Snapshot implements Executor.
func (e *CommandExecutor) Snapshot(ctx context.Context, input queries.ViewSnapshotInput) (dashboard.ViewSnapshot, error) {
	if e.Snapshots == nil {
		return dashboard.ViewSnapshot{}, errNotConfigured
	}
	return e.Snapshots.Query(ctx, input)
}

// SubmitContact implements Executor.
func (e *CommandExecutor) SubmitContact(ctx context.Context, msg dashboard.ContactMessage) error {
	if e.Contact == nil {
		return errNotConfigured
	}
	return e.Contact.Execute(ctx, msg)
}

// StatusFor maps dashboard errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, dashboard.ErrViewNotFound), errors.Is(err, dashboard.ErrUnknownView):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrInvalidParams),
		errors.Is(err, dashboard.ErrInvalidMutation),
		errors.Is(err, dashboard.ErrInvalidContact):
		return http.StatusBadRequest
	case errors.Is(err, errNotConfigured):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Handlers exposes the executor over plain net/http.
type Handlers struct {
	API Executor
}

// HandleApplyFilters decodes a FilterMutation and answers with the new snapshot.
func (h *Handlers) HandleApplyFilters(w http.ResponseWriter, r *http.Request, viewID string) {
	var mutation dashboard.FilterMutation
	if err := json.NewDecoder(r.Body).Decode(&mutation); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := h.API.ApplyFilters(r.Context(), commands.ApplyFiltersInput{ViewID: viewID, Mutation: mutation})
	if err != nil {
		writeError(w, StatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleSetParams decodes {"fetcher": ..., "params": {...}}.
func (h *Handlers) HandleSetParams(w http.ResponseWriter, r *http.Request, viewID string) {
	var payload commands.SetParamsInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload.ViewID = viewID
	snap, err := h.API.SetParams(r.Context(), payload)
	if err != nil {
		writeError(w, StatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleSnapshot returns the view state.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request, viewID string) {
	snap, err := h.API.Snapshot(r.Context(), queries.ViewSnapshotInput{ViewID: viewID})
	if err != nil {
		writeError(w, StatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleCloseView unmounts the view.
func (h *Handlers) HandleCloseView(w http.ResponseWriter, r *http.Request, viewID string) {
	if err := h.API.CloseView(r.Context(), commands.CloseViewInput{ViewID: viewID}); err != nil {
		writeError(w, StatusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleContact forwards a contact message.
func (h *Handlers) HandleContact(w http.ResponseWriter, r *http.Request) {
	var msg dashboard.ContactMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.API.SubmitContact(r.Context(), msg); err != nil {
		writeError(w, StatusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
