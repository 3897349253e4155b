// Package executor maps each flow kind to the external system that does its
// work: dispatching a flow starts that work, and callbacks from the system
// are interpreted into flow outcomes.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbmesh/ticketflow/pkg/models"
)

var (
	// ErrUnknownFlowKind is returned when no executor handles a flow kind.
	ErrUnknownFlowKind = errors.New("unknown flow kind")
	// ErrCallbackNotSupported is returned for flow kinds that complete
	// without external callbacks.
	ErrCallbackNotSupported = errors.New("flow kind does not accept callbacks")
	// ErrMalformedCallback is returned when a callback payload is missing
	// required fields.
	ErrMalformedCallback = errors.New("malformed callback payload")
	// ErrFlowMisconfigured is returned when a flow's details lack something
	// its executor needs.
	ErrFlowMisconfigured = errors.New("flow details misconfigured")
)

// Outcome is the interpreted result of a callback. Status is RUNNING when
// the callback was a progress update and the flow should keep waiting.
type Outcome struct {
	Status models.FlowStatus
	Output map[string]any
	Error  string
}

// Executor drives one flow kind. Dispatch may mutate the flow (external
// reference, due time); the engine persists it afterwards.
type Executor interface {
	Kind() models.FlowKind
	Dispatch(ctx context.Context, ticket *models.Ticket, flow *models.Flow) error
	InterpretCallback(ctx context.Context, flow *models.Flow, payload map[string]any) (Outcome, error)
}

// Canceler is implemented by executors whose external system accepts a
// cancel request for in-flight work. Cancellation is best-effort; the engine
// terminates the flow whether or not the request lands.
type Canceler interface {
	Cancel(ctx context.Context, flow *models.Flow) error
}

// Set indexes executors by flow kind.
type Set struct {
	executors map[models.FlowKind]Executor
}

func NewSet(executors ...Executor) *Set {
	indexed := make(map[models.FlowKind]Executor, len(executors))
	for _, e := range executors {
		indexed[e.Kind()] = e
	}

	return &Set{executors: indexed}
}

func (s *Set) ForKind(kind models.FlowKind) (Executor, error) {
	e, ok := s.executors[kind]
	if !ok {
		return nil, fmt.Errorf("no executor for kind %q: %w", kind, ErrUnknownFlowKind)
	}

	return e, nil
}

func stringField(payload map[string]any, key string) (string, error) {
	value, ok := payload[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("missing %q field: %w", key, ErrMalformedCallback)
	}

	return value, nil
}

func mapField(payload map[string]any, key string) map[string]any {
	value, _ := payload[key].(map[string]any)

	return value
}
