package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"go.uber.org/multierr"
)

// Stage names the part of a tenant unit of work that failed.
type Stage string

const (
	StageRender         Stage = "render"
	StageTemplateLookup Stage = "template_lookup"
	StagePersist        Stage = "persist"
)

// TenantError is the failure of one tenant's unit of work.
type TenantError struct {
	TenantID string
	Stage    Stage
	Err      error
}

func (e *TenantError) Error() string {
	return fmt.Sprintf("tenant %s: %s: %v", observability.TenantLabel(e.TenantID), e.Stage, e.Err)
}

func (e *TenantError) Unwrap() error {
	return e.Err
}

// DispatchError aggregates the tenant units that failed for one event.
// Sibling tenants that succeeded are not represented.
type DispatchError struct {
	EventID string
	err     error
}

func newDispatchError(eventID string, errs []*TenantError) *DispatchError {
	var combined error
	for _, e := range errs {
		if e != nil {
			combined = multierr.Append(combined, e)
		}
	}
	if combined == nil {
		return nil
	}
	return &DispatchError{EventID: eventID, err: combined}
}

func (e *DispatchError) Error() string {
	parts := make([]string, 0, 2)
	for _, te := range e.Tenants() {
		parts = append(parts, te.Error())
	}
	return fmt.Sprintf("dispatch event %s: %s", e.EventID, strings.Join(parts, "; "))
}

func (e *DispatchError) Unwrap() []error {
	return multierr.Errors(e.err)
}

// Tenants returns the failed tenant units.
func (e *DispatchError) Tenants() []*TenantError {
	errs := multierr.Errors(e.err)
	out := make([]*TenantError, 0, len(errs))
	for _, err := range errs {
		var te *TenantError
		if errors.As(err, &te) {
			out = append(out, te)
		}
	}
	return out
}

// Permanent reports whether redelivering the event cannot help: every failed
// unit failed while rendering.
func (e *DispatchError) Permanent() bool {
	tenants := e.Tenants()
	if len(tenants) == 0 {
		return false
	}
	for _, te := range tenants {
		if te.Stage != StageRender {
			return false
		}
	}
	return true
}
