package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventData is the rendering payload of an inbound event. A non-empty
// TemplateName selects template rendering; otherwise ExtraProperties carries
// pre-built standard data.
type EventData struct {
	TemplateName    string         `json:"templateName,omitempty"`
	Culture         string         `json:"culture,omitempty"`
	FormUser        string         `json:"formUser,omitempty"`
	ExtraProperties map[string]any `json:"extraProperties,omitempty"`
}

func (d EventData) IsTemplate() bool {
	return strings.TrimSpace(d.TemplateName) != ""
}

// Event is one "notification occurred" unit of work entering the pipeline.
// An empty TenantID denotes the host.
type Event struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	TenantID     string           `json:"tenantId,omitempty"`
	Severity     Severity         `json:"severity"`
	CreationTime time.Time        `json:"creationTime"`
	Data         EventData        `json:"data"`
	Users        []UserIdentifier `json:"users,omitempty"`
	UseProviders []string         `json:"useProviders,omitempty"`
}

func (e *Event) Validate() error {
	if _, err := uuid.Parse(strings.TrimSpace(e.ID)); err != nil {
		return fmt.Errorf("%w: event id must be a uuid", ErrValidation)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: event name is required", ErrValidation)
	}
	if e.TenantID != "" {
		if _, err := uuid.Parse(e.TenantID); err != nil {
			return fmt.Errorf("%w: tenant id must be a uuid", ErrValidation)
		}
	}
	if !e.Severity.IsValid() {
		return fmt.Errorf("%w: invalid severity %q", ErrValidation, e.Severity)
	}
	for _, u := range e.Users {
		if strings.TrimSpace(u.UserID) == "" {
			return fmt.Errorf("%w: user id is required", ErrValidation)
		}
	}
	return nil
}
