package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Scope controls tenant fan-out of a notification.
type Scope string

const (
	ScopeSystem Scope = "SYSTEM"
	ScopeTenant Scope = "TENANT"
)

func (s Scope) String() string { return string(s) }

func (s Scope) IsValid() bool {
	switch s {
	case ScopeSystem, ScopeTenant:
		return true
	}
	return false
}

func ParseScopeFromString(s string) (Scope, error) {
	sc := Scope(strings.ToUpper(strings.TrimSpace(s)))
	if !sc.IsValid() {
		return "", fmt.Errorf("%w: invalid scope %q", ErrValidation, s)
	}
	return sc, nil
}

// Lifetime controls whether delivery consumes the triggering subscription.
type Lifetime string

const (
	LifetimePersistent Lifetime = "PERSISTENT"
	LifetimeOnlyOne    Lifetime = "ONLY_ONE"
)

func (l Lifetime) String() string { return string(l) }

func (l Lifetime) IsValid() bool {
	switch l {
	case LifetimePersistent, LifetimeOnlyOne:
		return true
	}
	return false
}

func ParseLifetimeFromString(s string) (Lifetime, error) {
	lt := Lifetime(strings.ToUpper(strings.TrimSpace(s)))
	if !lt.IsValid() {
		return "", fmt.Errorf("%w: invalid lifetime %q", ErrValidation, s)
	}
	return lt, nil
}

// Definition is a static catalog entry describing a named notification.
type Definition struct {
	Name        string
	Group       string
	DisplayName string
	Description string
	Scope       Scope
	Lifetime    Lifetime
	// Providers restricts delivery to the named providers. Empty means all.
	Providers []string
	// Template is the default template used by the send API.
	Template string
}

func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: definition name is required", ErrValidation)
	}
	if !d.Scope.IsValid() {
		return fmt.Errorf("%w: definition %q has invalid scope %q", ErrValidation, d.Name, d.Scope)
	}
	if !d.Lifetime.IsValid() {
		return fmt.Errorf("%w: definition %q has invalid lifetime %q", ErrValidation, d.Name, d.Lifetime)
	}
	return nil
}

// AllowsProvider reports whether the definition permits delivery through name.
func (d *Definition) AllowsProvider(name string) bool {
	return len(d.Providers) == 0 || slices.Contains(d.Providers, name)
}
