package definition

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

type fileDefinition struct {
	Name        string   `json:"name"`
	Group       string   `json:"group"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	Scope       string   `json:"scope"`
	Lifetime    string   `json:"lifetime"`
	Providers   []string `json:"providers"`
	Template    string   `json:"template"`
}

type fileCatalog struct {
	Definitions []fileDefinition `json:"definitions"`
}

// LoadFile reads a JSON definition catalog from path into r.
func LoadFile(r *Registry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open definitions file: %w", err)
	}
	defer f.Close()

	return Load(r, f)
}

func Load(r *Registry, src io.Reader) error {
	var catalog fileCatalog
	dec := json.NewDecoder(src)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&catalog); err != nil {
		return fmt.Errorf("%w: failed to decode definitions: %v", domain.ErrValidation, err)
	}

	for _, fd := range catalog.Definitions {
		scope, err := domain.ParseScopeFromString(fd.Scope)
		if err != nil {
			return fmt.Errorf("definition %q: %w", fd.Name, err)
		}

		lifetime := domain.LifetimePersistent
		if fd.Lifetime != "" {
			lifetime, err = domain.ParseLifetimeFromString(fd.Lifetime)
			if err != nil {
				return fmt.Errorf("definition %q: %w", fd.Name, err)
			}
		}

		err = r.Register(domain.Definition{
			Name:        fd.Name,
			Group:       fd.Group,
			DisplayName: fd.DisplayName,
			Description: fd.Description,
			Scope:       scope,
			Lifetime:    lifetime,
			Providers:   fd.Providers,
			Template:    fd.Template,
		})
		if err != nil {
			return err
		}
	}

	return nil
}
