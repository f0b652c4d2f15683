package template

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	texttemplate "text/template"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// Global render context keys.
const (
	GlobalNotification   = "$notification"
	GlobalFormUser       = "$formUser"
	GlobalNotificationID = "$notificationId"
	GlobalTitle          = "$title"
	GlobalCreationTime   = "$creationTime"
)

// ErrStoreUnavailable marks a failed template lookup. The template content
// was never reached, so the render may succeed once the store recovers.
var ErrStoreUnavailable = errors.New("template store unavailable")

// CreationTimeLayout formats GlobalCreationTime.
const CreationTimeLayout = "2006-01-02 15:04:05"

type Renderer interface {
	Render(ctx context.Context, templateName string, model map[string]any, culture string, global map[string]any) (string, error)
}

// TextRenderer renders stored templates with text/template. Model keys are
// top-level fields; global keys are reachable with {{global "title"}} or
// {{index . "$title"}}.
type TextRenderer struct {
	store Store
}

func NewTextRenderer(store Store) *TextRenderer {
	return &TextRenderer{store: store}
}

func (r *TextRenderer) Render(
	ctx context.Context,
	templateName string,
	model map[string]any,
	culture string,
	global map[string]any,
) (string, error) {
	tmpl, err := r.store.GetOrNull(ctx, templateName, culture)
	if errors.Is(err, domain.ErrValidation) {
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if tmpl == nil {
		return "", fmt.Errorf("%w: template %q for culture %q", domain.ErrNotFound, templateName, culture)
	}

	data := make(map[string]any, len(model)+len(global))
	maps.Copy(data, model)
	maps.Copy(data, global)

	parsed, err := texttemplate.New(tmpl.Name).
		Funcs(texttemplate.FuncMap{
			"global": func(key string) any {
				return global["$"+strings.TrimPrefix(key, "$")]
			},
		}).
		Parse(tmpl.Content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", tmpl.Name, err)
	}

	var out strings.Builder
	if err := parsed.Execute(&out, data); err != nil {
		return "", fmt.Errorf("failed to execute template %q: %w", tmpl.Name, err)
	}
	return out.String(), nil
}
