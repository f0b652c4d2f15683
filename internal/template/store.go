package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const cacheKeyPrefix = "template"

// Template is one resolved culture variant. An empty Culture is the
// culture-neutral variant.
type Template struct {
	Name    string `json:"name"`
	Culture string `json:"culture"`
	Content string `json:"content"`
}

// Summary describes an assignable template and its available cultures.
type Summary struct {
	Name     string   `json:"name"`
	Cultures []string `json:"cultures"`
}

type Store interface {
	// GetOrNull returns nil, nil when no variant of name is usable for culture.
	GetOrNull(ctx context.Context, name string, culture string) (*Template, error)
	List(ctx context.Context) ([]Summary, error)
}

// RepoStore resolves templates from the repository with culture fallback and
// caches resolved variants in Redis.
type RepoStore struct {
	repo           repository.TemplateRepository
	cache          *goredis.Client
	ttl            time.Duration
	defaultCulture string
	logger         *zap.Logger
}

type StoreOption func(*RepoStore)

func WithCache(client *goredis.Client, ttl time.Duration) StoreOption {
	return func(s *RepoStore) {
		s.cache = client
		s.ttl = ttl
	}
}

func NewRepoStore(repo repository.TemplateRepository, defaultCulture string, logger *zap.Logger, opts ...StoreOption) *RepoStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &RepoStore{
		repo:           repo,
		defaultCulture: defaultCulture,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RepoStore) GetOrNull(ctx context.Context, name string, culture string) (*Template, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: template name is required", domain.ErrValidation)
	}

	if cached := s.fromCache(ctx, name, culture); cached != nil {
		return cached, nil
	}

	cultures, err := s.repo.ListCultures(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list template cultures: %w", err)
	}

	selected, ok := selectCulture(cultures, culture, s.defaultCulture)
	if !ok {
		return nil, nil
	}

	variant, err := s.repo.Get(ctx, name, selected)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	tmpl := &Template{Name: variant.Name, Culture: variant.Culture, Content: variant.Content}
	s.toCache(ctx, culture, tmpl)
	return tmpl, nil
}

func (s *RepoStore) List(ctx context.Context) ([]Summary, error) {
	variants, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	var out []Summary
	for _, v := range variants {
		if n := len(out); n > 0 && out[n-1].Name == v.Name {
			out[n-1].Cultures = append(out[n-1].Cultures, v.Culture)
			continue
		}
		out = append(out, Summary{Name: v.Name, Cultures: []string{v.Culture}})
	}
	return out, nil
}

// selectCulture picks the exact culture, then the closest language match, then
// the default culture, then the culture-neutral variant.
func selectCulture(available []string, requested string, defaultCulture string) (string, bool) {
	if len(available) == 0 {
		return "", false
	}

	for _, c := range available {
		if c != "" && strings.EqualFold(c, requested) {
			return c, true
		}
	}

	if want, err := language.Parse(requested); err == nil {
		var tags []language.Tag
		var names []string
		for _, c := range available {
			if c == "" {
				continue
			}
			tag, err := language.Parse(c)
			if err != nil {
				continue
			}
			tags = append(tags, tag)
			names = append(names, c)
		}
		if len(tags) > 0 {
			_, idx, conf := language.NewMatcher(tags).Match(want)
			if conf != language.No {
				return names[idx], true
			}
		}
	}

	for _, c := range available {
		if c != "" && strings.EqualFold(c, defaultCulture) {
			return c, true
		}
	}

	if slices.Contains(available, "") {
		return "", true
	}
	return "", false
}

func cacheKey(name string, culture string) string {
	return fmt.Sprintf("%s:%s:%s", cacheKeyPrefix, name, strings.ToLower(culture))
}

func (s *RepoStore) fromCache(ctx context.Context, name string, culture string) *Template {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.Get(ctx, cacheKey(name, culture)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logger.Warn("template cache read failed", zap.String("template", name), zap.Error(err))
		}
		return nil
	}

	var tmpl Template
	if err := json.Unmarshal(raw, &tmpl); err != nil {
		s.logger.Warn("template cache entry is corrupt", zap.String("template", name), zap.Error(err))
		return nil
	}
	return &tmpl
}

// toCache stores tmpl under the requested culture so the fallback walk is
// skipped on the next lookup.
func (s *RepoStore) toCache(ctx context.Context, requested string, tmpl *Template) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(tmpl)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(tmpl.Name, requested), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("template cache write failed", zap.String("template", tmpl.Name), zap.Error(err))
	}
}
