package localization

import (
	"strings"

	"golang.org/x/text/language"
)

// Localizer resolves a display string key for a culture.
type Localizer interface {
	Localize(key string, culture string) string
}

// StaticLocalizer serves texts from an in-memory table keyed by culture.
// Unknown keys localize to themselves.
type StaticLocalizer struct {
	texts    map[language.Tag]map[string]string
	tags     []language.Tag
	matcher  language.Matcher
	fallback language.Tag
}

// NewStaticLocalizer builds a localizer from culture -> key -> text. The
// default culture is tried when the requested culture has no entry.
func NewStaticLocalizer(defaultCulture string, texts map[string]map[string]string) *StaticLocalizer {
	fallback, err := language.Parse(defaultCulture)
	if err != nil {
		fallback = language.English
	}

	l := &StaticLocalizer{
		texts:    make(map[language.Tag]map[string]string, len(texts)),
		fallback: fallback,
	}

	// fallback first so the matcher prefers it on no-match
	l.tags = append(l.tags, fallback)
	l.texts[fallback] = map[string]string{}
	for culture, entries := range texts {
		tag, err := language.Parse(culture)
		if err != nil {
			continue
		}
		if _, ok := l.texts[tag]; !ok {
			l.texts[tag] = map[string]string{}
			if tag != fallback {
				l.tags = append(l.tags, tag)
			}
		}
		for k, v := range entries {
			l.texts[tag][k] = v
		}
	}
	l.matcher = language.NewMatcher(l.tags)

	return l
}

func (l *StaticLocalizer) Localize(key string, culture string) string {
	if strings.TrimSpace(key) == "" {
		return key
	}

	if text, ok := l.texts[l.match(culture)][key]; ok {
		return text
	}
	if text, ok := l.texts[l.fallback][key]; ok {
		return text
	}
	return key
}

func (l *StaticLocalizer) match(culture string) language.Tag {
	if strings.TrimSpace(culture) == "" {
		return l.fallback
	}
	tag, err := language.Parse(culture)
	if err != nil {
		return l.fallback
	}
	_, idx, conf := l.matcher.Match(tag)
	if conf == language.No {
		return l.fallback
	}
	return l.tags[idx]
}
