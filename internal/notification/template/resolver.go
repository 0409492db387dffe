// internal/notification/template/resolver.go
package template

import (
	"sort"
	"strings"

	"fms-alerts/internal/common/config"
)

const (
	LanguageEnglish         = "en"
	DefaultLanguage         = "ar"
	DefaultEnglishSuffix    = "_en"
	defaultTemplatePriority = "normal"
)

// Config is the static alert-type mapping plus language conventions.
type Config struct {
	Entries         []config.TemplateEntry
	DefaultLanguage string
	EnglishSuffix   string
}

// FromAlertsConfig builds a resolver config from the application config.
func FromAlertsConfig(cfg config.AlertsConfig) Config {
	return Config{
		Entries:         cfg.Templates,
		DefaultLanguage: cfg.DefaultLanguage,
		EnglishSuffix:   cfg.EnglishSuffix,
	}
}

// Resolution is a resolved template for one alert type.
type Resolution struct {
	AlertType    string `json:"alertType"` // mapping key that matched
	TemplateCode string `json:"templateCode"`
	Language     string `json:"language"`
	Priority     string `json:"priority"`
	Normalized   bool   `json:"normalized"` // matched via the normalized input
}

// Resolver maps raw FMS alert types to WhatsApp template codes.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	exact       map[string]config.TemplateEntry
	entries     []config.TemplateEntry
	defaultLang string
	suffix      string
}

func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		exact:       make(map[string]config.TemplateEntry, len(cfg.Entries)),
		entries:     make([]config.TemplateEntry, 0, len(cfg.Entries)),
		defaultLang: cfg.DefaultLanguage,
		suffix:      cfg.EnglishSuffix,
	}
	if r.defaultLang == "" {
		r.defaultLang = DefaultLanguage
	}
	if r.suffix == "" {
		r.suffix = DefaultEnglishSuffix
	}

	for _, e := range cfg.Entries {
		if e.Priority == "" {
			e.Priority = defaultTemplatePriority
		}
		if _, dup := r.exact[e.AlertType]; dup {
			continue
		}
		r.exact[e.AlertType] = e
		r.entries = append(r.entries, e)
	}

	return r
}

// Resolve looks up the alert type as given, then its normalized form. Table
// keys are matched as written, so "Geofence Out" is reachable only by that
// exact string. ok is false when there is no mapping; that is not an error.
func (r *Resolver) Resolve(alertType string) (Resolution, bool) {
	if e, ok := r.exact[alertType]; ok {
		return r.resolution(e, false), true
	}
	if e, ok := r.exact[Normalize(alertType)]; ok {
		return r.resolution(e, true), true
	}
	return Resolution{}, false
}

// LanguageFor derives the template language from its code suffix.
func (r *Resolver) LanguageFor(templateCode string) string {
	if strings.HasSuffix(templateCode, r.suffix) {
		return LanguageEnglish
	}
	return r.defaultLang
}

// DefaultLanguage is the language used for codes without the English suffix.
func (r *Resolver) DefaultLanguage() string {
	return r.defaultLang
}

// Templates returns the mapping sorted by alert type.
func (r *Resolver) Templates() []Resolution {
	out := make([]Resolution, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, r.resolution(e, false))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlertType < out[j].AlertType })
	return out
}

// EnglishTemplates returns only the mappings whose template resolves to English.
func (r *Resolver) EnglishTemplates() []Resolution {
	var out []Resolution
	for _, res := range r.Templates() {
		if res.Language == LanguageEnglish {
			out = append(out, res)
		}
	}
	return out
}

func (r *Resolver) resolution(e config.TemplateEntry, normalized bool) Resolution {
	return Resolution{
		AlertType:    e.AlertType,
		TemplateCode: e.Template,
		Language:     r.LanguageFor(e.Template),
		Priority:     e.Priority,
		Normalized:   normalized,
	}
}

var normalizer = strings.NewReplacer(" ", "_", "-", "_")

// Normalize lowercases an alert type and turns spaces and hyphens into underscores.
func Normalize(alertType string) string {
	return normalizer.Replace(strings.ToLower(strings.TrimSpace(alertType)))
}
