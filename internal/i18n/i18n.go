// Package i18n holds the UI message catalogs and locale negotiation.
//
// Catalogs are YAML files embedded from locales/, one per locale. Nested
// keys are flattened with dots, so
//
//	auth:
//	  login: ログイン
//
// is looked up as "auth.login".
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Supported locales. The first one is the default.
const (
	Japanese = "ja"
	English  = "en"
)

// Default is used when nothing else matches.
const Default = Japanese

//go:embed locales/*.yaml
var localeFS embed.FS

// Catalog maps locale -> key -> message.
type Catalog struct {
	messages map[string]map[string]string
	locales  []string
	matcher  language.Matcher
	fallback string
}

// Load parses every embedded locale file.
func Load() (*Catalog, error) {
	return LoadDefault(Default)
}

// LoadDefault is Load with another fallback locale.
func LoadDefault(fallback string) (*Catalog, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}

	c := &Catalog{messages: make(map[string]map[string]string), fallback: fallback}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + name)
		if err != nil {
			return nil, err
		}
		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		flat := make(map[string]string)
		flatten("", tree, flat)
		c.messages[strings.TrimSuffix(name, ".yaml")] = flat
	}
	if _, ok := c.messages[c.fallback]; !ok {
		return nil, fmt.Errorf("missing default locale %q", c.fallback)
	}

	// Default first so the matcher prefers it on ties.
	c.locales = append(c.locales, c.fallback)
	others := make([]string, 0, len(c.messages))
	for l := range c.messages {
		if l != c.fallback {
			others = append(others, l)
		}
	}
	sort.Strings(others)
	c.locales = append(c.locales, others...)

	tags := make([]language.Tag, len(c.locales))
	for i, l := range c.locales {
		tags[i] = language.Make(l)
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// MustLoad is Load that panics on error. The catalogs are embedded, so a
// failure is a build defect.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Locales returns the supported locales, default first.
func (c *Catalog) Locales() []string {
	return append([]string(nil), c.locales...)
}

// Supports reports whether locale has a catalog.
func (c *Catalog) Supports(locale string) bool {
	_, ok := c.messages[locale]
	return ok
}

// T returns the message for key in locale, falling back to the default
// locale and finally to the key itself. Args are applied with fmt.Sprintf.
func (c *Catalog) T(locale, key string, args ...any) string {
	msg, ok := c.messages[locale][key]
	if !ok {
		msg, ok = c.messages[c.fallback][key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// Has reports whether key exists in locale (without fallback).
func (c *Catalog) Has(locale, key string) bool {
	_, ok := c.messages[locale][key]
	return ok
}

// Keys returns every key of locale, sorted.
func (c *Catalog) Keys(locale string) []string {
	keys := make([]string, 0, len(c.messages[locale]))
	for k := range c.messages[locale] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Negotiate picks a locale: an explicit preference (cookie or path) wins if
// supported, then the Accept-Language header, then the default.
func (c *Catalog) Negotiate(preferred, acceptLanguage string) string {
	if preferred != "" && c.Supports(preferred) {
		return preferred
	}
	if acceptLanguage == "" {
		return c.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.fallback
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return c.fallback
	}
	return c.locales[idx]
}
