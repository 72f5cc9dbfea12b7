// Package i18n resolves localization keys carried in backend error
// descriptions. Bundles are YAML files named after their locale, e.g.
// zh-CN.yaml, holding key → template pairs with {0}, {1}… placeholders.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/atu-ide/bizbridge/internal/logging"
)

// Localizer turns a key and positional parameters into a display string
type Localizer interface {
	Localize(key string, params ...string) string
}

// Catalog holds message bundles for several locales and serves the one
// best matching the preferred locale.
type Catalog struct {
	mu        sync.RWMutex
	preferred language.Tag
	tags      []language.Tag
	bundles   map[language.Tag]map[string]string
	active    map[string]string
	activeTag language.Tag
	dir       string
}

// NewCatalog creates an empty catalog preferring locale (BCP 47, e.g. "zh-CN")
func NewCatalog(locale string) (*Catalog, error) {
	tag := language.English
	if locale != "" {
		t, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
		}
		tag = t
	}
	return &Catalog{
		preferred: tag,
		bundles:   make(map[language.Tag]map[string]string),
	}, nil
}

// Add merges messages into the bundle for tag
func (c *Catalog) Add(tag language.Tag, messages map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.bundles[tag]
	if !ok {
		b = make(map[string]string, len(messages))
		c.bundles[tag] = b
		c.tags = append(c.tags, tag)
	}
	for k, v := range messages {
		b[k] = v
	}
	c.rematch()
}

// LoadDir replaces all bundles with the *.yaml / *.yml files in dir
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read bundle dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	bundles := make(map[language.Tag]map[string]string, len(names))
	tags := make([]language.Tag, 0, len(names))
	for _, name := range names {
		locale := strings.TrimSuffix(name, filepath.Ext(name))
		tag, err := language.Parse(locale)
		if err != nil {
			logging.Warn().Str("file", name).Err(err).Msg("skipping bundle with invalid locale name")
			continue
		}
		msgs, err := loadBundle(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, dup := bundles[tag]; !dup {
			tags = append(tags, tag)
			bundles[tag] = msgs
			continue
		}
		for k, v := range msgs {
			bundles[tag][k] = v
		}
	}

	c.mu.Lock()
	c.dir = dir
	c.bundles = bundles
	c.tags = tags
	c.rematch()
	active := c.activeTag
	c.mu.Unlock()

	logging.Info().Str("dir", dir).Int("bundles", len(tags)).Str("locale", active.String()).Msg("loaded message bundles")
	return nil
}

func loadBundle(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bundle %s: %w", filepath.Base(path), err)
	}
	out := make(map[string]string)
	flatten("", raw, out)
	return out, nil
}

// flatten turns nested maps into dotted keys: {err: {timeout: x}} → err.timeout
func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
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
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// rematch picks the active bundle; callers hold c.mu
func (c *Catalog) rematch() {
	if len(c.tags) == 0 {
		c.active = nil
		c.activeTag = language.Und
		return
	}
	m := language.NewMatcher(c.tags)
	_, idx, _ := m.Match(c.preferred)
	c.activeTag = c.tags[idx]
	c.active = c.bundles[c.activeTag]
}

// SetLocale changes the preferred locale and rematches
func (c *Catalog) SetLocale(locale string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preferred = tag
	c.rematch()
	return nil
}

// Locale returns the tag of the bundle currently in use
func (c *Catalog) Locale() language.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeTag
}

// Localize expands key with params. Unknown keys fall back to the key itself.
func (c *Catalog) Localize(key string, params ...string) string {
	c.mu.RLock()
	tmpl, ok := c.active[key]
	c.mu.RUnlock()

	if !ok {
		logging.Debug().Str("key", key).Msg("missing localization key")
		tmpl = key
	}
	return Format(tmpl, params...)
}

// Format replaces {0}, {1}… with params by position. Placeholders without
// a matching parameter are left as they are.
func Format(tmpl string, params ...string) string {
	if len(params) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}

	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '{' {
			b.WriteByte(tmpl[i])
			continue
		}
		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		n, err := strconv.Atoi(tmpl[i+1 : i+end])
		if err != nil || n < 0 || n >= len(params) {
			b.WriteByte('{')
			continue
		}
		b.WriteString(params[n])
		i += end
	}
	return b.String()
}
