package l10n

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/MimeLyc/cloudmaint/pkg/log"
)

// Catalog holds the translations of one app in one language.
type Catalog struct {
	lang         string
	translations map[string]string
	plurals      map[string][]string
}

type catalogFile struct {
	Translations map[string]json.RawMessage `json:"translations"`
	PluralForm   string                     `json:"pluralForm"`
}

func (c *Catalog) Language() string {
	return c.lang
}

// T translates text, returning it unchanged when there is no translation.
func (c *Catalog) T(text string) string {
	if v, ok := c.translations[text]; ok && v != "" {
		return v
	}
	if forms, ok := c.plurals[text]; ok && len(forms) > 0 {
		return forms[0]
	}
	return text
}

// Has reports whether text has a translation.
func (c *Catalog) Has(text string) bool {
	_, ok := c.translations[text]
	if !ok {
		_, ok = c.plurals[text]
	}
	return ok
}

// Strings returns every translated singular string.
func (c *Catalog) Strings() []string {
	ret := make([]string, 0, len(c.translations))
	for _, v := range c.translations {
		ret = append(ret, v)
	}
	return ret
}

// LoadCatalog reads the given catalog files; later files override earlier
// ones.
func LoadCatalog(lang string, files ...string) (*Catalog, error) {
	c := &Catalog{
		lang:         lang,
		translations: make(map[string]string),
		plurals:      make(map[string][]string),
	}
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var parsed catalogFile
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for key, value := range parsed.Translations {
			var single string
			if err := json.Unmarshal(value, &single); err == nil {
				c.translations[key] = single
				continue
			}
			var forms []string
			if err := json.Unmarshal(value, &forms); err == nil {
				c.plurals[key] = forms
			}
		}
	}
	return c, nil
}

// Get returns the catalog of app in lang. Missing files give an empty
// catalog that returns texts untranslated.
func (f *Factory) Get(app, lang string) *Catalog {
	key := scopeKey(app) + "|" + lang
	f.mu.RLock()
	cached, ok := f.catalogs[key]
	gen := f.generation
	f.mu.RUnlock()
	if ok {
		return cached
	}

	v, _, _ := f.loads.Do(fmt.Sprintf("catalog|%d|%s", gen, key), func() (any, error) {
		c, err := LoadCatalog(lang, f.L10nFilesForApp(app, lang)...)
		if err != nil {
			log.Warn("Failed to load %s catalog of %s: %v", lang, scopeKey(app), err)
			c, _ = LoadCatalog(lang)
		}
		f.mu.Lock()
		if f.generation == gen {
			f.catalogs[key] = c
		}
		f.mu.Unlock()
		return c, nil
	})
	return v.(*Catalog)
}
