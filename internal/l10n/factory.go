// Package l10n resolves the display language of a request from the system
// settings, the user's stored preference and the Accept-Language header, and
// knows which translation catalogs exist for core, lib and every app.
package l10n

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/cloudmaint/pkg/file"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

const (
	fallbackLanguage = "en"

	// preference stored per user as core.lang
	langApp = "core"
	langKey = "lang"
)

var (
	ErrLanguageNotFound = errors.New("language not found")
	ErrNoUserSession    = errors.New("no user in session")
)

// SystemConfig exposes the system settings language resolution reads.
type SystemConfig interface {
	ForceLanguage() (string, bool)
	DefaultLanguage() (string, bool)
	ReduceToLanguages() []string
	Theme() string
	Installed() bool
}

// UserPreferences reads and writes per-user values such as core.lang.
type UserPreferences interface {
	UserValue(ctx context.Context, uid, app, key string) (string, bool, error)
	SetUserValue(ctx context.Context, uid, app, key, value string) error
}

// AppLocator finds the directory of an installed app.
type AppLocator interface {
	AppPath(app string) (string, error)
}

type Factory struct {
	config     SystemConfig
	prefs      UserPreferences
	apps       AppLocator
	serverRoot string

	mu         sync.RWMutex
	generation uint64
	available  map[string][]string
	catalogs  map[string]*Catalog
	loads     singleflight.Group
}

func NewFactory(config SystemConfig, prefs UserPreferences, apps AppLocator, serverRoot string) *Factory {
	return &Factory{
		config:     config,
		prefs:      prefs,
		apps:       apps,
		serverRoot: filepath.Clean(serverRoot),
		available:  make(map[string][]string),
		catalogs:   make(map[string]*Catalog),
	}
}

// Reset drops the cached language lists and catalogs.
func (f *Factory) Reset() {
	f.mu.Lock()
	f.generation++
	f.available = make(map[string][]string)
	f.catalogs = make(map[string]*Catalog)
	f.mu.Unlock()
}

// FindLanguage returns the language to use for app ("" is core) within req.
// The result is remembered on req.
func (f *Factory) FindLanguage(ctx context.Context, req *Request, app string) string {
	if forced, ok := f.config.ForceLanguage(); ok {
		req.lang = forced
	}

	if req.lang != "" && f.LanguageExists(app, req.lang) {
		return req.lang
	}

	// only an installed system has authenticated users
	uid := ""
	userLang := ""
	if f.config.Installed() && req.UserID != "" {
		uid = req.UserID
		userLang = f.userLanguage(ctx, uid)
		if userLang != "" {
			req.lang = userLang
			if f.LanguageExists(app, userLang) {
				return userLang
			}
		}
	}

	lang, err := f.LanguageFromRequest(req, app)
	if err == nil {
		if uid != "" && scopeKey(app) == "core" && userLang == "" {
			if err := f.prefs.SetUserValue(ctx, uid, langApp, langKey, lang); err != nil {
				log.Warn("Failed to store language %s for %s: %v", lang, uid, err)
			}
		}
		return lang
	}

	if def, ok := f.config.DefaultLanguage(); ok && f.LanguageExists(app, def) {
		return def
	}
	return fallbackLanguage
}

// FindGenericLanguage resolves a language without request caching, for
// output that is not bound to one app such as emails and notifications.
func (f *Factory) FindGenericLanguage(ctx context.Context, req *Request, app string) string {
	if forced, ok := f.config.ForceLanguage(); ok {
		return forced
	}
	if def, ok := f.config.DefaultLanguage(); ok && f.LanguageExists(app, def) {
		return def
	}
	if !f.config.Installed() {
		return fallbackLanguage
	}
	if req.UserID != "" {
		if userLang := f.userLanguage(ctx, req.UserID); userLang != "" {
			return userLang
		}
	}
	if lang, err := f.LanguageFromRequest(req, app); err == nil {
		return lang
	}
	return fallbackLanguage
}

func (f *Factory) userLanguage(ctx context.Context, uid string) string {
	lang, ok, err := f.prefs.UserValue(ctx, uid, langApp, langKey)
	if err != nil {
		log.Warn("Failed to read language of %s: %v", uid, err)
		return ""
	}
	if !ok {
		return ""
	}
	return lang
}

// LanguageFromRequest picks the first Accept-Language preference that is
// available for app.
func (f *Factory) LanguageFromRequest(req *Request, app string) (string, error) {
	preferences := parseAcceptLanguage(req.AcceptLanguage)
	if len(preferences) == 0 {
		return "", ErrLanguageNotFound
	}

	available := slices.Clone(f.FindAvailableLanguages(app))
	// "de" must be seen before "de_DE"
	sort.Strings(available)

	for _, preferred := range preferences {
		parts := strings.Split(preferred, "_")
		short := parts[0] + "_" + parts[len(parts)-1]
		for _, candidate := range available {
			lower := strings.ToLower(candidate)
			if preferred == lower {
				return f.respectDefaultLanguage(app, candidate), nil
			}
			if lower == short {
				return candidate, nil
			}
		}
		// de_DE falls back to de
		prefix := preferred
		if len(prefix) > 2 {
			prefix = prefix[:2]
		}
		for _, candidate := range available {
			if candidate == prefix {
				return candidate, nil
			}
		}
	}
	return "", ErrLanguageNotFound
}

// respectDefaultLanguage prefers the formal German variant when the system
// default is de_DE.
func (f *Factory) respectDefaultLanguage(app, lang string) string {
	def, ok := f.config.DefaultLanguage()
	if ok && strings.ToLower(lang) == "de" && strings.ToLower(def) == "de_de" && f.LanguageExists(app, "de_DE") {
		return "de_DE"
	}
	return lang
}

// LanguageExists reports whether app has a catalog for lang. English always
// exists.
func (f *Factory) LanguageExists(app, lang string) bool {
	if lang == fallbackLanguage {
		return true
	}
	return slices.Contains(f.FindAvailableLanguages(app), lang)
}

// FindAvailableLanguages lists the languages with a catalog for app, including
// the theme's catalogs. The result always contains "en".
func (f *Factory) FindAvailableLanguages(app string) []string {
	key := scopeKey(app)
	f.mu.RLock()
	cached, ok := f.available[key]
	gen := f.generation
	f.mu.RUnlock()
	if ok {
		return cached
	}

	v, _, _ := f.loads.Do(fmt.Sprintf("available|%d|%s", gen, key), func() (any, error) {
		langs := f.scanAvailableLanguages(app)
		f.mu.Lock()
		// a Reset during the scan makes this list stale
		if f.generation == gen {
			f.available[key] = langs
		}
		f.mu.Unlock()
		return langs, nil
	})
	return v.([]string)
}

func (f *Factory) scanAvailableLanguages(app string) []string {
	dir := f.findL10nDir(app)
	ret := []string{fallbackLanguage}
	ret = appendCatalogNames(ret, dir)
	if themeDir, ok := f.themeDir(dir); ok {
		ret = appendCatalogNames(ret, themeDir)
	}
	return ret
}

func appendCatalogNames(dst []string, dir string) []string {
	names, err := file.BaseNamesWithExt(dir, ".json")
	if err != nil {
		log.Warn("Failed to read l10n dir %s: %v", dir, err)
		return dst
	}
	for _, lang := range names {
		if strings.HasPrefix(lang, "l10n") || slices.Contains(dst, lang) {
			continue
		}
		dst = append(dst, lang)
	}
	return dst
}

// findL10nDir returns the catalog directory of app. Unknown apps use core.
func (f *Factory) findL10nDir(app string) string {
	switch app {
	case "", "core":
		return filepath.Join(f.serverRoot, "core", "l10n")
	case "lib":
		return filepath.Join(f.serverRoot, "lib", "l10n")
	}
	if f.apps != nil {
		if appPath, err := f.apps.AppPath(app); err == nil {
			return filepath.Join(appPath, "l10n")
		}
	}
	return filepath.Join(f.serverRoot, "core", "l10n")
}

// themeDir maps a catalog directory below the server root to its override
// in the configured theme.
func (f *Factory) themeDir(dir string) (string, bool) {
	theme := f.config.Theme()
	if theme == "" {
		return "", false
	}
	rel, err := filepath.Rel(f.serverRoot, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(f.serverRoot, "themes", theme, rel), true
}

// L10nFilesForApp returns the catalog files to load for app in lang: the
// catalog itself and the theme's override, when they exist.
func (f *Factory) L10nFilesForApp(app, lang string) []string {
	ret := make([]string, 0, 2)
	if lang == "" || strings.ContainsAny(lang, `/\`) || strings.Contains(lang, "..") {
		return ret
	}
	dir := f.findL10nDir(app)
	catalog := filepath.Join(dir, lang+".json")
	if fileExists(catalog) {
		ret = append(ret, catalog)
	}
	if themeDir, ok := f.themeDir(dir); ok {
		if override := filepath.Join(themeDir, lang+".json"); fileExists(override) {
			ret = append(ret, override)
		}
	}
	return ret
}

func scopeKey(app string) string {
	if app == "" {
		return "core"
	}
	return app
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
