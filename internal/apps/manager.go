package apps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/MimeLyc/cloudmaint/pkg/log"
)

var (
	ErrAppPathNotFound = errors.New("app path not found")
	ErrAppNeedsUpgrade = errors.New("app needs upgrade")
)

const installedVersionKey = "installed_version"

var validAppID = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// Info is read from <app>/appinfo/info.json.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ConfigStore keeps per-app values such as the installed version.
type ConfigStore interface {
	GetAppValue(ctx context.Context, app, key string) (string, bool, error)
	SetAppValue(ctx context.Context, app, key, value string) error
}

// Manager locates apps below <serverRoot>/apps and loads them.
type Manager struct {
	appsDir string
	config  ConfigStore

	mu     sync.RWMutex
	loaded map[string]Info
}

func NewManager(serverRoot string, config ConfigStore) *Manager {
	return &Manager{
		appsDir: filepath.Join(serverRoot, "apps"),
		config:  config,
		loaded:  make(map[string]Info),
	}
}

// AppPath returns the directory of app.
func (m *Manager) AppPath(app string) (string, error) {
	if !validAppID.MatchString(app) {
		return "", fmt.Errorf("%q: %w", app, ErrAppPathNotFound)
	}
	dir := filepath.Join(m.appsDir, app)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s: %w", app, ErrAppPathNotFound)
	}
	return dir, nil
}

// List returns the ids of all apps present on disk, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.appsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ret := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && validAppID.MatchString(entry.Name()) {
			ret = append(ret, entry.Name())
		}
	}
	sort.Strings(ret)
	return ret, nil
}

func (m *Manager) Info(app string) (Info, error) {
	dir, err := m.AppPath(app)
	if err != nil {
		return Info{}, err
	}
	info := Info{ID: app}
	raw, err := os.ReadFile(filepath.Join(dir, "appinfo", "info.json"))
	if errors.Is(err, os.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("read app info of %s: %w", app, err)
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return Info{}, fmt.Errorf("parse app info of %s: %w", app, err)
	}
	info.ID = app
	return info, nil
}

// LoadApp makes app ready for use. Core ("" or "core") is always loaded. An
// app whose code is newer than its installed version is not loaded and
// yields ErrAppNeedsUpgrade; an app seen for the first time is recorded as
// installed.
func (m *Manager) LoadApp(ctx context.Context, app string) error {
	if app == "" || app == "core" {
		return nil
	}
	m.mu.RLock()
	_, done := m.loaded[app]
	m.mu.RUnlock()
	if done {
		return nil
	}

	info, err := m.Info(app)
	if err != nil {
		return err
	}

	installed, ok, err := m.config.GetAppValue(ctx, app, installedVersionKey)
	if err != nil {
		return fmt.Errorf("installed version of %s: %w", app, err)
	}
	switch {
	case !ok:
		if err := m.config.SetAppValue(ctx, app, installedVersionKey, info.Version); err != nil {
			return fmt.Errorf("record installed version of %s: %w", app, err)
		}
	case compareVersions(info.Version, installed) > 0:
		return fmt.Errorf("%s %s (installed %s): %w", app, info.Version, installed, ErrAppNeedsUpgrade)
	}

	m.mu.Lock()
	m.loaded[app] = info
	m.mu.Unlock()
	log.Debug("Loaded app %s %s", app, info.Version)
	return nil
}

// Upgrade marks the app's code version as installed.
func (m *Manager) Upgrade(ctx context.Context, app string) error {
	info, err := m.Info(app)
	if err != nil {
		return err
	}
	return m.config.SetAppValue(ctx, app, installedVersionKey, info.Version)
}

// compareVersions compares dotted numeric versions; missing parts count as 0.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := range max(len(as), len(bs)) {
		var x, y int
		if i < len(as) {
			x, _ = strconv.Atoi(strings.TrimSpace(as[i]))
		}
		if i < len(bs) {
			y, _ = strconv.Atoi(strings.TrimSpace(bs[i]))
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}
