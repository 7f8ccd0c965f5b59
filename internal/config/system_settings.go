package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/MimeLyc/cloudmaint/internal/trashbin"
)

const DefaultSettingsFile = "/app/config/settings.json"

// LanguageSetting is a language code that may be switched off. It is written
// as false when empty and accepts false, null or "" as "not set".
type LanguageSetting string

func (l LanguageSetting) MarshalJSON() ([]byte, error) {
	if l == "" {
		return []byte("false"), nil
	}
	return json.Marshal(string(l))
}

func (l *LanguageSetting) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("false")) || bytes.Equal(trimmed, []byte("null")) {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return fmt.Errorf("language setting must be a string or false: %w", err)
	}
	*l = LanguageSetting(strings.TrimSpace(s))
	return nil
}

// SystemSettings are the system-wide values read by language resolution and
// trash expiry.
type SystemSettings struct {
	ForceLanguage       LanguageSetting `json:"force_language"`
	DefaultLanguage     LanguageSetting `json:"default_language"`
	ReduceToLanguages   []string        `json:"reduce_to_languages"`
	Theme               string          `json:"theme"`
	Installed           bool            `json:"installed"`
	RetentionObligation string          `json:"trashbin_retention_obligation"`
}

func DefaultSystemSettings() SystemSettings {
	return SystemSettings{
		Installed:           true,
		RetentionObligation: trashbin.DefaultRetentionObligation,
	}
}

func (s SystemSettings) Validate() error {
	if err := validateLanguageCode(string(s.ForceLanguage)); err != nil {
		return fmt.Errorf("invalid force_language: %w", err)
	}
	if err := validateLanguageCode(string(s.DefaultLanguage)); err != nil {
		return fmt.Errorf("invalid default_language: %w", err)
	}
	for _, code := range s.ReduceToLanguages {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("reduce_to_languages must not contain empty codes")
		}
		if err := validateLanguageCode(code); err != nil {
			return fmt.Errorf("invalid reduce_to_languages entry: %w", err)
		}
	}
	if strings.ContainsAny(s.Theme, `/\`) {
		return fmt.Errorf("theme must be a directory name, got %q", s.Theme)
	}
	if _, err := trashbin.ParseExpiration(s.RetentionObligation, nil); err != nil {
		return fmt.Errorf("invalid trashbin_retention_obligation: %w", err)
	}
	return nil
}

// validateLanguageCode accepts any well-formed code, including ones that are
// unknown to CLDR ("cz") and underscore variants ("de_DE", "sr@latin").
func validateLanguageCode(code string) error {
	if code == "" {
		return nil
	}
	code, _, _ = strings.Cut(code, "@")
	_, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err == nil {
		return nil
	}
	var valueErr language.ValueError
	if errors.As(err, &valueErr) {
		return nil
	}
	return fmt.Errorf("%q: %w", code, err)
}

func LoadSystemSettingsFile(path string) (SystemSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SystemSettings{}, err
	}
	settings := DefaultSystemSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return SystemSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteSystemSettingsFile(path string, settings SystemSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// SettingsStore serves the current system settings and persists updates.
type SettingsStore struct {
	path string

	mu      sync.RWMutex
	current SystemSettings
}

func NewSettingsStore(path string, initial SystemSettings) (*SettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &SettingsStore{
		path:    path,
		current: initial,
	}, nil
}

// OpenSettingsStore loads path, falling back to the defaults when the file
// does not exist yet.
func OpenSettingsStore(path string) (*SettingsStore, error) {
	settings, err := LoadSystemSettingsFile(path)
	if errors.Is(err, os.ErrNotExist) {
		settings = DefaultSystemSettings()
	} else if err != nil {
		return nil, err
	}
	return NewSettingsStore(path, settings)
}

func (s *SettingsStore) GetSystemSettings() (SystemSettings, error) {
	return s.snapshot(), nil
}

func (s *SettingsStore) UpdateSystemSettings(next SystemSettings) (SystemSettings, error) {
	if err := next.Validate(); err != nil {
		return SystemSettings{}, err
	}
	if err := WriteSystemSettingsFile(s.path, next); err != nil {
		return SystemSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}

func (s *SettingsStore) snapshot() SystemSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := s.current
	ret.ReduceToLanguages = append([]string(nil), s.current.ReduceToLanguages...)
	return ret
}

func (s *SettingsStore) ForceLanguage() (string, bool) {
	lang := string(s.snapshot().ForceLanguage)
	return lang, lang != ""
}

func (s *SettingsStore) DefaultLanguage() (string, bool) {
	lang := string(s.snapshot().DefaultLanguage)
	return lang, lang != ""
}

func (s *SettingsStore) ReduceToLanguages() []string {
	return s.snapshot().ReduceToLanguages
}

func (s *SettingsStore) Theme() string {
	return s.snapshot().Theme
}

func (s *SettingsStore) Installed() bool {
	return s.snapshot().Installed
}

func (s *SettingsStore) RetentionObligation() string {
	return s.snapshot().RetentionObligation
}
