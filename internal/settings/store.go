// Package settings keeps user preferences in a small YAML key-value file.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	KeyFocusMinutes    = "focus_minutes"
	KeyBreakMinutes    = "break_minutes"
	KeyEnableVibration = "enable_vibration"
)

// ErrUnknownKey is returned for keys outside the known preference set.
var ErrUnknownKey = errors.New("unknown settings key")

// Preferences is the typed view over the stored values.
type Preferences struct {
	FocusMinutes    int
	BreakMinutes    int
	EnableVibration bool
}

func DefaultPreferences() Preferences {
	return Preferences{
		FocusMinutes:    25,
		BreakMinutes:    5,
		EnableVibration: true,
	}
}

var defaults = map[string]interface{}{
	KeyFocusMinutes:    DefaultPreferences().FocusMinutes,
	KeyBreakMinutes:    DefaultPreferences().BreakMinutes,
	KeyEnableVibration: DefaultPreferences().EnableVibration,
}

type Store struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewStore(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// Keys lists the known keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load returns the stored preferences, falling back to defaults for missing keys.
// A missing file is not an error.
func (s *Store) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readLocked()
	if err != nil {
		return DefaultPreferences(), err
	}
	return toPreferences(values)
}

// Get returns the raw value for key, or its default.
func (s *Store) Get(key string) (interface{}, error) {
	def, ok := defaults[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrUnknownKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	if v, ok := values[key]; ok {
		return v, nil
	}
	return def, nil
}

// Set validates value against the key's type and writes the file.
// Minutes must be positive.
func (s *Store) Set(key string, value interface{}) error {
	def, ok := defaults[key]
	if !ok {
		return fmt.Errorf("%q: %w", key, ErrUnknownKey)
	}

	var normalized interface{}
	switch def.(type) {
	case int:
		n, err := cast.ToIntE(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		if n < 1 {
			return fmt.Errorf("%s must be positive, got %d", key, n)
		}
		normalized = n
	case bool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		normalized = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.readLocked()
	if err != nil {
		return err
	}
	values[key] = normalized
	return s.writeLocked(values)
}

func (s *Store) readLocked() (map[string]interface{}, error) {
	values := make(map[string]interface{})
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse settings yaml: %w", err)
	}
	if values == nil {
		values = make(map[string]interface{})
	}
	return values, nil
}

func (s *Store) writeLocked(values map[string]interface{}) error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	serialized, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, serialized, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

func toPreferences(values map[string]interface{}) (Preferences, error) {
	prefs := DefaultPreferences()
	if v, ok := values[KeyFocusMinutes]; ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return DefaultPreferences(), fmt.Errorf("%s: %w", KeyFocusMinutes, err)
		}
		prefs.FocusMinutes = n
	}
	if v, ok := values[KeyBreakMinutes]; ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return DefaultPreferences(), fmt.Errorf("%s: %w", KeyBreakMinutes, err)
		}
		prefs.BreakMinutes = n
	}
	if v, ok := values[KeyEnableVibration]; ok {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return DefaultPreferences(), fmt.Errorf("%s: %w", KeyEnableVibration, err)
		}
		prefs.EnableVibration = b
	}
	return prefs, nil
}
