package store

import (
	"errors"
	"sync"
)

// ErrEmptyUpdate is returned when a settings update carries no keys.
var ErrEmptyUpdate = errors.New("store: no settings provided")

// Settings is the mutable chatbot configuration. Values are scalars or
// lists; no type checking is applied beyond JSON decoding.
type Settings map[string]any

// Clone returns a deep copy. List values are copied element-wise so a
// caller can never mutate the stored state through a snapshot.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		cp := make([]any, len(val))
		for i, e := range val {
			cp[i] = cloneValue(e)
		}
		return cp
	case []string:
		cp := make([]string, len(val))
		copy(cp, val)
		return cp
	case map[string]any:
		return Settings(val).Clone()
	default:
		return val
	}
}

// SettingsStore holds the process-wide configuration. The defaults
// snapshot captured at construction is what Reset restores; updates can
// never reach it because every read and write goes through Clone.
type SettingsStore struct {
	mu       sync.RWMutex
	current  Settings
	defaults Settings
}

// NewSettingsStore creates a store initialized to a deep copy of defaults.
func NewSettingsStore(defaults Settings) (*SettingsStore, error) {
	if len(defaults) == 0 {
		return nil, errors.New("store: defaults must not be empty")
	}
	return &SettingsStore{
		current:  defaults.Clone(),
		defaults: defaults.Clone(),
	}, nil
}

// Get returns a snapshot of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update merges each provided key into the current settings, overwriting
// existing values and adding new keys, and returns the full result.
// Keys absent from partial keep their prior value.
func (s *SettingsStore) Update(partial Settings) (Settings, error) {
	if len(partial) == 0 {
		return nil, ErrEmptyUpdate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range partial {
		s.current[k] = cloneValue(v)
	}
	return s.current.Clone(), nil
}

// Reset replaces the settings wholesale with the defaults snapshot and
// returns the result.
func (s *SettingsStore) Reset() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.defaults.Clone()
	return s.current.Clone()
}

// GetString returns the named setting as a string, or "" when the key is
// absent or holds a non-string value.
func (s *SettingsStore) GetString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.current[key].(string)
	if !ok {
		return ""
	}
	return v
}
