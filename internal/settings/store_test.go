package settings

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPath = "/home/user/.config/focustimer/settings.yaml"

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), testPath)

	prefs, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences(), prefs)

	v, err := store.Get(KeyFocusMinutes)
	require.NoError(t, err)
	assert.Equal(t, 25, v)
}

func TestSetAndLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, testPath)

	require.NoError(t, store.Set(KeyFocusMinutes, "45"))
	require.NoError(t, store.Set(KeyBreakMinutes, 8))
	require.NoError(t, store.Set(KeyEnableVibration, "false"))

	// A fresh store over the same file sees the values
	prefs, err := NewStore(fs, testPath).Load()
	require.NoError(t, err)
	assert.Equal(t, Preferences{FocusMinutes: 45, BreakMinutes: 8, EnableVibration: false}, prefs)

	raw, err := afero.ReadFile(fs, testPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "focus_minutes: 45")
}

func TestSetRejectsInvalidValues(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), testPath)

	assert.ErrorIs(t, store.Set("theme", "dark"), ErrUnknownKey)
	assert.Error(t, store.Set(KeyFocusMinutes, "soon"))
	assert.Error(t, store.Set(KeyFocusMinutes, 0))
	assert.Error(t, store.Set(KeyBreakMinutes, -2))
	assert.Error(t, store.Set(KeyEnableVibration, "maybe"))

	_, err := store.Get("theme")
	assert.ErrorIs(t, err, ErrUnknownKey)

	prefs, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences(), prefs)
}

func TestLoadCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte("focus_minutes: [1, 2"), 0o644))

	prefs, err := NewStore(fs, testPath).Load()
	assert.Error(t, err)
	assert.Equal(t, DefaultPreferences(), prefs)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{KeyBreakMinutes, KeyEnableVibration, KeyFocusMinutes}, Keys())
}
