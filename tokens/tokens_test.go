package tokens

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramworld21/sda-auditor/style"
)

func TestDefault(t *testing.T) {
	tok := Default()
	require.NotNil(t, tok)
	assert.Equal(t, "SDA", tok.Name())
	assert.Contains(t, tok.Palette(), style.RGB{R: 6, G: 44, B: 110})
	assert.Contains(t, tok.Spacing(), 16)
	assert.Equal(t, "IBM Plex Sans Arabic", tok.Typography().Brand)
}

func TestParse_NestedColorsKeepOrder(t *testing.T) {
	data := []byte(`
name: test
colors:
  primary:
    dark: "#062C6E"
    light: "#fff"
  accent: "rgb(37, 99, 235)"
  extra: ["#000", "#111"]
spacing: [4, 8, "16px"]
`)
	tok, err := Parse(data)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, c := range tok.Colors() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"primary.dark", "primary.light", "accent", "extra[0]", "extra[1]"}, names)
	assert.Equal(t, style.RGB{R: 6, G: 44, B: 110}, tok.Palette()[0])
	assert.Equal(t, []int{4, 8, 16}, tok.Spacing())
}

func TestParse_JSON(t *testing.T) {
	data := []byte(`{"colors": {"navy": "#062c6e", "grey": {"100": "#f3f4f6"}}, "spacing": {"sm": 4, "md": "8px"}}`)
	tok, err := Parse(data)
	require.NoError(t, err)
	assert.Len(t, tok.Palette(), 2)
	assert.Equal(t, []int{4, 8}, tok.Spacing())
	assert.Equal(t, style.DefaultFontPatterns, tok.Typography().Patterns)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"bad color":      "colors: {a: nope}\nspacing: [4]",
		"no colors":      "spacing: [4]",
		"no spacing":     "colors: {a: '#000'}",
		"bad spacing":    "colors: {a: '#000'}\nspacing: [auto]",
		"zero spacing":   "colors: {a: '#000'}\nspacing: [0]",
		"scalar spacing": "colors: {a: '#000'}\nspacing: 4",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestNew_CopiesInputs(t *testing.T) {
	colors := []Color{{Name: "a", Value: style.RGB{R: 1}}}
	spacing := []int{4}
	tok, err := New("x", colors, spacing, Typography{})
	require.NoError(t, err)

	colors[0].Value = style.RGB{R: 9}
	spacing[0] = 99
	tok.Spacing()[0] = 77

	assert.Equal(t, style.RGB{R: 1}, tok.Palette()[0])
	assert.Equal(t, []int{4}, tok.Spacing())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("colors: {a: '#000'}\nspacing: [4]"), 0o644))

	initial, err := Load(path)
	require.NoError(t, err)
	store := NewStore(initial)

	w, err := NewWatcher(path, store, 20*time.Millisecond, nil)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("colors: {a: '#000', b: '#fff'}\nspacing: [4, 8]"), 0o644))

	assert.Eventually(t, func() bool {
		return len(store.Get().Palette()) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_KeepsPreviousOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("colors: {a: '#000'}\nspacing: [4]"), 0o644))

	initial, err := Load(path)
	require.NoError(t, err)
	store := NewStore(initial)

	w, err := NewWatcher(path, store, 10*time.Millisecond, nil)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("colors: {a: nope}"), 0o644))
	time.Sleep(150 * time.Millisecond)

	assert.Same(t, initial, store.Get())
}
