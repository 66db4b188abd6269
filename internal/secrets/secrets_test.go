package secrets

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satrunner/internal/config"
	logx "satrunner/pkg/logx"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromConfigDefaults(t *testing.T) {
	d := FromConfig(config.SecretsConfig{})
	assert.Equal(t, DefaultRequired, d.Required)
	assert.Equal(t, DefaultOptional, d.Optional)
	assert.Equal(t, DefaultPassthrough, d.Passthrough)

	d = FromConfig(config.SecretsConfig{Required: []string{" A "}, Passthrough: []string{"PATH"}})
	assert.Equal(t, []string{"A"}, d.Required)
	assert.Empty(t, d.Optional)
}

func TestEnvironContainsExactlyDeclaredNames(t *testing.T) {
	d := Declaration{
		Required:    []string{"N2YO_API_KEY", "SMTP_SERVER"},
		Optional:    []string{"OBSERVER_LAT", "CATEGORY_ID"},
		Passthrough: []string{"PATH"},
	}
	host := map[string]string{
		"N2YO_API_KEY": "k-123",
		"SMTP_SERVER":  "smtp.example.com",
		"OBSERVER_LAT": "51.5",
		"PATH":         "/usr/bin",
		"UNRELATED":    "leak",
	}
	s, err := Resolve(d, mapLookup(host))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CATEGORY_ID=",
		"N2YO_API_KEY=k-123",
		"OBSERVER_LAT=51.5",
		"PATH=/usr/bin",
		"SMTP_SERVER=smtp.example.com",
	}, s.Environ())
	assert.Empty(t, s.Missing())
	_, ok := s.Get("CATEGORY_ID")
	assert.False(t, ok)
}

func TestEnvironExportsUnsetRequiredNames(t *testing.T) {
	d := Declaration{
		Required:    []string{"N2YO_API_KEY", "RECEIVER_EMAIL"},
		Passthrough: []string{"PATH"},
	}
	s, err := Resolve(d, mapLookup(map[string]string{"N2YO_API_KEY": "k-123", "PATH": "/usr/bin"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"N2YO_API_KEY=k-123", "PATH=/usr/bin", "RECEIVER_EMAIL="}, s.Environ())
	assert.Equal(t, []string{"RECEIVER_EMAIL"}, s.Missing())
	assert.Equal(t, []Presence{
		{Name: "N2YO_API_KEY", Required: true, Present: true},
		{Name: "RECEIVER_EMAIL", Required: true, Present: false},
	}, s.Diagnose())
	assert.Equal(t, []string{"k-123"}, s.Values())
}

func TestResolveFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "secrets.yaml")
	require.NoError(t, os.WriteFile(p, []byte("N2YO_API_KEY: from-file\nSMTP_PORT: \"2525\"\n"), 0o600))

	d := Declaration{Required: []string{"N2YO_API_KEY", "SMTP_PORT", "SMTP_SERVER"}, File: p}
	s, err := Resolve(d, mapLookup(map[string]string{"N2YO_API_KEY": "from-env"}))
	require.NoError(t, err)

	v, _ := s.Get("N2YO_API_KEY")
	assert.Equal(t, "from-env", v)
	v, _ = s.Get("SMTP_PORT")
	assert.Equal(t, "2525", v)
	assert.Equal(t, []string{"SMTP_SERVER"}, s.Missing())
}

func TestResolveBadFile(t *testing.T) {
	_, err := Resolve(Declaration{File: filepath.Join(t.TempDir(), "nope.json")}, mapLookup(nil))
	require.ErrorIs(t, err, ErrSecretsFile)
}

func TestDiagnoseNeverRevealsValues(t *testing.T) {
	d := Declaration{Required: []string{"A", "B"}, Optional: []string{"C"}}
	s, err := Resolve(d, mapLookup(map[string]string{"A": "supersecret", "B": ""}))
	require.NoError(t, err)

	report := s.Diagnose()
	assert.Equal(t, []Presence{
		{Name: "A", Required: true, Present: true},
		{Name: "B", Required: true, Present: false},
		{Name: "C", Required: false, Present: false},
	}, report)

	var buf bytes.Buffer
	LogDiagnosis(logx.NewWriter(&buf, "debug"), report)
	out := buf.String()
	assert.NotContains(t, out, "supersecret")
	assert.Contains(t, out, `"name":"B"`)
	assert.Contains(t, out, "required secrets absent")
}

func TestMasker(t *testing.T) {
	m := NewMasker([]string{"abc", "abcdef", "x", ""}, 3)
	assert.Equal(t, "key=*** other=***", m.Mask("key=abcdef other=abc"))
	assert.Equal(t, "x stays", m.Mask("x stays"))

	assert.Equal(t, 6, m.MaxLen())

	var nilMasker *Masker
	assert.Equal(t, "plain", nilMasker.Mask("plain"))
	assert.Zero(t, nilMasker.MaxLen())
	assert.False(t, strings.Contains(NewMasker(nil, 1).Mask("abc"), "*"))
}

func TestBaseEnvironExcludesSecrets(t *testing.T) {
	d := Declaration{Required: []string{"N2YO_API_KEY"}, Passthrough: []string{"PATH", "HOME"}}
	s, err := Resolve(d, mapLookup(map[string]string{"N2YO_API_KEY": "k", "PATH": "/bin"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"PATH=/bin"}, s.BaseEnviron())
	assert.Equal(t, []string{"k"}, s.Values())
}
