package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satrunner/internal/mailer"
	logx "satrunner/pkg/logx"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	e := LoadEnv(envOf(map[string]string{
		"N2YO_API_KEY":   "k",
		"SMTP_SERVER":    "smtp.example.com",
		"SMTP_USERNAME":  "me@example.com",
		"SMTP_PASSWORD":  "pw",
		"RECEIVER_EMAIL": "you@example.com",
	}), logx.Nop())

	require.NoError(t, e.Validate())
	assert.Equal(t, mailer.DefaultPort, e.Mail.Port)
	assert.Equal(t, "me@example.com", e.Mail.From)
	assert.True(t, e.Mail.StartTLS)
	assert.Equal(t, Defaults(), e.Params)
}

func TestLoadEnvOverridesAndBadNumbers(t *testing.T) {
	e := LoadEnv(envOf(map[string]string{
		"SMTP_PORT":             "not-a-port",
		"SENDER_EMAIL":          "bot@example.com",
		"OBSERVER_LAT":          "51.5072",
		"OBSERVER_LNG":          "-0.1276",
		"OBSERVER_ALT":          "oops",
		"CATEGORY_ID":           "2",
		"SEARCH_RADIUS_DEGREES": "45",
	}), logx.Nop())

	assert.Equal(t, mailer.DefaultPort, e.Mail.Port)
	assert.Equal(t, "bot@example.com", e.Mail.From)
	assert.Equal(t, 51.5072, e.Params.Observer.Lat)
	assert.Equal(t, -0.1276, e.Params.Observer.Lng)
	assert.Equal(t, 10.0, e.Params.Observer.Alt)
	assert.Equal(t, 2, e.Params.Category)
	assert.Equal(t, 45, e.Params.SearchRadius)
}

func TestEnvValidate(t *testing.T) {
	full := map[string]string{
		"N2YO_API_KEY":   "k",
		"SMTP_SERVER":    "smtp.example.com",
		"SMTP_USERNAME":  "me@example.com",
		"SMTP_PASSWORD":  "pw",
		"RECEIVER_EMAIL": "you@example.com",
	}
	tests := []struct {
		drop string
		want error
	}{
		{"N2YO_API_KEY", ErrNoAPIKey},
		{"RECEIVER_EMAIL", ErrNoReceiver},
		{"SMTP_PASSWORD", mailer.ErrConfig},
		{"SMTP_SERVER", mailer.ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.drop, func(t *testing.T) {
			m := map[string]string{}
			for k, v := range full {
				if k != tt.drop {
					m[k] = v
				}
			}
			require.ErrorIs(t, LoadEnv(envOf(m), logx.Nop()).Validate(), tt.want)
		})
	}
}
