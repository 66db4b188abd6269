package report

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"satrunner/internal/mailer"
	"satrunner/internal/n2yo"
	logx "satrunner/pkg/logx"
)

var (
	ErrNoAPIKey   = n2yo.ErrNoAPIKey
	ErrNoReceiver = errors.New("RECEIVER_EMAIL is not configured")
)

// Env is the report configuration, read from the environment only.
type Env struct {
	APIKey string
	Mail   mailer.Config
	Params Params
}

// LoadEnv reads the report settings. Unparseable numbers fall back to their
// defaults with a warning; lookup nil means os.LookupEnv.
func LoadEnv(lookup func(string) (string, bool), log logx.Logger) Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	str := func(k, def string) string {
		if v, ok := lookup(k); ok {
			return strings.TrimSpace(v)
		}
		return def
	}
	num := func(k string, def float64) float64 {
		raw, ok := lookup(k)
		if !ok || strings.TrimSpace(raw) == "" {
			return def
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			log.Warn("invalid number, using default", logx.String("key", k), logx.Any("default", def))
			return def
		}
		return f
	}
	integer := func(k string, def int) int {
		raw, ok := lookup(k)
		if !ok || strings.TrimSpace(raw) == "" {
			return def
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			log.Warn("invalid integer, using default", logx.String("key", k), logx.Int("default", def))
			return def
		}
		return n
	}

	p := Defaults()
	p.Observer = n2yo.Observer{
		Lat: num("OBSERVER_LAT", p.Observer.Lat),
		Lng: num("OBSERVER_LNG", p.Observer.Lng),
		Alt: num("OBSERVER_ALT", p.Observer.Alt),
	}
	p.Category = integer("CATEGORY_ID", p.Category)
	p.SearchRadius = integer("SEARCH_RADIUS_DEGREES", p.SearchRadius)

	user := str("SMTP_USERNAME", "")
	return Env{
		APIKey: str("N2YO_API_KEY", ""),
		Params: p,
		Mail: mailer.Config{
			Server:   str("SMTP_SERVER", ""),
			Port:     integer("SMTP_PORT", mailer.DefaultPort),
			Username: user,
			Password: str("SMTP_PASSWORD", ""),
			From:     str("SENDER_EMAIL", user),
			To:       str("RECEIVER_EMAIL", ""),
			StartTLS: true,
		},
	}
}

// Validate reports the first setting that makes a report impossible.
func (e Env) Validate() error {
	if e.APIKey == "" {
		return ErrNoAPIKey
	}
	if e.Mail.To == "" {
		return ErrNoReceiver
	}
	return e.Mail.Validate()
}
