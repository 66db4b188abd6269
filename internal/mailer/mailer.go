// Package mailer sends HTML mail over SMTP with STARTTLS and PLAIN auth.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "satrunner/pkg/logx"
)

const DefaultPort = 587

var (
	ErrConfig = errors.New("smtp configuration incomplete")
	// ErrAuth wraps a rejected login. App passwords are the usual fix for
	// providers with two-factor auth.
	ErrAuth = errors.New("smtp authentication failed")
)

type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string // defaults to Username
	To       string

	// StartTLS upgrades the connection before auth. Only a loopback relay
	// may go without it.
	StartTLS  bool
	TLSConfig *tls.Config
	Timeout   time.Duration
}

// Missing lists the unset settings by their environment names.
func (c Config) Missing() []string {
	var out []string
	for _, f := range []struct {
		name string
		ok   bool
	}{
		{"SMTP_SERVER", c.Server != ""},
		{"SMTP_PORT", c.Port > 0},
		{"SMTP_USERNAME", c.Username != ""},
		{"SMTP_PASSWORD", c.Password != ""},
		{"RECEIVER_EMAIL", c.To != ""},
	} {
		if !f.ok {
			out = append(out, f.name)
		}
	}
	return out
}

// Validate also rejects line breaks in the addresses; they end up in headers.
func (c Config) Validate() error {
	if m := c.Missing(); len(m) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfig, strings.Join(m, ", "))
	}
	for _, f := range []struct{ name, v string }{
		{"SENDER_EMAIL", c.sender()},
		{"RECEIVER_EMAIL", c.To},
	} {
		if strings.ContainsAny(f.v, "\r\n") {
			return fmt.Errorf("%w: %s contains a line break", ErrConfig, f.name)
		}
	}
	return nil
}

func (c Config) sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

type Message struct {
	Subject string
	HTML    string
}

type Mailer struct {
	cfg Config
	log logx.Logger
	now func() time.Time
}

func New(cfg Config, log logx.Logger) *Mailer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Mailer{cfg: cfg, log: log.With(logx.String("comp", "mailer")), now: time.Now}
}

// Send delivers msg to the configured receiver.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	cfg := m.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))
	log := m.log.With(logx.String("addr", addr), logx.String("to", cfg.To))

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	log.Info("connecting to smtp server")
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c, err := smtp.NewClient(conn, cfg.Server)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if cfg.StartTLS {
		tc := cfg.TLSConfig
		if tc == nil {
			tc = &tls.Config{ServerName: cfg.Server, MinVersion: tls.VersionTLS12}
		}
		log.Debug("starting tls")
		if err := c.StartTLS(tc); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Server)); err != nil {
		var tpe *textproto.Error
		if errors.As(err, &tpe) && tpe.Code == 535 {
			return fmt.Errorf("%w: %w", ErrAuth, err)
		}
		return fmt.Errorf("smtp auth: %w", err)
	}

	body, err := Build(cfg.sender(), cfg.To, msg, m.now())
	if err != nil {
		return err
	}
	if err := c.Mail(cfg.sender()); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(cfg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp DATA end: %w", err)
	}
	if err := c.Quit(); err != nil {
		log.Debug("smtp quit", logx.Err(err))
	}
	log.Info("email sent", logx.String("subject", msg.Subject), logx.Int("bytes", len(body)))
	return nil
}

// Build renders a multipart/alternative message with one text/html part.
func Build(from, to string, msg Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at+1 < len(from) {
		domain = from[at+1:]
	}
	hdr := []struct{ k, v string }{
		{"From", from},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", "<" + uuid.NewString() + "@" + domain + ">"},
		{"MIME-Version", "1.0"},
		{"Content-Type", `multipart/alternative; boundary="` + mw.Boundary() + `"`},
	}
	var head bytes.Buffer
	for _, h := range hdr {
		head.WriteString(h.k + ": " + h.v + "\r\n")
	}
	head.WriteString("\r\n")

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return append(head.Bytes(), buf.Bytes()...), nil
}

// TestMessage is the SMTP smoke-test mail.
func TestMessage(now time.Time) Message {
	return Message{
		Subject: "✅ SMTP Test Email",
		HTML: "<h2>Email Test Successful</h2>\n" +
			"<p>This email confirms SMTP is working from the task runner.</p>\n" +
			"<p><b>Timestamp:</b> " + now.UTC().Format("2006-01-02 15:04:05") + " UTC</p>\n",
	}
}
