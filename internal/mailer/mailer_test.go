package mailer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "satrunner/pkg/logx"
)

// fakeSMTP is a minimal plaintext SMTP server for loopback tests.
type fakeSMTP struct {
	ln       net.Listener
	password string

	mu       sync.Mutex
	authUser string
	from     string
	rcpt     string
	data     string
}

func startFakeSMTP(t *testing.T, password string) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln, password: password}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handle(conn)
		}
	}()
	return s
}

func (s *fakeSMTP) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := func(line string) { _, _ = io.WriteString(conn, line+"\r\n") }
	w("220 localhost ESMTP fake")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch cmd {
		case "EHLO", "HELO":
			w("250-localhost")
			w("250-AUTH PLAIN")
			w("250 8BITMIME")
		case "AUTH":
			parts := strings.Fields(line)
			raw, _ := base64.StdEncoding.DecodeString(parts[len(parts)-1])
			fields := strings.Split(string(raw), "\x00")
			if len(fields) == 3 && fields[2] == s.password {
				s.mu.Lock()
				s.authUser = fields[1]
				s.mu.Unlock()
				w("235 2.7.0 Authentication successful")
			} else {
				w("535 5.7.8 Authentication credentials invalid")
			}
		case "MAIL":
			s.mu.Lock()
			s.from = line
			s.mu.Unlock()
			w("250 OK")
		case "RCPT":
			s.mu.Lock()
			s.rcpt = line
			s.mu.Unlock()
			w("250 OK")
		case "DATA":
			w("354 End data with <CR><LF>.<CR><LF>")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			w("250 OK queued")
		case "QUIT":
			w("221 Bye")
			return
		default:
			w("502 Command not implemented")
		}
	}
}

func loopbackConfig(port int, password string) Config {
	return Config{
		Server:   "127.0.0.1",
		Port:     port,
		Username: "reporter@example.com",
		Password: password,
		To:       "me@example.com",
		Timeout:  5 * time.Second,
	}
}

func TestSendDeliversHTML(t *testing.T) {
	srv := startFakeSMTP(t, "app-password")
	m := New(loopbackConfig(srv.port(), "app-password"), logx.Nop())

	err := m.Send(context.Background(), Message{Subject: "N2YO Daily Satellite Report - 2024-03-10", HTML: "<h1>hi</h1>"})
	require.NoError(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "reporter@example.com", srv.authUser)
	assert.Contains(t, srv.from, "<reporter@example.com>")
	assert.Contains(t, srv.rcpt, "<me@example.com>")

	msg, err := mail.ReadMessage(strings.NewReader(srv.data))
	require.NoError(t, err)
	assert.Equal(t, "N2YO Daily Satellite Report - 2024-03-10", msg.Header.Get("Subject"))
	assert.Equal(t, "reporter@example.com", msg.Header.Get("From"))
	assert.Equal(t, "me@example.com", msg.Header.Get("To"))
}

func TestSendRejectedLogin(t *testing.T) {
	srv := startFakeSMTP(t, "right")
	m := New(loopbackConfig(srv.port(), "wrong"), logx.Nop())

	err := m.Send(context.Background(), Message{Subject: "s", HTML: "b"})
	require.ErrorIs(t, err, ErrAuth)
}

func TestSendIncompleteConfig(t *testing.T) {
	m := New(Config{Server: "smtp.example.com", Port: 587}, logx.Nop())
	err := m.Send(context.Background(), Message{})
	require.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "SMTP_USERNAME, SMTP_PASSWORD, RECEIVER_EMAIL")
}

func TestValidateRejectsHeaderLineBreaks(t *testing.T) {
	for name, mod := range map[string]func(*Config){
		"receiver lf":   func(c *Config) { c.To = "me@example.com\nBcc: other@example.com" },
		"sender cr":     func(c *Config) { c.From = "reporter@example.com\rX-Injected: 1" },
		"username used": func(c *Config) { c.Username = "reporter@example.com\r\nBcc: x@example.com" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := loopbackConfig(587, "pw")
			mod(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrConfig)
			assert.Contains(t, err.Error(), "line break")
		})
	}
	require.NoError(t, loopbackConfig(587, "pw").Validate())
}

func TestSendDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	m := New(loopbackConfig(port, "x"), logx.Nop())
	err = m.Send(context.Background(), Message{Subject: "s", HTML: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp dial 127.0.0.1:"+strconv.Itoa(port))
}

func TestBuild(t *testing.T) {
	now := time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)
	html := "<h2>Report</h2><p>" + strings.Repeat("long line ", 20) + "café</p>"
	raw, err := Build("a@example.com", "b@example.com", Message{Subject: "✅ SMTP Test Email", HTML: html}, now)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	subj, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "✅ SMTP Test Email", subj)
	assert.Equal(t, "Sun, 10 Mar 2024 07:00:00 +0000", msg.Header.Get("Date"))
	assert.True(t, strings.HasSuffix(msg.Header.Get("Message-ID"), "@example.com>"))

	mt, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mt)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	part, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", part.Header.Get("Content-Type"))
	// multipart.Reader decodes quoted-printable parts transparently.
	body, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.Equal(t, html, string(body))

	_, err = mr.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTestMessage(t *testing.T) {
	m := TestMessage(time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC))
	assert.Contains(t, m.HTML, "2024-03-10 07:00:00 UTC")
}
