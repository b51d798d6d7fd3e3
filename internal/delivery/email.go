package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

// EmailConfig configures the SMTP delivery channel.
type EmailConfig struct {
	Host        string
	Port        int
	Secure      bool // implicit TLS (465-style); otherwise plain with optional STARTTLS
	User        string
	Pass        string
	From        string
	DialTimeout time.Duration // 0 means 10s
}

// Emailer delivers email payloads over SMTP.
type Emailer struct {
	cfg EmailConfig
	log logx.Logger
}

func NewEmailer(cfg EmailConfig, log logx.Logger) (*Emailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("email.host is required")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("email.port is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("email.from is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Emailer{cfg: cfg, log: log}, nil
}

func (e *Emailer) Channel() string { return "email" }

// Verify dials the SMTP server and says hello. Called once at startup;
// a failure is logged, not fatal (the server may come up later).
func (e *Emailer) Verify(ctx context.Context) error {
	c, err := e.connect(ctx)
	if err != nil {
		return err
	}
	return c.Quit()
}

func (e *Emailer) Deliver(ctx context.Context, p job.Payload) error {
	if p.Email == nil {
		return errors.New("email payload missing")
	}

	c, err := e.connect(ctx)
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}
	defer c.Close()

	if err := c.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, to := range p.Email.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", to, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(e.cfg.From, p.Email)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// connect dials, negotiates TLS/auth and returns a ready client.
// The context deadline (or DialTimeout) bounds the whole handshake via
// a connection deadline; net/smtp itself is not context-aware.
func (e *Emailer) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(e.cfg.Host, fmt.Sprint(e.cfg.Port))

	deadline := time.Now().Add(e.cfg.DialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	d := net.Dialer{Deadline: deadline}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(deadline)

	if e.cfg.Secure {
		conn = tls.Client(conn, &tls.Config{ServerName: e.cfg.Host})
	}

	c, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if !e.cfg.Secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: e.cfg.Host}); err != nil {
				_ = c.Close()
				return nil, err
			}
		}
	}

	if e.cfg.User != "" {
		auth := smtp.PlainAuth("", e.cfg.User, e.cfg.Pass, e.cfg.Host)
		if err := c.Auth(auth); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

func buildMessage(from string, p *job.EmailPayload) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(p.To, ", ") + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(p.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(p.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// sanitizeHeader strips CR/LF so payload text cannot inject headers.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
