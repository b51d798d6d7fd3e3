package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

// SMSConfig configures the Twilio-compatible SMS channel.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string // override for tests / compatible gateways; empty means Twilio
	// CountryPrefix is prepended to numbers without a leading '+',
	// e.g. "+91". Empty leaves numbers untouched.
	CountryPrefix string
	Timeout       time.Duration // 0 means 15s
}

// SMSSender delivers sms payloads through a Twilio-style REST API.
type SMSSender struct {
	cfg    SMSConfig
	log    logx.Logger
	client *http.Client
}

func NewSMSSender(cfg SMSConfig, log logx.Logger) (*SMSSender, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, errors.New("sms.account_sid is required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("sms.auth_token is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("sms.from is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SMSSender{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *SMSSender) Channel() string { return "sms" }

func (s *SMSSender) Deliver(ctx context.Context, p job.Payload) error {
	if p.SMS == nil {
		return errors.New("sms payload missing")
	}
	to := FormatNumber(p.SMS.Number, s.cfg.CountryPrefix)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(s.cfg.AccountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.cfg.From)
	form.Set("Body", p.SMS.Message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	s.log.Debug("sms accepted", logx.String("to", to))
	return nil
}

// FormatNumber applies the default country prefix to bare national
// numbers. Numbers already in E.164 form ("+...") pass through.
func FormatNumber(number, prefix string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "+") || prefix == "" {
		return number
	}
	return prefix + number
}
