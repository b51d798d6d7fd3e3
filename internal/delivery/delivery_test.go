package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

type stubDeliverer struct {
	channel string
	err     error

	mu    sync.Mutex
	calls int
}

func (s *stubDeliverer) Channel() string { return s.channel }

func (s *stubDeliverer) Deliver(ctx context.Context, p job.Payload) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.err
}

func (s *stubDeliverer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	sms := &stubDeliverer{channel: "sms"}
	email := &stubDeliverer{channel: "email", err: errors.New("bounce")}
	r.Register(sms)
	r.Register(email)

	if got := r.Channels(); len(got) != 2 || got[0] != "email" || got[1] != "sms" {
		t.Fatalf("channels = %v", got)
	}

	if err := r.Deliver(context.Background(), job.Payload{Channel: "sms"}); err != nil {
		t.Fatalf("deliver sms: %v", err)
	}
	if sms.count() != 1 {
		t.Fatalf("sms deliverer called %d times", sms.count())
	}

	if err := r.Deliver(context.Background(), job.Payload{Channel: "email"}); err == nil {
		t.Fatal("expected deliverer error to propagate")
	}

	err := r.Deliver(context.Background(), job.Payload{Channel: "pigeon"})
	if !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("err = %v, want ErrUnknownChannel", err)
	}
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()
	tests := []struct {
		number, prefix, want string
	}{
		{"9876543210", "+91", "+919876543210"},
		{"+15550001111", "+91", "+15550001111"},
		{"9876543210", "", "9876543210"},
		{"  9876543210 ", "+91", "+919876543210"},
		{"", "+91", ""},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.number, tt.prefix); got != tt.want {
			t.Errorf("FormatNumber(%q, %q) = %q, want %q", tt.number, tt.prefix, got, tt.want)
		}
	}
}

func TestSMSSenderDeliver(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		gotPath  string
		gotUser  string
		gotForm  map[string]string
		respCode = http.StatusCreated
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		_ = r.ParseForm()
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		mu.Lock()
		gotPath = r.URL.Path
		gotUser = user
		gotForm = form
		code := respCode
		mu.Unlock()
		w.WriteHeader(code)
	}))
	defer srv.Close()

	s, err := NewSMSSender(SMSConfig{
		AccountSID:    "AC123",
		AuthToken:     "tok",
		From:          "+15550001111",
		BaseURL:       srv.URL,
		CountryPrefix: "+91",
	}, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	p := job.Payload{Channel: "sms", SMS: &job.SMSPayload{Number: "9876543210", Message: "hello"}}
	if err := s.Deliver(context.Background(), p); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	mu.Lock()
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "AC123" {
		t.Fatalf("basic auth user = %q", gotUser)
	}
	if gotForm["To"] != "+919876543210" {
		t.Fatalf("To = %q, want prefixed number", gotForm["To"])
	}
	if gotForm["Body"] != "hello" {
		t.Fatalf("Body = %q", gotForm["Body"])
	}
	respCode = http.StatusUnauthorized
	mu.Unlock()

	if err := s.Deliver(context.Background(), p); err == nil {
		t.Fatal("expected error for non-2xx gateway status")
	}
}

func TestSMSSenderConfigValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewSMSSender(SMSConfig{AuthToken: "t", From: "f"}, logx.Nop()); err == nil {
		t.Fatal("missing account sid accepted")
	}
	if _, err := NewSMSSender(SMSConfig{AccountSID: "a", From: "f"}, logx.Nop()); err == nil {
		t.Fatal("missing auth token accepted")
	}
	if _, err := NewSMSSender(SMSConfig{AccountSID: "a", AuthToken: "t"}, logx.Nop()); err == nil {
		t.Fatal("missing from accepted")
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()
	msg := string(buildMessage("svc@example.com", &job.EmailPayload{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "line1\r\nBcc: evil@example.com",
		Body:    "body text",
	}))

	if !strings.HasPrefix(msg, "From: svc@example.com\r\n") {
		t.Fatalf("message missing From header:\n%s", msg)
	}
	if !strings.Contains(msg, "To: a@example.com, b@example.com\r\n") {
		t.Fatalf("message missing To header:\n%s", msg)
	}
	if strings.Contains(msg, "Bcc:") {
		t.Fatalf("header injection not sanitized:\n%s", msg)
	}
	head, body, ok := strings.Cut(msg, "\r\n\r\n")
	if !ok {
		t.Fatalf("no header/body separator:\n%s", msg)
	}
	if !strings.Contains(head, "Content-Type: text/plain") {
		t.Fatalf("missing content type:\n%s", head)
	}
	if !strings.Contains(body, "body text") {
		t.Fatalf("body lost: %q", body)
	}
}

func TestWithRateLimit(t *testing.T) {
	t.Parallel()

	unlimited := &stubDeliverer{channel: "sms"}
	u := WithRateLimit(unlimited, 0)
	for i := 0; i < 5; i++ {
		if err := u.Deliver(context.Background(), job.Payload{}); err != nil {
			t.Fatalf("unlimited deliver %d: %v", i, err)
		}
	}
	if unlimited.count() != 5 {
		t.Fatalf("unlimited inner called %d times, want 5", unlimited.count())
	}

	inner := &stubDeliverer{channel: "sms"}
	d := WithRateLimit(inner, 1)
	if d.Channel() != "sms" {
		t.Fatalf("channel = %q", d.Channel())
	}
	// Burst of 1: the first call passes immediately, the second waits
	// for a token. A cancelled context surfaces as an error instead.
	if err := d.Deliver(context.Background(), job.Payload{}); err != nil {
		t.Fatalf("first deliver: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Deliver(ctx, job.Payload{}); err == nil {
		t.Fatal("expected rate limiter to reject within the deadline")
	}
	if inner.count() != 1 {
		t.Fatalf("inner called %d times, want 1", inner.count())
	}

	// Hot-applied rate change lifts the throttle.
	d.SetRate(0)
	if err := d.Deliver(context.Background(), job.Payload{}); err != nil {
		t.Fatalf("deliver after SetRate(0): %v", err)
	}
}
