package job

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid is the root of all job validation failures.
// Callers should match with errors.Is and surface the wrapped detail.
var ErrInvalid = errors.New("invalid job")

// TriggerKind discriminates how a job fires.
type TriggerKind string

const (
	KindRecurring TriggerKind = "recurring" // cron cadence until cancelled
	KindOneTime   TriggerKind = "one-time"  // single absolute instant
)

// Trigger describes when a job fires. Exactly one of Cron or FireAt
// must be set; supplying neither or both is rejected at validation.
type Trigger struct {
	Cron     string    `json:"cron,omitempty"`
	Timezone string    `json:"timezone,omitempty"` // IANA TZ; empty means the scheduler default
	FireAt   time.Time `json:"fire_at,omitempty"`
}

// Kind reports the trigger kind, or an error when the trigger is
// ambiguous or empty.
func (t Trigger) Kind() (TriggerKind, error) {
	hasCron := strings.TrimSpace(t.Cron) != ""
	hasAt := !t.FireAt.IsZero()
	switch {
	case hasCron && hasAt:
		return "", fmt.Errorf("%w: both cron and fire_at set", ErrInvalid)
	case hasCron:
		return KindRecurring, nil
	case hasAt:
		return KindOneTime, nil
	default:
		return "", fmt.Errorf("%w: trigger requires cron or fire_at", ErrInvalid)
	}
}

// EmailPayload is the delivery content for the email channel.
type EmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// SMSPayload is the delivery content for the sms channel.
type SMSPayload struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// TelegramPayload is the delivery content for the telegram channel.
type TelegramPayload struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// Payload carries the channel-specific delivery content. The scheduler
// never looks inside it beyond Channel; the delivery layer does.
type Payload struct {
	Channel  string           `json:"channel"`
	Email    *EmailPayload    `json:"email,omitempty"`
	SMS      *SMSPayload      `json:"sms,omitempty"`
	Telegram *TelegramPayload `json:"telegram,omitempty"`
}

// Job is a durable record of a single scheduled delivery intent.
type Job struct {
	ID        string    `json:"id"`
	Payload   Payload   `json:"payload"`
	Trigger   Trigger   `json:"trigger"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Validate checks payload completeness and trigger exclusivity.
// Cron syntax and timezone resolution are the scheduler's concern
// (it owns the parser); this only covers what the model can see.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Payload.Channel) == "" {
		return fmt.Errorf("%w: payload channel required", ErrInvalid)
	}
	if _, err := j.Trigger.Kind(); err != nil {
		return err
	}

	switch j.Payload.Channel {
	case "email":
		p := j.Payload.Email
		if p == nil || len(p.To) == 0 {
			return fmt.Errorf("%w: email payload requires recipients", ErrInvalid)
		}
		for _, to := range p.To {
			if strings.TrimSpace(to) == "" {
				return fmt.Errorf("%w: empty email recipient", ErrInvalid)
			}
		}
		if strings.TrimSpace(p.Subject) == "" {
			return fmt.Errorf("%w: email payload requires subject", ErrInvalid)
		}
		if strings.TrimSpace(p.Body) == "" {
			return fmt.Errorf("%w: email payload requires body", ErrInvalid)
		}
	case "sms":
		p := j.Payload.SMS
		if p == nil || strings.TrimSpace(p.Number) == "" {
			return fmt.Errorf("%w: sms payload requires number", ErrInvalid)
		}
		if strings.TrimSpace(p.Message) == "" {
			return fmt.Errorf("%w: sms payload requires message", ErrInvalid)
		}
	case "telegram":
		p := j.Payload.Telegram
		if p == nil || p.ChatID == 0 {
			return fmt.Errorf("%w: telegram payload requires chat_id", ErrInvalid)
		}
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("%w: telegram payload requires text", ErrInvalid)
		}
	default:
		// Unknown channels are rejected here so a typo never reaches
		// the delivery registry as a dead job.
		return fmt.Errorf("%w: unknown channel %q", ErrInvalid, j.Payload.Channel)
	}
	return nil
}
