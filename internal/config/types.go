package config

// Config is the full notifyd configuration.
//
// Files may be JSON or YAML; YAML is coerced to JSON so both formats
// share one strict decoder. All durations are Go duration strings
// (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	HTTP      HTTPConfig      `json:"http"`
	Channels  ChannelsConfig  `json:"channels"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the durable job store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./jobs.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SchedulerConfig controls the scheduling engine.
//
// MissedPolicy decides what happens to a one-time job whose fire time
// elapsed while the process was down: "drop" (default) skips it,
// "run" executes it immediately at startup.
type SchedulerConfig struct {
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	DeliveryTimeout string `json:"delivery_timeout,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	MissedPolicy    string `json:"missed_policy,omitempty"`
}

type HTTPConfig struct {
	Addr         string `json:"addr,omitempty"` // default: "127.0.0.1:4000"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// ChannelsConfig configures delivery channels. A channel section left
// nil is simply not registered; jobs for it fail at fire time with an
// unknown channel error.
type ChannelsConfig struct {
	Email    *EmailChannelConfig    `json:"email,omitempty"`
	SMS      *SMSChannelConfig      `json:"sms,omitempty"`
	Telegram *TelegramChannelConfig `json:"telegram,omitempty"`
}

type EmailChannelConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Secure     bool   `json:"secure,omitempty"`
	User       string `json:"user,omitempty"`
	Pass       string `json:"pass,omitempty"` // do not log
	From       string `json:"from"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type SMSChannelConfig struct {
	AccountSID    string `json:"account_sid"`
	AuthToken     string `json:"auth_token"` // do not log
	From          string `json:"from"`
	BaseURL       string `json:"base_url,omitempty"`
	CountryPrefix string `json:"country_prefix,omitempty"` // e.g. "+91"
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}

type TelegramChannelConfig struct {
	Token      string `json:"token"` // do not log
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}
