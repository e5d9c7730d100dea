package config

import (
	"time"

	"github.com/ajitpratap0/tap-twilio/pkg/errors"
)

// Default stream produced when the file names none.
const (
	DefaultStream   = "IncomingPhoneNumbers"
	DefaultResource = "incoming_phone_numbers"
)

// StreamConfig pairs an output stream name with the upstream resource
// whose records it carries.
type StreamConfig struct {
	Stream   string `mapstructure:"stream" json:"stream"`
	Resource string `mapstructure:"resource" json:"resource"`
}

// Config is the tap configuration. It is immutable once loaded.
type Config struct {
	// AccountSID and AuthToken authenticate every API request
	AccountSID string `mapstructure:"accountSid" json:"accountSid"`
	AuthToken  string `mapstructure:"authToken" json:"authToken"`

	// PageSize is passed to every page request; zero leaves it to the API
	PageSize int `mapstructure:"pageSize" json:"pageSize"`

	// Streams lists the streams to extract, in configuration order
	Streams []StreamConfig `mapstructure:"streams" json:"streams"`

	// BaseURL and MessagingBaseURL override the API roots
	BaseURL          string `mapstructure:"baseUrl" json:"baseUrl"`
	MessagingBaseURL string `mapstructure:"messagingBaseUrl" json:"messagingBaseUrl"`

	// RequestTimeout bounds a single page request
	RequestTimeout time.Duration `mapstructure:"requestTimeout" json:"requestTimeout"`
}

// ApplyDefaults fills in the default stream list.
func (c *Config) ApplyDefaults() {
	if len(c.Streams) == 0 {
		c.Streams = []StreamConfig{{Stream: DefaultStream, Resource: DefaultResource}}
	}
}

// Validate reports the first problem that prevents the tap from running.
func (c *Config) Validate() error {
	if c.AccountSID == "" || c.AuthToken == "" {
		return errors.New(errors.ErrorTypeInvalidConfig, "Config file must have accountSid and authToken")
	}
	if c.PageSize < 0 {
		return errors.Newf(errors.ErrorTypeInvalidConfig, "pageSize must not be negative, got %d", c.PageSize)
	}
	if c.RequestTimeout < 0 {
		return errors.Newf(errors.ErrorTypeInvalidConfig, "requestTimeout must not be negative, got %s", c.RequestTimeout)
	}

	seen := make(map[string]bool, len(c.Streams))
	for i, s := range c.Streams {
		if s.Stream == "" || s.Resource == "" {
			return errors.Newf(errors.ErrorTypeInvalidConfig, "streams[%d] must have stream and resource", i)
		}
		if seen[s.Stream] {
			return errors.Newf(errors.ErrorTypeInvalidConfig, "stream %q is configured twice", s.Stream)
		}
		seen[s.Stream] = true
	}
	return nil
}
