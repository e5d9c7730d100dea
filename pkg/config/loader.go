package config

import (
	"bytes"
	stderrors "errors"
	"math"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"

	"github.com/ajitpratap0/tap-twilio/pkg/errors"
)

// Environment variables overriding file values.
const (
	EnvAccountSID = "TAP_TWILIO_ACCOUNT_SID"
	EnvAuthToken  = "TAP_TWILIO_AUTH_TOKEN"
	EnvPageSize   = "TAP_TWILIO_PAGE_SIZE"
)

var envBindings = map[string]string{
	"accountSid": EnvAccountSID,
	"authToken":  EnvAuthToken,
	"pageSize":   EnvPageSize,
}

// Load reads and parses the configuration file at filePath and applies
// defaults. It does not validate the result.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidConfig, "failed to read config file").
			WithDetail("path", filePath)
	}

	cfg, err := Parse(data)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			e.WithDetail("path", filePath)
		}
		return nil, err
	}
	return cfg, nil
}

// Parse parses configuration file contents.
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	v := viper.New()
	v.SetConfigType("json")
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to bind environment override")
		}
	}

	if err := v.ReadConfig(bytes.NewReader(jsonc.ToJSON([]byte(content)))); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidConfig, "failed to parse config file")
	}
	// JSON numbers decode as float64, which the struct decoder truncates.
	if raw, ok := v.Get("pageSize").(float64); ok && raw != math.Trunc(raw) {
		return nil, errors.Newf(errors.ErrorTypeInvalidConfig, "pageSize must be an integer, got %v", raw)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidConfig, "failed to decode config file")
	}
	cfg.ApplyDefaults()

	return cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var out strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		out.WriteString(content[:start])
		out.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	out.WriteString(content)
	return out.String()
}
