package core

import (
	"fmt"
	"strings"
	"time"
)

type CallbackConfig struct {
	StateMaxAge        time.Duration `koanf:"state_max_age" mapstructure:"state_max_age"`
	ClockSkewTolerance time.Duration `koanf:"clock_skew_tolerance" mapstructure:"clock_skew_tolerance"`
	NonceMinLength     int           `koanf:"nonce_min_length" mapstructure:"nonce_min_length"`
	AllowedHosts       []string      `koanf:"allowed_hosts" mapstructure:"allowed_hosts"`
	CallbackPath       string        `koanf:"callback_path" mapstructure:"callback_path"`
	SuccessRedirect    string        `koanf:"success_redirect" mapstructure:"success_redirect"`
	ErrorRedirect      string        `koanf:"error_redirect" mapstructure:"error_redirect"`
	ExchangeTimeout    time.Duration `koanf:"exchange_timeout" mapstructure:"exchange_timeout"`
}

type SweepConfig struct {
	PendingMaxAge time.Duration `koanf:"pending_max_age" mapstructure:"pending_max_age"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Callback    CallbackConfig `koanf:"callback" mapstructure:"callback"`
	Sweep       SweepConfig    `koanf:"sweep" mapstructure:"sweep"`
}

// DefaultConfig carries the development defaults. Production deployments
// override the allowlist and tighten the state max age through their config
// layer; they never loosen the nonce floor.
func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		Callback: CallbackConfig{
			StateMaxAge:        defaultStateMaxAge,
			ClockSkewTolerance: defaultClockSkewTolerance,
			NonceMinLength:     defaultNonceMinLength,
			AllowedHosts:       []string{"localhost"},
			CallbackPath:       defaultCallbackPath,
			SuccessRedirect:    "/integrations/connected",
			ErrorRedirect:      "/oauth/error",
			ExchangeTimeout:    30 * time.Second,
		},
		Sweep: SweepConfig{
			PendingMaxAge: 24 * time.Hour,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Callback.StateMaxAge < 0 {
		return fmt.Errorf("core: callback.state_max_age must not be negative")
	}
	if c.Callback.NonceMinLength < 0 {
		return fmt.Errorf("core: callback.nonce_min_length must not be negative")
	}
	if len(c.Callback.AllowedHosts) == 0 {
		return fmt.Errorf("core: callback.allowed_hosts requires at least one host")
	}
	return nil
}
