package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Config holds everything the example binaries need. All values come from
// env; no business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Telnyx   TelnyxConfig
	Supabase SupabaseConfig
	Database DatabaseConfig
}

type AppConfig struct {
	Env    string
	UserID string
}

// TelnyxConfig carries the per-account provider settings. SIP credentials
// drive the realtime session; API key and messaging profile drive SMS.
type TelnyxConfig struct {
	SIPUsername        string
	SIPPassword        string
	APIKey             string
	MessagingProfileID string
	CallerIDNumber     string
}

type SupabaseConfig struct {
	URL    string
	APIKey string
}

// DatabaseConfig is the direct-Postgres alternative to Supabase.
type DatabaseConfig struct {
	URL string
}

// Load reads configuration from env and validates it.
func Load() (Config, error) {
	c := Config{}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	if c.App.Env == "" {
		c.App.Env = "local"
	}
	c.App.UserID = strings.TrimSpace(os.Getenv("APP_USER_ID"))

	c.Telnyx.SIPUsername = strings.TrimSpace(os.Getenv("TELNYX_SIP_USERNAME"))
	c.Telnyx.SIPPassword = os.Getenv("TELNYX_SIP_PASSWORD")
	c.Telnyx.APIKey = os.Getenv("TELNYX_API_KEY")
	c.Telnyx.MessagingProfileID = strings.TrimSpace(os.Getenv("TELNYX_MESSAGING_PROFILE_ID"))
	c.Telnyx.CallerIDNumber = strings.TrimSpace(os.Getenv("TELNYX_CALLER_ID_NUMBER"))

	c.Supabase.URL = strings.TrimSpace(os.Getenv("SUPABASE_URL"))
	c.Supabase.APIKey = os.Getenv("SUPABASE_ANON_KEY")

	c.Database.URL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate collects every problem instead of stopping at the first one.
func (c Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}

	if c.Telnyx.SIPUsername == "" {
		errs = append(errs, errors.New("TELNYX_SIP_USERNAME is required"))
	}
	if c.Telnyx.SIPPassword == "" {
		errs = append(errs, errors.New("TELNYX_SIP_PASSWORD is required"))
	}

	hasSupabase := c.Supabase.URL != "" && c.Supabase.APIKey != ""
	if c.Supabase.URL != "" && c.Supabase.APIKey == "" {
		errs = append(errs, errors.New("SUPABASE_ANON_KEY is required when SUPABASE_URL is set"))
	}
	if !hasSupabase && c.Database.URL == "" {
		errs = append(errs, errors.New("either SUPABASE_URL + SUPABASE_ANON_KEY or DATABASE_URL is required"))
	}

	return joinErrors(errs)
}

// UseSupabase reports whether the hosted backend should be used over a
// direct database connection.
func (c Config) UseSupabase() bool {
	return c.Supabase.URL != "" && c.Supabase.APIKey != ""
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
