package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderTwilio    = "twilio"
	ProviderSimulated = "simulated"

	StatusCallbackPath = "/webhooks/twilio/status"

	defaultPort            = 8080
	defaultRedisPort       = 6379
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultPollInterval    = 5 * time.Second
	defaultLaunchGuardTTL  = 10 * time.Second
	defaultSimulatedCaller = "+15005550006"
)

// Config holds all configuration required by the call agent.
// All values come from env, optionally seeded from a .env file in the working
// directory. Variables already set in the environment win over the file.
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	Telephony TelephonyConfig
	Twilio    TwilioConfig
	OpenAI    OpenAIConfig
	Calls     CallsConfig
	Redis     RedisConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is where the provider can reach this process. When set,
	// calls are created with a status callback pointing back at it.
	PublicBaseURL string
}

type TelephonyConfig struct {
	// Provider is "twilio" or "simulated".
	Provider string
	CallerID string
}

type TwilioConfig struct {
	AccountSID       string
	AuthToken        string
	BaseURL          string
	ValidateWebhooks bool
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// Optional drops the APIKey requirement for runs that never generate a
	// script.
	Optional bool
}

type CallsConfig struct {
	PollInterval time.Duration

	// LaunchGuardTTL of zero disables the duplicate launch guard.
	LaunchGuardTTL time.Duration
}

// RedisConfig is optional; without a host the launch guard is kept in memory.
type RedisConfig struct {
	Host string
	Port int
}

func Load() (Config, error) {
	return loadEnv(false)
}

// LoadWithoutScripts is Load for callers that bring their own script;
// OPENAI_API_KEY may be unset.
func LoadWithoutScripts() (Config, error) {
	return loadEnv(true)
}

func loadEnv(openAIOptional bool) (Config, error) {
	var parseErrs []error
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		parseErrs = append(parseErrs, fmt.Errorf(".env: %w", err))
	}
	c := Config{OpenAI: OpenAIConfig{Optional: openAIOptional}}
	return c.fromEnv(parseErrs)
}

// fromEnv fills c from the process environment, then defaults and validates.
func (c Config) fromEnv(parseErrs []error) (Config, error) {
	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := optionalInt("APP_PORT", defaultPort)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.Telephony.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("TELEPHONY_PROVIDER")))
	c.Telephony.CallerID = strings.TrimSpace(os.Getenv("TWILIO_CALLER_ID"))

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.BaseURL = strings.TrimSpace(os.Getenv("TWILIO_BASE_URL"))
	{
		b, err := optionalBool("TWILIO_VALIDATE_WEBHOOKS")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Twilio.ValidateWebhooks = b
	}

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	c.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))

	{
		d, err := optionalDuration("POLL_INTERVAL", defaultPollInterval)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Calls.PollInterval = d
	}
	{
		d, err := optionalDuration("LAUNCH_GUARD_TTL", defaultLaunchGuardTTL)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.Calls.LaunchGuardTTL = d
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optionalInt("REDIS_PORT", defaultRedisPort)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Telephony.Provider == "" {
		c.Telephony.Provider = ProviderTwilio
	}
	if c.Telephony.Provider == ProviderSimulated && c.Telephony.CallerID == "" {
		c.Telephony.CallerID = defaultSimulatedCaller
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaultOpenAIModel
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL != "" {
		u, err := url.Parse(c.App.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", c.App.PublicBaseURL))
		}
	}

	switch c.Telephony.Provider {
	case ProviderTwilio:
		if c.Twilio.AccountSID == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
		}
		if c.Telephony.CallerID == "" {
			errs = append(errs, errors.New("TWILIO_CALLER_ID is required"))
		}
	case ProviderSimulated:
		if c.IsProduction() {
			errs = append(errs, errors.New("TELEPHONY_PROVIDER=simulated is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("TELEPHONY_PROVIDER must be one of twilio, simulated, got %q", c.Telephony.Provider))
	}
	if c.Twilio.ValidateWebhooks && c.App.PublicBaseURL == "" {
		// Signatures cover the full public URL of the callback.
		errs = append(errs, errors.New("TWILIO_VALIDATE_WEBHOOKS requires PUBLIC_BASE_URL"))
	}

	if c.OpenAI.APIKey == "" && !c.OpenAI.Optional {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}

	if c.Calls.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Calls.PollInterval))
	}
	if c.Calls.LaunchGuardTTL < 0 {
		errs = append(errs, fmt.Errorf("LAUNCH_GUARD_TTL must not be negative, got %s", c.Calls.LaunchGuardTTL))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// StatusCallbackURL is empty when no public base URL is configured.
func (c Config) StatusCallbackURL() string {
	if c.App.PublicBaseURL == "" {
		return ""
	}
	return c.App.PublicBaseURL + StatusCallbackPath
}

func (c Config) HasRedis() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func optionalInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func optionalBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
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
