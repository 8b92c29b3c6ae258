package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// UserInfo is the booking identity typed into site forms.
type UserInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Config holds every knob the agent reads. Values come from a config
// file if one exists, otherwise from environment variables (a .env
// file is loaded first when present).
type Config struct {
	TargetURL     string `mapstructure:"TARGET_WEBSITE_URL"`
	TicketCount   int    `mapstructure:"TICKET_COUNT"`
	MaxAttempts   int    `mapstructure:"MAX_ATTEMPTS"`
	RetryInterval int    `mapstructure:"RETRY_INTERVAL"`

	UserName    string `mapstructure:"USER_NAME"`
	UserEmail   string `mapstructure:"USER_EMAIL"`
	UserPhone   string `mapstructure:"USER_PHONE"`
	UserAddress string `mapstructure:"USER_ADDRESS"`

	EmailPassword string `mapstructure:"EMAIL_PASSWORD"`
	SMTPServer    string `mapstructure:"SMTP_SERVER"`
	SMTPPort      int    `mapstructure:"SMTP_PORT"`

	GeminiAPIKey  string `mapstructure:"GEMINI_API_KEY"`
	CaptchaSolver string `mapstructure:"CAPTCHA_SOLVER"`

	HeadlessBrowser bool   `mapstructure:"HEADLESS_BROWSER"`
	BrowserTimeout  int    `mapstructure:"BROWSER_TIMEOUT"`
	ProxyURL        string `mapstructure:"PROXY_URL"`

	DebugMode bool `mapstructure:"DEBUG_MODE"`
}

// Load reads configuration from config.yaml (current dir or ./config)
// and the environment.
func Load() (*Config, error) {
	// Best effort; env vars may come from the shell instead.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("TARGET_WEBSITE_URL", "")
	viper.SetDefault("TICKET_COUNT", 10)
	viper.SetDefault("MAX_ATTEMPTS", 20)
	viper.SetDefault("RETRY_INTERVAL", 5)
	viper.SetDefault("USER_NAME", "")
	viper.SetDefault("USER_EMAIL", "")
	viper.SetDefault("USER_PHONE", "")
	viper.SetDefault("USER_ADDRESS", "")
	viper.SetDefault("EMAIL_PASSWORD", "")
	viper.SetDefault("SMTP_SERVER", "smtp.gmail.com")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("GEMINI_API_KEY", "")
	viper.SetDefault("CAPTCHA_SOLVER", "none")
	viper.SetDefault("HEADLESS_BROWSER", true)
	viper.SetDefault("BROWSER_TIMEOUT", 30)
	viper.SetDefault("PROXY_URL", "")
	viper.SetDefault("DEBUG_MODE", false)

	if err := viper.ReadInConfig(); err != nil {
		// No config file is fine, environment only.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CaptchaSolver = strings.ToLower(strings.TrimSpace(cfg.CaptchaSolver))
	return &cfg, nil
}

// User returns the form-filling identity.
func (c *Config) User() UserInfo {
	return UserInfo{
		Name:    c.UserName,
		Email:   c.UserEmail,
		Phone:   c.UserPhone,
		Address: c.UserAddress,
	}
}

// Timeout returns the per-operation browser timeout.
func (c *Config) Timeout() time.Duration {
	if c.BrowserTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.BrowserTimeout) * time.Second
}

// Validate returns every configuration problem found. An empty slice
// means the agent may start; problems are surfaced before any browser
// work begins.
func (c *Config) Validate() []string {
	var issues []string

	if c.TargetURL == "" {
		issues = append(issues, "target website URL is required (TARGET_WEBSITE_URL)")
	} else if u, err := url.Parse(c.TargetURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("target website URL %q is not a valid absolute URL", c.TargetURL))
	}

	if c.UserEmail == "" {
		issues = append(issues, "user email is required (USER_EMAIL)")
	}
	if c.EmailPassword == "" {
		issues = append(issues, "email password is required for report delivery (EMAIL_PASSWORD)")
	}
	if c.UserName == "" {
		issues = append(issues, "user name is recommended for booking (USER_NAME)")
	}

	if c.TicketCount <= 0 {
		issues = append(issues, "ticket count must be greater than 0")
	} else if c.TicketCount > 50 {
		issues = append(issues, "ticket count should not exceed 50")
	}
	if c.MaxAttempts <= 0 {
		issues = append(issues, "max attempts must be greater than 0")
	}

	switch c.CaptchaSolver {
	case "", "none", "ocr":
	case "gemini":
		if c.GeminiAPIKey == "" {
			issues = append(issues, "Gemini API key is required for the gemini captcha solver (GEMINI_API_KEY)")
		}
	default:
		issues = append(issues, fmt.Sprintf("unknown captcha solver %q (use gemini, ocr or none)", c.CaptchaSolver))
	}

	if c.ProxyURL != "" {
		if u, err := url.Parse(c.ProxyURL); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, fmt.Sprintf("proxy URL %q is not a valid absolute URL", c.ProxyURL))
		}
	}

	return issues
}
