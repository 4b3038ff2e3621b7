package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ESIConfig struct {
	BaseURL     string `yaml:"base_url"`
	SSOTokenURL string `yaml:"sso_token_url"`
	UserAgent   string `yaml:"user_agent"`
	// Requests per minute across all accounts.
	RatePerMinute int `yaml:"rate_per_minute"`

	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
}

const (
	_baseURLDefault     = "https://esi.evetech.net"
	_ssoTokenURLDefault = "https://login.eveonline.com/v2/oauth/token"
	_userAgentDefault   = "eve-sales-notification"
	_ratePerMinDefault  = 300
)

func (c *ESIConfig) Setup() error {
	if c.BaseURL == "" {
		c.BaseURL = _baseURLDefault
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return err
	}
	if c.SSOTokenURL == "" {
		c.SSOTokenURL = _ssoTokenURLDefault
	}
	if c.UserAgent == "" {
		c.UserAgent = _userAgentDefault
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = _ratePerMinDefault
	}

	c.ClientID = os.Getenv("EVE_CLIENT_ID")
	c.ClientSecret = os.Getenv("EVE_CLIENT_SECRET")
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("empty eve sso client credentials")
	}

	return nil
}

type PollerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Workers        int           `yaml:"workers"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	DeletionGrace  time.Duration `yaml:"deletion_grace"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

const (
	_intervalDefault       = 60 * time.Second
	_workersDefault        = 4
	_streamTimeoutDefault  = 30 * time.Second
	_gracePeriodDefault    = time.Hour
	_deletionGraceDefault  = time.Hour
	_retryAttemptsDefault  = 3
	_retryBaseDelayDefault = 2 * time.Second
	_retryMaxDelayDefault  = 30 * time.Second
)

func (c *PollerConfig) Setup() {
	if c.Interval <= 0 {
		c.Interval = _intervalDefault
	}
	if c.Workers <= 0 {
		c.Workers = _workersDefault
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = _streamTimeoutDefault
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = _gracePeriodDefault
	}
	if c.DeletionGrace <= 0 {
		c.DeletionGrace = _deletionGraceDefault
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = _retryAttemptsDefault
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = _retryBaseDelayDefault
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = _retryMaxDelayDefault
	}
}

type TelegramConfig struct {
	Token string `yaml:"-"`
}

func (c *TelegramConfig) Setup() error {
	c.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	if c.Token == "" {
		return fmt.Errorf("empty telegram bot token")
	}
	return nil
}

type NotifierConfig struct {
	LogLevel string         `yaml:"log_level"`
	HTTPPort string         `yaml:"http_port"`
	ESI      ESIConfig      `yaml:"esi"`
	Poller   PollerConfig   `yaml:"poller"`
	Telegram TelegramConfig `yaml:"telegram"`
}

func (c *NotifierConfig) ValidateAndSetup() error {
	if c.HTTPPort == "" {
		c.HTTPPort = "8080"
	}
	if err := c.ESI.Setup(); err != nil {
		return fmt.Errorf("can't setup esi cfg: %w", err)
	}
	c.Poller.Setup()
	if err := c.Telegram.Setup(); err != nil {
		return fmt.Errorf("can't setup telegram cfg: %w", err)
	}
	return nil
}

func LoadNotifierConfig(filename string) (NotifierConfig, error) {
	var cfg NotifierConfig
	input, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("can't read file: %w", err)
	}

	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return cfg, fmt.Errorf("can't unmarshal config: %w", err)
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("can't setup cfg: %w", err)
	}

	return cfg, nil
}
