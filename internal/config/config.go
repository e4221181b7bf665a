// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"newspay-l402/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // per-handler deadline
	Language       string        `yaml:"language"`        // browser page text, see internal/infra/i18n/locales
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type L402Config struct {
	Version           string        `yaml:"version"`    // advertised in every 402 body
	PublicURL         string        `yaml:"public_url"` // base for payment_request_url
	ContextTTL        time.Duration `yaml:"context_ttl"`
	SessionTimeout    time.Duration `yaml:"session_timeout"` // PENDING sessions older than this expire
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ReconcileAfter    time.Duration `yaml:"reconcile_after"` // only reconcile sessions at least this old
	ReconcileWorkers  int           `yaml:"reconcile_workers"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	PaymentRateLimit  int           `yaml:"payment_rate_limit"` // payment requests per client per minute, 0 = off
	NewsPerCategory   int           `yaml:"news_per_category"`
}

type OfferConfig struct {
	ID             string        `yaml:"id"`
	Title          string        `yaml:"title"`
	Description    string        `yaml:"description"`
	Amount         int64         `yaml:"amount"` // minor units
	Currency       string        `yaml:"currency"`
	Entitlement    string        `yaml:"entitlement"` // "*", a category, or empty for buyer's choice
	Duration       time.Duration `yaml:"duration"`
	DurationLabel  string        `yaml:"duration_label"`
	PaymentMethods []string      `yaml:"payment_methods"`
}

// Offer converts the yaml entry into a validated catalog offer.
func (o OfferConfig) Offer() (*model.Offer, error) {
	off, err := model.NewOffer(o.ID, o.Title, o.Description, o.Amount, o.Currency,
		model.Scope(strings.ToLower(strings.TrimSpace(o.Entitlement))), o.Duration, o.DurationLabel, o.PaymentMethods)
	if err != nil {
		return nil, fmt.Errorf("offer %q: %w", o.ID, err)
	}
	return off, nil
}

type StorageConfig struct {
	Driver   string `yaml:"driver"` // memory|bolt|durable
	BoltPath string `yaml:"bolt_path"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type PaymentConfig struct {
	Provider string `yaml:"provider"` // stripe|noop
	Stripe   struct {
		SecretKey     string `yaml:"secret_key"`
		WebhookSecret string `yaml:"webhook_secret"`
		SuccessURL    string `yaml:"success_url"`
		CancelURL     string `yaml:"cancel_url"`
	} `yaml:"stripe"`
}

type EventsConfig struct {
	Brokers []string `yaml:"brokers"` // empty disables publishing
	Topic   string   `yaml:"topic"`
}

type SecurityConfig struct {
	AdminJWTSecret string        `yaml:"admin_jwt_secret"`
	AdminTokenTTL  time.Duration `yaml:"admin_token_ttl"`
	TokenKey       string        `yaml:"token_key"` // base64, 32 bytes; seals issued tokens for pickup
}

type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Log        LogConfig      `yaml:"log"`
	L402       L402Config     `yaml:"l402"`
	Categories []string       `yaml:"categories"`
	Offers     []OfferConfig  `yaml:"offers"`
	Storage    StorageConfig  `yaml:"storage"`
	Database   DatabaseConfig `yaml:"database"`
	Redis      RedisConfig    `yaml:"redis"`
	Payment    PaymentConfig  `yaml:"payment"`
	Events     EventsConfig   `yaml:"events"`
	Security   SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// DefaultCategories is the news category set used when the file names none.
var DefaultCategories = []string{"politics", "international", "economy", "technology", "sports", "entertainment"}

// DefaultOffers is the catalog used when the file names none.
func DefaultOffers() []OfferConfig {
	return []OfferConfig{
		{
			ID:             "one_category",
			Title:          "Single Category Access",
			Description:    "Access to one news category of your choice",
			Amount:         100,
			Currency:       "USD",
			PaymentMethods: []string{"stripe"},
		},
		{
			ID:             "all_categories",
			Title:          "All Categories Access",
			Description:    "Access to all news categories",
			Amount:         500,
			Currency:       "USD",
			Entitlement:    string(model.ScopeAll),
			Duration:       30 * 24 * time.Hour,
			DurationLabel:  "1 month",
			PaymentMethods: []string{"stripe"},
		},
	}
}

// LoadConfig reads the yaml file at path, applies defaults and validates it.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse is LoadConfig without the file read.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	c.Server.ReadTimeout = orDuration(c.Server.ReadTimeout, 10*time.Second)
	c.Server.WriteTimeout = orDuration(c.Server.WriteTimeout, 30*time.Second)
	c.Server.RequestTimeout = orDuration(c.Server.RequestTimeout, 15*time.Second)
	if c.Server.Language == "" {
		c.Server.Language = "en"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.L402.Version == "" {
		c.L402.Version = "0.2.3"
	}
	if c.L402.PublicURL == "" {
		c.L402.PublicURL = "http://localhost" + c.Server.Addr
	}
	c.L402.PublicURL = strings.TrimRight(c.L402.PublicURL, "/")
	c.L402.ContextTTL = orDuration(c.L402.ContextTTL, 15*time.Minute)
	c.L402.SessionTimeout = orDuration(c.L402.SessionTimeout, 24*time.Hour)
	c.L402.ReconcileInterval = orDuration(c.L402.ReconcileInterval, time.Minute)
	c.L402.ReconcileAfter = orDuration(c.L402.ReconcileAfter, 2*time.Minute)
	c.L402.SweepInterval = orDuration(c.L402.SweepInterval, 5*time.Minute)
	if c.L402.ReconcileWorkers <= 0 {
		c.L402.ReconcileWorkers = 4
	}
	if c.L402.NewsPerCategory <= 0 {
		c.L402.NewsPerCategory = 5
	}

	if len(c.Categories) == 0 {
		c.Categories = append([]string(nil), DefaultCategories...)
	}
	if len(c.Offers) == 0 {
		c.Offers = DefaultOffers()
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver == "bolt" && c.Storage.BoltPath == "" {
		c.Storage.BoltPath = "newspay.db"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "l402:"
	}

	if c.Payment.Provider == "" {
		c.Payment.Provider = "noop"
	}
	c.Payment.Provider = strings.ToLower(c.Payment.Provider)
	if c.Payment.Stripe.SuccessURL == "" {
		c.Payment.Stripe.SuccessURL = c.L402.PublicURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"
	}
	if c.Payment.Stripe.CancelURL == "" {
		c.Payment.Stripe.CancelURL = c.L402.PublicURL + "/payment/cancel"
	}

	if c.Events.Topic == "" {
		c.Events.Topic = "l402.payment-events"
	}
	c.Security.AdminTokenTTL = orDuration(c.Security.AdminTokenTTL, time.Hour)
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "bolt":
	case "durable":
		if c.Database.URL == "" {
			return errors.New("database.url is required for storage.driver=durable")
		}
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for storage.driver=durable")
		}
	default:
		return fmt.Errorf("storage.driver %q is not one of memory|bolt|durable", c.Storage.Driver)
	}

	switch c.Payment.Provider {
	case "noop":
	case "stripe":
		if c.Payment.Stripe.SecretKey == "" {
			return errors.New("payment.stripe.secret_key is required")
		}
		if c.Payment.Stripe.WebhookSecret == "" {
			return errors.New("payment.stripe.webhook_secret is required")
		}
	default:
		return fmt.Errorf("payment.provider %q is not one of stripe|noop", c.Payment.Provider)
	}

	seen := make(map[string]struct{}, len(c.Offers))
	for _, o := range c.Offers {
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("offers: duplicate id %q", o.ID)
		}
		seen[o.ID] = struct{}{}
		if _, err := o.Offer(); err != nil {
			return err
		}
	}
	return nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
