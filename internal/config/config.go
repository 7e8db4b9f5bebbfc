package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Gmail    GmailConfig    `mapstructure:"gmail"`
	Mail     MailConfig     `mapstructure:"mail"`
	Tokens   TokenConfig    `mapstructure:"tokens"`
	Reminder ReminderConfig `mapstructure:"reminder"`
	Intake   IntakeConfig   `mapstructure:"intake"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
}

// MailConfig selects the mail transport
type MailConfig struct {
	Transport   string        `mapstructure:"transport"` // gmail or log
	From        string        `mapstructure:"from"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// TokenConfig holds link signing configuration
type TokenConfig struct {
	Secret        string        `mapstructure:"secret"`
	AllowInsecure bool          `mapstructure:"allow_insecure"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	ActionTTL     time.Duration `mapstructure:"action_ttl"`
	EmailTTL      time.Duration `mapstructure:"email_ttl"`
}

// ReminderConfig holds the reminder schedule
type ReminderConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

// IntakeConfig holds the IMAP transcript mailbox configuration
type IntakeConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	IMAPHost        string `mapstructure:"imap_host"`
	IMAPPort        int    `mapstructure:"imap_port"`
	IMAPUser        string `mapstructure:"imap_user"`
	IMAPPassword    string `mapstructure:"imap_password"`
	Mailbox         string `mapstructure:"mailbox"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
}

// AdminConfig protects the admin API
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("mail.transport", "gmail")
	v.SetDefault("mail.send_timeout", "20s")

	v.SetDefault("tokens.allow_insecure", false)
	v.SetDefault("tokens.public_base_url", "http://localhost:8080")
	v.SetDefault("tokens.action_ttl", "720h")
	v.SetDefault("tokens.email_ttl", "2160h")

	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.cron", "0 0 8 * * *")
	v.SetDefault("reminder.timezone", "UTC")

	v.SetDefault("intake.enabled", false)
	v.SetDefault("intake.imap_host", "imap.gmail.com")
	v.SetDefault("intake.imap_port", 993)
	v.SetDefault("intake.mailbox", "INBOX")
	v.SetDefault("intake.interval_minutes", 5)
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")

	// Gmail
	v.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	v.BindEnv("gmail.user_email", "GMAIL_USER_EMAIL")

	// Mail
	v.BindEnv("mail.transport", "MAIL_TRANSPORT")
	v.BindEnv("mail.from", "MAIL_FROM")
	v.BindEnv("mail.send_timeout", "MAIL_SEND_TIMEOUT")

	// Tokens
	v.BindEnv("tokens.secret", "TOKEN_SECRET")
	v.BindEnv("tokens.allow_insecure", "TOKEN_ALLOW_INSECURE")
	v.BindEnv("tokens.public_base_url", "PUBLIC_BASE_URL")
	v.BindEnv("tokens.action_ttl", "TOKEN_ACTION_TTL")
	v.BindEnv("tokens.email_ttl", "TOKEN_EMAIL_TTL")

	// Reminder
	v.BindEnv("reminder.enabled", "REMINDER_ENABLED")
	v.BindEnv("reminder.cron", "REMINDER_CRON")
	v.BindEnv("reminder.timezone", "REMINDER_TIMEZONE")

	// Intake
	v.BindEnv("intake.enabled", "IMAP_INTAKE_ENABLED")
	v.BindEnv("intake.imap_host", "IMAP_HOST")
	v.BindEnv("intake.imap_port", "IMAP_PORT")
	v.BindEnv("intake.imap_user", "IMAP_USER")
	v.BindEnv("intake.imap_password", "IMAP_PASSWORD")
	v.BindEnv("intake.mailbox", "IMAP_MAILBOX")
	v.BindEnv("intake.interval_minutes", "IMAP_INTERVAL_MINUTES")

	// Admin
	v.BindEnv("admin.api_key", "ADMIN_API_KEY")
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Location returns the reminder timezone
func (c *ReminderConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	switch c.Mail.Transport {
	case "gmail":
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required for the gmail transport")
		}
	case "log":
	default:
		return fmt.Errorf("unsupported mail transport %q", c.Mail.Transport)
	}
	if c.Mail.SendTimeout <= 0 {
		return fmt.Errorf("mail send timeout must be greater than 0")
	}

	if c.Tokens.Secret == "" && !c.Tokens.AllowInsecure {
		return fmt.Errorf("token secret is required (set TOKEN_SECRET)")
	}
	if !strings.HasPrefix(c.Tokens.PublicBaseURL, "http://") && !strings.HasPrefix(c.Tokens.PublicBaseURL, "https://") {
		return fmt.Errorf("public base url must be an absolute http(s) url")
	}
	if c.Tokens.ActionTTL <= 0 || c.Tokens.EmailTTL <= 0 {
		return fmt.Errorf("token ttls must be greater than 0")
	}

	if _, err := c.Reminder.Location(); err != nil {
		return err
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(c.Reminder.Cron); err != nil {
		return fmt.Errorf("invalid reminder cron %q: %w", c.Reminder.Cron, err)
	}

	if c.Intake.Enabled {
		if c.Intake.IMAPUser == "" || c.Intake.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when intake is enabled")
		}
		if c.Intake.IntervalMinutes <= 0 {
			return fmt.Errorf("intake interval must be greater than 0")
		}
	}

	return nil
}
