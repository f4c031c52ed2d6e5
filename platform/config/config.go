// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SequenceConfig provides settings for the sequence scheduler.
type SequenceConfig interface {
	GetSequenceTickInterval() time.Duration
	GetResumeGracePeriod() time.Duration
	GetCollaboratorTimeout() time.Duration
}

// TasksConfig provides settings for the task tracker and runner.
type TasksConfig interface {
	GetAntiWasteWindow() time.Duration
	GetTaskRunnerConcurrency() int
}

// EmailConfig provides settings for outreach email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// MailboxConfig provides settings for the IMAP reply poller.
type MailboxConfig interface {
	GetIMAPHost() string
	GetIMAPPort() int
	GetIMAPUsername() string
	GetIMAPPassword() string
	GetMailboxPollInterval() time.Duration
	IsMailboxEnabled() bool
}

// AIConfig provides settings for AI collaborators.
type AIConfig interface {
	GetGeminiAPIKey() string
	GetMoonshotAPIKey() string
	IsPersonalizationEnabled() bool
}

// QdrantConfig provides settings for Qdrant vector database.
type QdrantConfig interface {
	GetQdrantURL() string
	GetQdrantAPIKey() string
	GetQdrantCollection() string
	IsQdrantEnabled() bool
}

// EmbeddingConfig provides settings for the embedding API service.
type EmbeddingConfig interface {
	GetEmbeddingAPIURL() string
	GetEmbeddingAPIKey() string
	IsEmbeddingEnabled() bool
}

// WhatsAppConfig provides settings for the WhatsApp notification channel.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// StorageConfig provides settings for MinIO S3-compatible storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketProposals() string
	IsMinIOEnabled() bool
}

// GotenbergConfig provides settings for the Gotenberg HTML-to-PDF service.
type GotenbergConfig interface {
	GetGotenbergURL() string
	GetGotenbergUsername() string
	GetGotenbergPassword() string
	IsGotenbergEnabled() bool
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
	GetOwnerEmail() string
	GetOwnerPhone() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string
	CORSAllowCreds  bool
	AppBaseURL      string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	SequenceTickInterval  time.Duration
	ResumeGracePeriod     time.Duration
	CollaboratorTimeout   time.Duration
	SequenceTemplatesPath string

	AntiWasteWindow       time.Duration
	TaskRunnerConcurrency int

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	IMAPHost            string
	IMAPPort            int
	IMAPUsername        string
	IMAPPassword        string
	MailboxPollInterval time.Duration

	GeminiAPIKey   string
	MoonshotAPIKey string

	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	EmbeddingAPIURL string
	EmbeddingAPIKey string

	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string

	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MinioBucketProposals string

	GotenbergURL      string
	GotenbergUsername string
	GotenbergPassword string

	OwnerEmail string
	OwnerPhone string
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetSequenceTickInterval() time.Duration { return c.SequenceTickInterval }
func (c *Config) GetResumeGracePeriod() time.Duration    { return c.ResumeGracePeriod }
func (c *Config) GetCollaboratorTimeout() time.Duration  { return c.CollaboratorTimeout }

func (c *Config) GetAntiWasteWindow() time.Duration { return c.AntiWasteWindow }
func (c *Config) GetTaskRunnerConcurrency() int     { return c.TaskRunnerConcurrency }

func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetIMAPHost() string                   { return c.IMAPHost }
func (c *Config) GetIMAPPort() int                      { return c.IMAPPort }
func (c *Config) GetIMAPUsername() string               { return c.IMAPUsername }
func (c *Config) GetIMAPPassword() string               { return c.IMAPPassword }
func (c *Config) GetMailboxPollInterval() time.Duration { return c.MailboxPollInterval }
func (c *Config) IsMailboxEnabled() bool                { return c.IMAPHost != "" && c.IMAPUsername != "" }

func (c *Config) GetGeminiAPIKey() string        { return c.GeminiAPIKey }
func (c *Config) GetMoonshotAPIKey() string      { return c.MoonshotAPIKey }
func (c *Config) IsPersonalizationEnabled() bool { return c.GeminiAPIKey != "" || c.MoonshotAPIKey != "" }

func (c *Config) GetQdrantURL() string        { return c.QdrantURL }
func (c *Config) GetQdrantAPIKey() string     { return c.QdrantAPIKey }
func (c *Config) GetQdrantCollection() string { return c.QdrantCollection }
func (c *Config) IsQdrantEnabled() bool       { return c.QdrantURL != "" }

func (c *Config) GetEmbeddingAPIURL() string { return c.EmbeddingAPIURL }
func (c *Config) GetEmbeddingAPIKey() string { return c.EmbeddingAPIKey }
func (c *Config) IsEmbeddingEnabled() bool   { return c.EmbeddingAPIURL != "" }

func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

func (c *Config) GetMinIOEndpoint() string        { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string       { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string       { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool            { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketProposals() string { return c.MinioBucketProposals }
func (c *Config) IsMinIOEnabled() bool            { return c.MinIOEndpoint != "" }

func (c *Config) GetGotenbergURL() string      { return c.GotenbergURL }
func (c *Config) GetGotenbergUsername() string { return c.GotenbergUsername }
func (c *Config) GetGotenbergPassword() string { return c.GotenbergPassword }
func (c *Config) IsGotenbergEnabled() bool     { return c.GotenbergURL != "" }

func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }
func (c *Config) GetOwnerEmail() string { return c.OwnerEmail }
func (c *Config) GetOwnerPhone() string { return c.OwnerPhone }

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from environment variables. A .env file is
// loaded first when present (development convenience, ignored in prod).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTAccessSecret: os.Getenv("JWT_ACCESS_SECRET"),
		CORSAllowAll:    getBool("CORS_ALLOW_ALL", false),
		CORSOrigins:     getList("CORS_ORIGINS"),
		CORSAllowCreds:  getBool("CORS_ALLOW_CREDENTIALS", true),
		AppBaseURL:      getEnv("APP_BASE_URL", "http://localhost:8080"),

		RedisURL:         os.Getenv("REDIS_URL"),
		RedisTLSInsecure: getBool("REDIS_TLS_INSECURE", false),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getInt("ASYNQ_CONCURRENCY", 10),

		SequenceTickInterval:  getDuration("SEQUENCE_TICK_INTERVAL", time.Minute),
		ResumeGracePeriod:     getDuration("RESUME_GRACE_PERIOD", 4*time.Hour),
		CollaboratorTimeout:   getDuration("COLLABORATOR_TIMEOUT", 30*time.Second),
		SequenceTemplatesPath: getEnv("SEQUENCE_TEMPLATES_PATH", "templates/sequences.yaml"),

		AntiWasteWindow:       getDuration("ANTI_WASTE_WINDOW", 24*time.Hour),
		TaskRunnerConcurrency: getInt("TASK_RUNNER_CONCURRENCY", 4),

		EmailEnabled:     getBool("EMAIL_ENABLED", false),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getInt("SMTP_PORT", 587),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Outreach"),
		EmailFromAddress: os.Getenv("EMAIL_FROM_ADDRESS"),

		IMAPHost:            os.Getenv("IMAP_HOST"),
		IMAPPort:            getInt("IMAP_PORT", 993),
		IMAPUsername:        os.Getenv("IMAP_USERNAME"),
		IMAPPassword:        os.Getenv("IMAP_PASSWORD"),
		MailboxPollInterval: getDuration("MAILBOX_POLL_INTERVAL", 2*time.Minute),

		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		MoonshotAPIKey: os.Getenv("MOONSHOT_API_KEY"),

		QdrantURL:        os.Getenv("QDRANT_URL"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "leads"),

		EmbeddingAPIURL: os.Getenv("EMBEDDING_API_URL"),
		EmbeddingAPIKey: os.Getenv("EMBEDDING_API_KEY"),

		WhatsAppURL:      os.Getenv("WHATSAPP_URL"),
		WhatsAppKey:      os.Getenv("WHATSAPP_KEY"),
		WhatsAppDeviceID: os.Getenv("WHATSAPP_DEVICE_ID"),

		MinIOEndpoint:        os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:       os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:       os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:          getBool("MINIO_USE_SSL", false),
		MinioBucketProposals: getEnv("MINIO_BUCKET_PROPOSALS", "proposals"),

		GotenbergURL:      os.Getenv("GOTENBERG_URL"),
		GotenbergUsername: os.Getenv("GOTENBERG_USERNAME"),
		GotenbergPassword: os.Getenv("GOTENBERG_PASSWORD"),

		OwnerEmail: os.Getenv("OWNER_EMAIL"),
		OwnerPhone: os.Getenv("OWNER_PHONE"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
