package config

import (
	"fmt"
	"time"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// PipelineConfig holds the batch sizes and decision thresholds of a run
type PipelineConfig struct {
	ClassifyBatchSize     int
	VerifyBatchSize       int
	VerificationThreshold int
	DeletionThreshold     int
	FetchPageSize         int
	ManualLabels          []string
	DeleteApproved        bool
	MaxPreviewSize        int
}

// Validate rejects values the pipeline cannot run with
func (p PipelineConfig) Validate() error {
	if p.ClassifyBatchSize < 1 {
		return fmt.Errorf("pipeline.classify_batch_size must be at least 1, got %d", p.ClassifyBatchSize)
	}
	if p.VerifyBatchSize < 1 {
		return fmt.Errorf("pipeline.verify_batch_size must be at least 1, got %d", p.VerifyBatchSize)
	}
	if p.FetchPageSize < 1 {
		return fmt.Errorf("pipeline.fetch_page_size must be at least 1, got %d", p.FetchPageSize)
	}
	if p.VerificationThreshold < 0 || p.VerificationThreshold > 100 {
		return fmt.Errorf("pipeline.verification_threshold must be within 0..100, got %d", p.VerificationThreshold)
	}
	if p.DeletionThreshold < 0 || p.DeletionThreshold > 100 {
		return fmt.Errorf("pipeline.deletion_threshold must be within 0..100, got %d", p.DeletionThreshold)
	}
	return nil
}

// RetryConfig controls the Resilient Call wrapper around remote operations
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// SessionConfig locates the session state and record files
type SessionConfig struct {
	Dir string
}

// CacheConfig represents the sender-history cache configuration
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisURL         string
}

// MailboxConfig selects the source of email summaries
type MailboxConfig struct {
	Type      string
	InputFile string
}

// IMAPConfig holds the IMAP server connection settings
type IMAPConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	TLS          bool
	Mailbox      string
	TrashMailbox string
}

// ProtectionConfig lists protected domains in addition to the built-in set
type ProtectionConfig struct {
	ListFile string
	Domains  []string
	Patterns []string
}

// MetricsConfig controls the prometheus textfile export
type MetricsConfig struct {
	Enabled  bool
	Textfile string
}

// NotifyConfig configures the run summary e-mail
type NotifyConfig struct {
	Enabled     bool
	SMTPAddress string
	From        string
	To          []string
	Timeout     time.Duration
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetPipeline returns the pipeline configuration
func (c *Config) GetPipeline() PipelineConfig {
	return PipelineConfig{
		ClassifyBatchSize:     c.GetInt("pipeline.classify_batch_size"),
		VerifyBatchSize:       c.GetInt("pipeline.verify_batch_size"),
		VerificationThreshold: c.GetInt("pipeline.verification_threshold"),
		DeletionThreshold:     c.GetInt("pipeline.deletion_threshold"),
		FetchPageSize:         c.GetInt("pipeline.fetch_page_size"),
		ManualLabels:          c.GetStringSlice("pipeline.manual_labels"),
		DeleteApproved:        c.GetBool("pipeline.delete_approved"),
		MaxPreviewSize:        c.GetInt("pipeline.max_preview_size"),
	}
}

// GetRetry returns the retry configuration
func (c *Config) GetRetry() (RetryConfig, error) {
	delay, err := c.GetDuration("retry.base_delay")
	if err != nil {
		return RetryConfig{}, fmt.Errorf("invalid retry.base_delay: %w", err)
	}
	rc := RetryConfig{
		MaxAttempts: c.GetInt("retry.max_attempts"),
		BaseDelay:   delay,
		Multiplier:  c.GetFloat64("retry.multiplier"),
	}
	if rc.MaxAttempts < 1 {
		return RetryConfig{}, fmt.Errorf("retry.max_attempts must be at least 1, got %d", rc.MaxAttempts)
	}
	return rc, nil
}

// GetSession returns the session configuration
func (c *Config) GetSession() SessionConfig {
	return SessionConfig{
		Dir: c.GetString("session.dir"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, fmt.Errorf("invalid cache.ttl: %w", err)
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, fmt.Errorf("invalid cache.cleanup_frequency: %w", err)
	}
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
		RedisURL:         c.GetString("cache.redis_url"),
	}, nil
}

// GetMailbox returns the mailbox source configuration
func (c *Config) GetMailbox() MailboxConfig {
	return MailboxConfig{
		Type:      c.GetString("mailbox.type"),
		InputFile: c.GetString("mailbox.input_file"),
	}
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Host:         c.GetString("imap.host"),
		Port:         c.GetString("imap.port"),
		Username:     c.GetString("imap.username"),
		Password:     c.GetString("imap.password"),
		TLS:          c.GetBool("imap.tls"),
		Mailbox:      c.GetString("imap.mailbox"),
		TrashMailbox: c.GetString("imap.trash_mailbox"),
	}
}

// GetProtection returns the protected domain configuration
func (c *Config) GetProtection() ProtectionConfig {
	return ProtectionConfig{
		ListFile: c.GetString("protection.list_file"),
		Domains:  c.GetStringSlice("protection.domains"),
		Patterns: c.GetStringSlice("protection.patterns"),
	}
}

// GetMetrics returns the metrics configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:  c.GetBool("metrics.enabled"),
		Textfile: c.GetString("metrics.textfile"),
	}
}

// GetNotify returns the notification configuration
func (c *Config) GetNotify() (NotifyConfig, error) {
	timeout, err := c.GetDuration("notify.timeout")
	if err != nil {
		return NotifyConfig{}, fmt.Errorf("invalid notify.timeout: %w", err)
	}
	return NotifyConfig{
		Enabled:     c.GetBool("notify.enabled"),
		SMTPAddress: c.GetString("notify.smtp_address"),
		From:        c.GetString("notify.from"),
		To:          c.GetStringSlice("notify.to"),
		Timeout:     timeout,
	}, nil
}
