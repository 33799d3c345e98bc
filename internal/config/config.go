package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/clinicreport/internal/platform/report"
	"github.com/ehr/clinicreport/internal/platform/webhook"
)

// Artifact store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreS3       = "s3"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	ReportPageSize        string  `mapstructure:"REPORT_PAGE_SIZE"`
	ReportMarginTop       float64 `mapstructure:"REPORT_MARGIN_TOP"`
	ReportMarginBottom    float64 `mapstructure:"REPORT_MARGIN_BOTTOM"`
	ReportMarginLeft      float64 `mapstructure:"REPORT_MARGIN_LEFT"`
	ReportMarginRight     float64 `mapstructure:"REPORT_MARGIN_RIGHT"`
	ReportFontFamily      string  `mapstructure:"REPORT_FONT_FAMILY"`
	ReportTitleFontSize   float64 `mapstructure:"REPORT_TITLE_FONT_SIZE"`
	ReportHeadingFontSize float64 `mapstructure:"REPORT_HEADING_FONT_SIZE"`
	ReportBodyFontSize    float64 `mapstructure:"REPORT_BODY_FONT_SIZE"`
	ReportMetaFontSize    float64 `mapstructure:"REPORT_META_FONT_SIZE"`
	ReportFooterFontSize  float64 `mapstructure:"REPORT_FOOTER_FONT_SIZE"`
	ReportLineSpacing     float64 `mapstructure:"REPORT_LINE_SPACING"`
	ReportGeneratorName   string  `mapstructure:"REPORT_GENERATOR_NAME"`
	ReportTimezone        string  `mapstructure:"REPORT_TIMEZONE"`

	ArtifactStore    string `mapstructure:"ARTIFACT_STORE"`
	ArtifactS3Bucket string `mapstructure:"ARTIFACT_S3_BUCKET"`
	ArtifactS3Prefix string `mapstructure:"ARTIFACT_S3_PREFIX"`
	AWSRegion        string `mapstructure:"AWS_REGION"`
	AWSEndpointURL   string `mapstructure:"AWS_ENDPOINT_URL"`

	WebhookURLs    []string `mapstructure:"WEBHOOK_URLS"`
	WebhookSecret  string   `mapstructure:"WEBHOOK_SECRET"`
	WebhookWorkers int      `mapstructure:"WEBHOOK_WORKERS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DEFAULT_TENANT",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REPORT_PAGE_SIZE", "REPORT_MARGIN_TOP", "REPORT_MARGIN_BOTTOM", "REPORT_MARGIN_LEFT", "REPORT_MARGIN_RIGHT",
	"REPORT_FONT_FAMILY", "REPORT_TITLE_FONT_SIZE", "REPORT_HEADING_FONT_SIZE", "REPORT_BODY_FONT_SIZE",
	"REPORT_META_FONT_SIZE", "REPORT_FOOTER_FONT_SIZE", "REPORT_LINE_SPACING",
	"REPORT_GENERATOR_NAME", "REPORT_TIMEZONE",
	"ARTIFACT_STORE", "ARTIFACT_S3_BUCKET", "ARTIFACT_S3_PREFIX", "AWS_REGION", "AWS_ENDPOINT_URL",
	"WEBHOOK_URLS", "WEBHOOK_SECRET", "WEBHOOK_WORKERS",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory. Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	def := report.DefaultConfig()
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REPORT_PAGE_SIZE", "letter")
	v.SetDefault("REPORT_MARGIN_TOP", def.Geometry.MarginTop)
	v.SetDefault("REPORT_MARGIN_BOTTOM", def.Geometry.MarginBottom)
	v.SetDefault("REPORT_MARGIN_LEFT", def.Geometry.MarginLeft)
	v.SetDefault("REPORT_MARGIN_RIGHT", def.Geometry.MarginRight)
	v.SetDefault("REPORT_FONT_FAMILY", def.FontFamily)
	v.SetDefault("REPORT_LINE_SPACING", def.LineSpacing)
	v.SetDefault("REPORT_GENERATOR_NAME", def.GeneratorName)
	v.SetDefault("REPORT_TIMEZONE", "UTC")
	v.SetDefault("ARTIFACT_STORE", StoreMemory)
	v.SetDefault("ARTIFACT_S3_PREFIX", "reports/v1")
	v.SetDefault("WEBHOOK_WORKERS", 2)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.WebhookURLs = splitList(v.GetString("WEBHOOK_URLS"))
	cfg.ArtifactStore = strings.ToLower(strings.TrimSpace(cfg.ArtifactStore))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HasDatabase reports whether repositories should use Postgres rather than
// process memory.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// ReportConfig builds the generator configuration. Zero font sizes keep the
// house defaults.
func (c *Config) ReportConfig() (report.Config, error) {
	rc := report.DefaultConfig()

	size, ok := report.PaperSizeByName(c.ReportPageSize)
	if !ok {
		return rc, fmt.Errorf("REPORT_PAGE_SIZE must be letter, legal or a4, got %q", c.ReportPageSize)
	}
	rc.Geometry = report.NewGeometry(size, c.ReportMarginTop, c.ReportMarginBottom, c.ReportMarginLeft, c.ReportMarginRight)

	override := func(dst *report.Style, size float64) {
		if size > 0 {
			dst.FontSize = size
		}
	}
	override(&rc.Styles.Title, c.ReportTitleFontSize)
	override(&rc.Styles.Heading, c.ReportHeadingFontSize)
	override(&rc.Styles.Body, c.ReportBodyFontSize)
	override(&rc.Styles.Label, c.ReportBodyFontSize)
	override(&rc.Styles.Meta, c.ReportMetaFontSize)
	override(&rc.Styles.Footer, c.ReportFooterFontSize)

	if c.ReportFontFamily != "" {
		rc.FontFamily = c.ReportFontFamily
	}
	if c.ReportLineSpacing > 0 {
		rc.LineSpacing = c.ReportLineSpacing
	}
	if c.ReportGeneratorName != "" {
		rc.GeneratorName = c.ReportGeneratorName
	}

	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return rc, fmt.Errorf("REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	rc.Location = loc

	if err := rc.Validate(); err != nil {
		return rc, err
	}
	return rc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q. "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters in production")
	}

	switch c.ArtifactStore {
	case StoreMemory:
	case StorePostgres:
		if !c.HasDatabase() {
			return fmt.Errorf("ARTIFACT_STORE=postgres requires DATABASE_URL")
		}
	case StoreS3:
		if c.ArtifactS3Bucket == "" {
			return fmt.Errorf("ARTIFACT_S3_BUCKET is required when ARTIFACT_STORE=s3")
		}
	default:
		return fmt.Errorf("ARTIFACT_STORE must be memory, postgres or s3, got %q", c.ArtifactStore)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	for _, u := range c.WebhookURLs {
		if err := webhook.ValidateURL(u); err != nil {
			return fmt.Errorf("WEBHOOK_URLS: %w", err)
		}
	}
	if c.IsProduction() && len(c.WebhookURLs) > 0 && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required for webhooks in production")
	}

	if _, err := c.ReportConfig(); err != nil {
		return err
	}
	return nil
}
