// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/keywords"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Detection() DetectionConfig
	Injection() InjectionConfig
	Submission() SubmissionConfig
	Run() RunConfig
	Sender() schemas.SenderProfile
	Message() MessageConfig
	Taxonomy() *keywords.Taxonomy

	SetBrowserHeadless(bool)
	SetHumanoidEnabled(bool)
	SetRunMode(schemas.RunMode)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig          `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg   DatabaseConfig        `mapstructure:"database" yaml:"database"`
	BrowserCfg    BrowserConfig         `mapstructure:"browser" yaml:"browser"`
	NetworkCfg    NetworkConfig         `mapstructure:"network" yaml:"network"`
	DetectionCfg  DetectionConfig       `mapstructure:"detection" yaml:"detection"`
	InjectionCfg  InjectionConfig       `mapstructure:"injection" yaml:"injection"`
	SubmissionCfg SubmissionConfig      `mapstructure:"submission" yaml:"submission"`
	RunCfg        RunConfig             `mapstructure:"run" yaml:"run"`
	SenderCfg     schemas.SenderProfile `mapstructure:"sender" yaml:"sender"`
	MessageCfg    MessageConfig         `mapstructure:"message" yaml:"message"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig     { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig       { return c.NetworkCfg }
func (c *Config) Detection() DetectionConfig   { return c.DetectionCfg }
func (c *Config) Injection() InjectionConfig   { return c.InjectionCfg }
func (c *Config) Submission() SubmissionConfig { return c.SubmissionCfg }
func (c *Config) Run() RunConfig               { return c.RunCfg }
func (c *Config) Message() MessageConfig       { return c.MessageCfg }

// Sender returns the sender profile with derived name parts filled in.
func (c *Config) Sender() schemas.SenderProfile { return c.SenderCfg.Normalized() }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetHumanoidEnabled(b bool) { c.BrowserCfg.Humanoid.Enabled = b }

func (c *Config) SetBrowserHeadless(b bool) {
	c.BrowserCfg.Headless = b
	c.showSupervisedWindow()
}

func (c *Config) SetRunMode(m schemas.RunMode) {
	c.RunCfg.Mode = m
	c.showSupervisedWindow()
}

// showSupervisedWindow keeps the browser visible in supervised mode, where
// an operator has to reach the tabs left open for them.
func (c *Config) showSupervisedWindow() {
	if c.RunCfg.Mode == schemas.ModeSupervised {
		c.BrowserCfg.Headless = false
	}
}

// Taxonomy builds the keyword vocabulary, replacing built-in lists with any
// lists supplied in configuration.
func (c *Config) Taxonomy() *keywords.Taxonomy {
	tax := keywords.Default()
	override := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = append([]string(nil), src...)
		}
	}
	override(&tax.ContactText, c.DetectionCfg.ContactKeywords)
	override(&tax.LinkTokens, c.DetectionCfg.LinkKeywords)
	override(&tax.FormHosts, c.DetectionCfg.FormHosts)
	override(&tax.VerificationMarkers, c.SubmissionCfg.VerificationMarkers)
	override(&tax.SuccessURL, c.SubmissionCfg.SuccessURLPatterns)
	override(&tax.SuccessContent, c.SubmissionCfg.SuccessPhrases)
	override(&tax.SuccessTitle, c.SubmissionCfg.SuccessTitlePatterns)
	override(&tax.ConfirmPhrases, c.SubmissionCfg.ConfirmPhrases)
	override(&tax.TerminalPhrases, c.SubmissionCfg.TerminalPhrases)
	return tax
}

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// LookupCacheSize bounds the in-process cache of dedup lookups.
	LookupCacheSize int `mapstructure:"lookup_cache_size" yaml:"lookup_cache_size"`
}

type BrowserConfig struct {
	Headless        bool            `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool            `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool            `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool            `mapstructure:"debug" yaml:"debug"`
	Args            []string        `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int  `mapstructure:"viewport" yaml:"viewport"`
	Persona         schemas.Persona `mapstructure:"persona" yaml:"persona"`
	Humanoid        HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	ScriptTimeout   time.Duration   `mapstructure:"script_timeout" yaml:"script_timeout"`
}

type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// DetectionConfig tunes page relevance, link ranking and form discovery.
type DetectionConfig struct {
	RelevanceThreshold float64  `mapstructure:"relevance_threshold" yaml:"relevance_threshold"`
	URLExactBonus      float64  `mapstructure:"url_exact_bonus" yaml:"url_exact_bonus"`
	URLPartialBonus    float64  `mapstructure:"url_partial_bonus" yaml:"url_partial_bonus"`
	OverlapThreshold   float64  `mapstructure:"overlap_threshold" yaml:"overlap_threshold"`
	ClusterRadius      float64  `mapstructure:"cluster_radius" yaml:"cluster_radius"`
	KeywordRadius      float64  `mapstructure:"keyword_radius" yaml:"keyword_radius"`
	SubmitRadius       float64  `mapstructure:"submit_radius" yaml:"submit_radius"`
	MinGroupSize       int      `mapstructure:"min_group_size" yaml:"min_group_size"`
	MaxHops            int      `mapstructure:"max_hops" yaml:"max_hops"`
	ContactKeywords    []string `mapstructure:"contact_keywords" yaml:"contact_keywords"`
	LinkKeywords       []string `mapstructure:"link_keywords" yaml:"link_keywords"`
	FormHosts          []string `mapstructure:"form_hosts" yaml:"form_hosts"`
}

type InjectionConfig struct {
	// AutoCheckOther ticks checkboxes that are neither consent nor newsletter
	// boxes. It can opt the sender into things nobody reviewed.
	AutoCheckOther bool          `mapstructure:"auto_check_other" yaml:"auto_check_other"`
	KeyDelayMin    time.Duration `mapstructure:"key_delay_min" yaml:"key_delay_min"`
	KeyDelayMax    time.Duration `mapstructure:"key_delay_max" yaml:"key_delay_max"`
	FieldPauseMin  time.Duration `mapstructure:"field_pause_min" yaml:"field_pause_min"`
	FieldPauseMax  time.Duration `mapstructure:"field_pause_max" yaml:"field_pause_max"`
}

type SubmissionConfig struct {
	SettleDelay          time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PostClickDelay       time.Duration `mapstructure:"post_click_delay" yaml:"post_click_delay"`
	SuccessURLPatterns   []string      `mapstructure:"success_url_patterns" yaml:"success_url_patterns"`
	SuccessPhrases       []string      `mapstructure:"success_phrases" yaml:"success_phrases"`
	SuccessTitlePatterns []string      `mapstructure:"success_title_patterns" yaml:"success_title_patterns"`
	ConfirmPhrases       []string      `mapstructure:"confirm_phrases" yaml:"confirm_phrases"`
	TerminalPhrases      []string      `mapstructure:"terminal_phrases" yaml:"terminal_phrases"`
	VerificationMarkers  []string      `mapstructure:"verification_markers" yaml:"verification_markers"`
}

type RunConfig struct {
	Mode      schemas.RunMode `mapstructure:"mode" yaml:"mode"`
	MinDelay  time.Duration   `mapstructure:"min_delay" yaml:"min_delay"`
	Retention time.Duration   `mapstructure:"retention" yaml:"retention"`
	Output    string          `mapstructure:"output" yaml:"output"`
	Format    string          `mapstructure:"format" yaml:"format"`
	// MetricsAddr exposes Prometheus metrics during a run when set.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

type MessageConfig struct {
	Default  string `mapstructure:"default" yaml:"default"`
	DateTime string `mapstructure:"date_time" yaml:"date_time"`
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// DefaultMessage is sent when a target row carries no message of its own.
const DefaultMessage = "お世話になっております。弊社サービスについてご紹介させていただきたく、ご連絡いたします。"

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formpilot")
	v.SetDefault("logger.log_file", "formpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.lookup_cache_size", 4096)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.script_timeout", "20s")
	v.SetDefault("browser.persona.user_agent", schemas.DefaultPersona.UserAgent)
	v.SetDefault("browser.persona.platform", schemas.DefaultPersona.Platform)
	v.SetDefault("browser.persona.languages", schemas.DefaultPersona.Languages)
	v.SetDefault("browser.persona.width", schemas.DefaultPersona.Width)
	v.SetDefault("browser.persona.height", schemas.DefaultPersona.Height)
	v.SetDefault("browser.persona.timezone", schemas.DefaultPersona.Timezone)
	v.SetDefault("browser.persona.locale", schemas.DefaultPersona.Locale)
	v.SetDefault("browser.persona.accept_language", schemas.DefaultPersona.AcceptLanguage)
	setHumanoidDefaults(v)

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.post_load_wait", "2s")

	// -- Detection --
	v.SetDefault("detection.relevance_threshold", 7.0)
	v.SetDefault("detection.url_exact_bonus", 3.0)
	v.SetDefault("detection.url_partial_bonus", 2.0)
	v.SetDefault("detection.overlap_threshold", 0.5)
	v.SetDefault("detection.cluster_radius", 300.0)
	v.SetDefault("detection.keyword_radius", 500.0)
	v.SetDefault("detection.submit_radius", 800.0)
	v.SetDefault("detection.min_group_size", 2)
	v.SetDefault("detection.max_hops", 2)

	// -- Injection --
	v.SetDefault("injection.auto_check_other", false)
	v.SetDefault("injection.key_delay_min", "50ms")
	v.SetDefault("injection.key_delay_max", "150ms")
	v.SetDefault("injection.field_pause_min", "300ms")
	v.SetDefault("injection.field_pause_max", "800ms")

	// -- Submission --
	v.SetDefault("submission.settle_delay", "5s")
	v.SetDefault("submission.post_click_delay", "2s")

	// -- Run --
	v.SetDefault("run.mode", string(schemas.ModeSequential))
	v.SetDefault("run.min_delay", "2s")
	v.SetDefault("run.retention", "720h")
	v.SetDefault("run.format", "json")
	v.SetDefault("run.output", "")
	v.SetDefault("run.metrics_addr", "")

	// -- Sender --
	v.SetDefault("sender.consultation_label", "お問い合わせ")
	v.SetDefault("sender.privacy_consent", true)
	v.SetDefault("sender.newsletter_consent", false)

	// -- Message --
	v.SetDefault("message.default", DefaultMessage)
	v.SetDefault("message.date_time", "13:00")
}

// NewConfigFromViper creates a new configuration instance from a Viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("database.url", "FORMPILOT_DATABASE_URL")
	v.BindEnv("sender.email", "FORMPILOT_SENDER_EMAIL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}
	cfg.showSupervisedWindow()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	d := c.DetectionCfg
	if d.RelevanceThreshold <= 0 {
		return fmt.Errorf("detection.relevance_threshold must be positive")
	}
	if d.OverlapThreshold <= 0 || d.OverlapThreshold > 1 {
		return fmt.Errorf("detection.overlap_threshold must be between 0.0 and 1.0")
	}
	if d.ClusterRadius <= 0 || d.KeywordRadius <= 0 || d.SubmitRadius <= 0 {
		return fmt.Errorf("detection radii must be positive")
	}
	if d.MinGroupSize < 1 {
		return fmt.Errorf("detection.min_group_size must be a positive integer")
	}
	if d.MaxHops < 0 {
		return fmt.Errorf("detection.max_hops must not be negative")
	}
	if c.NetworkCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be positive")
	}
	if c.InjectionCfg.KeyDelayMax < c.InjectionCfg.KeyDelayMin {
		return fmt.Errorf("injection.key_delay_max must not be below injection.key_delay_min")
	}
	if c.RunCfg.MinDelay < 0 {
		return fmt.Errorf("run.min_delay must not be negative")
	}
	if c.RunCfg.Retention <= 0 {
		return fmt.Errorf("run.retention must be positive")
	}
	switch c.RunCfg.Mode {
	case schemas.ModeSequential, schemas.ModeSupervised:
	default:
		return fmt.Errorf("run.mode must be %q or %q, got %q", schemas.ModeSequential, schemas.ModeSupervised, c.RunCfg.Mode)
	}
	if err := c.BrowserCfg.Humanoid.Validate(); err != nil {
		return fmt.Errorf("browser.humanoid configuration invalid: %w", err)
	}
	return nil
}
