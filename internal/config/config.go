package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-responder/internal/models"
)

const envPrefix = "MIRADOR_RESPONDER_"

// Config captures every setting needed to boot the responder.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Decision    DecisionConfig    `yaml:"decision"`
	Autonomy    AutonomyConfig    `yaml:"autonomy"`
	Services    ServicesConfig    `yaml:"services"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Cache       CacheConfig       `yaml:"cache"`
	Evidence    EvidenceConfig    `yaml:"evidence"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Audit       AuditConfig       `yaml:"audit"`
	Executor    ExecutorConfig    `yaml:"executor"`
}

// ServerConfig controls the gRPC and HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TierDurations holds one duration per service tier.
type TierDurations struct {
	Core time.Duration `yaml:"core"`
	Edge time.Duration `yaml:"edge"`
	Test time.Duration `yaml:"test"`
}

// For returns the duration configured for tier, using Core for unknown tiers.
func (d TierDurations) For(tier models.Tier) time.Duration {
	switch tier {
	case models.TierEdge:
		return d.Edge
	case models.TierTest:
		return d.Test
	default:
		return d.Core
	}
}

// CorrelationConfig tunes the link rules.
type CorrelationConfig struct {
	Lookback         TierDurations `yaml:"lookback"`
	MetricWindow     time.Duration `yaml:"metricWindow"`
	LogWindow        time.Duration `yaml:"logWindow"`
	TemporalWeight   float64       `yaml:"temporalWeight"`
	MetricSaturation float64       `yaml:"metricSaturation"`
	HotPathBoost     float64       `yaml:"hotPathBoost"`
	HotPathsPath     string        `yaml:"hotPathsPath"`
	TopK             int           `yaml:"topK"`
	QueryTimeout     time.Duration `yaml:"queryTimeout"`
}

// DecisionConfig tunes action ranking.
type DecisionConfig struct {
	CatalogPath      string        `yaml:"catalogPath"`
	Prior            float64       `yaml:"prior"`
	KnowledgeTimeout time.Duration `yaml:"knowledgeTimeout"`
	AutoExecute      bool          `yaml:"autoExecute"`
}

// TierPolicy bounds automation for one tier.
type TierPolicy struct {
	ReportOnly    bool    `yaml:"reportOnly"`
	MaxRisk       string  `yaml:"maxRisk"`
	MinConfidence float64 `yaml:"minConfidence"`
}

// AutonomyConfig is the tier/risk/confidence policy table.
type AutonomyConfig struct {
	Core              TierPolicy `yaml:"core"`
	Edge              TierPolicy `yaml:"edge"`
	Test              TierPolicy `yaml:"test"`
	DowngradeCritical bool       `yaml:"downgradeCritical"`
}

// ServicesConfig lists service metadata inline or via a YAML file.
type ServicesConfig struct {
	Path  string           `yaml:"path"`
	Items []models.Service `yaml:"items"`
}

// KnowledgeConfig selects the Knowledge Store backend.
type KnowledgeConfig struct {
	Driver  string        `yaml:"driver"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig controls the Valkey-backed cache used for rates and suppression.
type CacheConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Addr                string        `yaml:"addr"`
	Username            string        `yaml:"username"`
	Password            string        `yaml:"password"`
	DB                  int           `yaml:"db"`
	DialTimeout         time.Duration `yaml:"dialTimeout"`
	ReadTimeout         time.Duration `yaml:"readTimeout"`
	WriteTimeout        time.Duration `yaml:"writeTimeout"`
	MaxRetries          int           `yaml:"maxRetries"`
	TLS                 bool          `yaml:"tls"`
	KnowledgeTTL        time.Duration `yaml:"knowledgeTTL"`
	SuppressionCooldown time.Duration `yaml:"suppressionCooldown"`
}

// EvidenceConfig configures where evidence is read from.
type EvidenceConfig struct {
	Remote    RemoteEvidenceConfig `yaml:"remote"`
	// Retention bounds how long ingested evidence is kept in memory.
	Retention time.Duration        `yaml:"retention"`
}

// RemoteEvidenceConfig points at an HTTP evidence query endpoint. Empty BaseURL keeps evidence in memory.
type RemoteEvidenceConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	QueryPath string        `yaml:"queryPath"`
	Timeout   time.Duration `yaml:"timeout"`
}

// KafkaConfig wires decision publishing and feedback consumption.
type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	DecisionsTopic string   `yaml:"decisionsTopic"`
	FeedbackTopic  string   `yaml:"feedbackTopic"`
	GroupID        string   `yaml:"groupID"`
}

// AuditConfig archives analyses to S3-compatible storage.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"accessKeyID"`
	SecretAccessKey string        `yaml:"secretAccessKey"`
	UsePathStyle    bool          `yaml:"usePathStyle"`
	Timeout         time.Duration `yaml:"timeout"`
}

// ExecutorConfig selects how AUTO decisions are carried out.
type ExecutorConfig struct {
	Mode    string        `yaml:"mode"`
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8080",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Correlation: CorrelationConfig{
			Lookback:         TierDurations{Core: 30 * time.Minute, Edge: 30 * time.Minute, Test: 30 * time.Minute},
			MetricWindow:     5 * time.Minute,
			LogWindow:        5 * time.Minute,
			TemporalWeight:   0.2,
			MetricSaturation: 4,
			HotPathBoost:     0.5,
			TopK:             3,
			QueryTimeout:     5 * time.Second,
		},
		Decision: DecisionConfig{
			Prior:            0.5,
			KnowledgeTimeout: 2 * time.Second,
			AutoExecute:      true,
		},
		Autonomy: AutonomyConfig{
			Core:              TierPolicy{MaxRisk: "LOW", MinConfidence: 0.9},
			Edge:              TierPolicy{MaxRisk: "LOW", MinConfidence: 0.8},
			Test:              TierPolicy{ReportOnly: true},
			DowngradeCritical: true,
		},
		Knowledge: KnowledgeConfig{Driver: "memory", Timeout: 2 * time.Second},
		Cache: CacheConfig{
			Enabled:             false,
			DialTimeout:         2 * time.Second,
			ReadTimeout:         500 * time.Millisecond,
			WriteTimeout:        500 * time.Millisecond,
			MaxRetries:          2,
			KnowledgeTTL:        time.Minute,
			SuppressionCooldown: 5 * time.Minute,
		},
		Evidence: EvidenceConfig{
			Remote:    RemoteEvidenceConfig{QueryPath: "/api/v1/evidence/query", Timeout: 5 * time.Second},
			Retention: 6 * time.Hour,
		},
		Kafka: KafkaConfig{
			DecisionsTopic: "responder.decisions",
			FeedbackTopic:  "responder.feedback",
			GroupID:        "mirador-responder",
		},
		Audit:    AuditConfig{Prefix: "analyses", Region: "us-east-1", Timeout: 10 * time.Second},
		Executor: ExecutorConfig{Mode: "dryrun", Timeout: 10 * time.Second},
	}
}

// Validate rejects settings the engines cannot run with.
func (c *Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"correlation.lookback.core": c.Correlation.Lookback.Core,
		"correlation.lookback.edge": c.Correlation.Lookback.Edge,
		"correlation.lookback.test": c.Correlation.Lookback.Test,
		"correlation.metricWindow":  c.Correlation.MetricWindow,
		"correlation.logWindow":     c.Correlation.LogWindow,
		"correlation.queryTimeout":  c.Correlation.QueryTimeout,
		"decision.knowledgeTimeout": c.Decision.KnowledgeTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Correlation.TopK < 1 {
		errs = append(errs, fmt.Errorf("correlation.topK must be at least 1"))
	}
	if c.Correlation.MetricSaturation <= 0 {
		errs = append(errs, fmt.Errorf("correlation.metricSaturation must be positive"))
	}
	if !inUnit(c.Correlation.TemporalWeight) || !inUnit(c.Correlation.HotPathBoost) {
		errs = append(errs, fmt.Errorf("correlation weights must be within [0,1]"))
	}
	if !inUnit(c.Decision.Prior) {
		errs = append(errs, fmt.Errorf("decision.prior must be within [0,1]"))
	}
	if !c.Autonomy.Test.ReportOnly {
		errs = append(errs, fmt.Errorf("autonomy.test.reportOnly cannot be disabled"))
	}
	if !c.Autonomy.DowngradeCritical {
		errs = append(errs, fmt.Errorf("autonomy.downgradeCritical cannot be disabled"))
	}
	for name, p := range map[string]TierPolicy{"core": c.Autonomy.Core, "edge": c.Autonomy.Edge, "test": c.Autonomy.Test} {
		if p.ReportOnly {
			continue
		}
		if _, ok := models.ParseRiskLevel(p.MaxRisk); !ok {
			errs = append(errs, fmt.Errorf("autonomy.%s.maxRisk %q is not a risk level", name, p.MaxRisk))
		}
		if !inUnit(p.MinConfidence) {
			errs = append(errs, fmt.Errorf("autonomy.%s.minConfidence must be within [0,1]", name))
		}
	}
	switch c.Knowledge.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Knowledge.DSN == "" {
			errs = append(errs, fmt.Errorf("knowledge.dsn is required for driver %s", c.Knowledge.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("knowledge.driver %q is not supported", c.Knowledge.Driver))
	}
	switch c.Executor.Mode {
	case "", "dryrun":
	case "webhook":
		if c.Executor.URL == "" {
			errs = append(errs, fmt.Errorf("executor.url is required for webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("executor.mode %q is not supported", c.Executor.Mode))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, fmt.Errorf("kafka.brokers is required when kafka is enabled"))
	}
	if c.Audit.Enabled && c.Audit.Bucket == "" {
		errs = append(errs, fmt.Errorf("audit.bucket is required when audit is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func applyEnvOverrides(cfg *Config) {
	envString("SERVER_ADDRESS", &cfg.Server.Address)
	envString("HTTP_ADDRESS", &cfg.Server.HTTPAddress)
	envDuration("GRACEFUL_TIMEOUT", &cfg.Server.GracefulTimeout)
	envString("LOG_LEVEL", &cfg.Logging.Level)
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}

	envDuration("LOOKBACK_CORE", &cfg.Correlation.Lookback.Core)
	envDuration("LOOKBACK_EDGE", &cfg.Correlation.Lookback.Edge)
	envDuration("LOOKBACK_TEST", &cfg.Correlation.Lookback.Test)
	envDuration("METRIC_WINDOW", &cfg.Correlation.MetricWindow)
	envDuration("LOG_WINDOW", &cfg.Correlation.LogWindow)
	envFloat("TEMPORAL_WEIGHT", &cfg.Correlation.TemporalWeight)
	envFloat("METRIC_SATURATION", &cfg.Correlation.MetricSaturation)
	envFloat("HOT_PATH_BOOST", &cfg.Correlation.HotPathBoost)
	envString("HOT_PATHS_PATH", &cfg.Correlation.HotPathsPath)
	envInt("TOP_K", &cfg.Correlation.TopK)
	envDuration("QUERY_TIMEOUT", &cfg.Correlation.QueryTimeout)

	envString("CATALOG_PATH", &cfg.Decision.CatalogPath)
	envFloat("PRIOR", &cfg.Decision.Prior)
	envDuration("KNOWLEDGE_TIMEOUT", &cfg.Decision.KnowledgeTimeout)
	envBool("AUTO_EXECUTE", &cfg.Decision.AutoExecute)

	envString("SERVICES_PATH", &cfg.Services.Path)

	envString("KNOWLEDGE_DRIVER", &cfg.Knowledge.Driver)
	envString("KNOWLEDGE_DSN", &cfg.Knowledge.DSN)

	envBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	envString("CACHE_ADDR", &cfg.Cache.Addr)
	envString("CACHE_USERNAME", &cfg.Cache.Username)
	envString("CACHE_PASSWORD", &cfg.Cache.Password)
	envInt("CACHE_DB", &cfg.Cache.DB)
	envBool("CACHE_TLS", &cfg.Cache.TLS)
	envDuration("CACHE_DIAL_TIMEOUT", &cfg.Cache.DialTimeout)
	envDuration("CACHE_READ_TIMEOUT", &cfg.Cache.ReadTimeout)
	envDuration("CACHE_WRITE_TIMEOUT", &cfg.Cache.WriteTimeout)
	envInt("CACHE_MAX_RETRIES", &cfg.Cache.MaxRetries)
	envDuration("CACHE_KNOWLEDGE_TTL", &cfg.Cache.KnowledgeTTL)
	envDuration("SUPPRESSION_COOLDOWN", &cfg.Cache.SuppressionCooldown)

	envString("EVIDENCE_BASE_URL", &cfg.Evidence.Remote.BaseURL)
	envString("EVIDENCE_QUERY_PATH", &cfg.Evidence.Remote.QueryPath)
	envDuration("EVIDENCE_RETENTION", &cfg.Evidence.Retention)

	envBool("KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv(envPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	envString("KAFKA_DECISIONS_TOPIC", &cfg.Kafka.DecisionsTopic)
	envString("KAFKA_FEEDBACK_TOPIC", &cfg.Kafka.FeedbackTopic)
	envString("KAFKA_GROUP_ID", &cfg.Kafka.GroupID)

	envBool("AUDIT_ENABLED", &cfg.Audit.Enabled)
	envString("AUDIT_BUCKET", &cfg.Audit.Bucket)
	envString("AUDIT_PREFIX", &cfg.Audit.Prefix)
	envString("AUDIT_REGION", &cfg.Audit.Region)
	envString("AUDIT_ENDPOINT", &cfg.Audit.Endpoint)
	envString("AUDIT_ACCESS_KEY_ID", &cfg.Audit.AccessKeyID)
	envString("AUDIT_SECRET_ACCESS_KEY", &cfg.Audit.SecretAccessKey)
	envBool("AUDIT_PATH_STYLE", &cfg.Audit.UsePathStyle)

	envString("EXECUTOR_MODE", &cfg.Executor.Mode)
	envString("EXECUTOR_URL", &cfg.Executor.URL)
	envString("EXECUTOR_TOKEN", &cfg.Executor.Token)
}

func envString(key string, dst *string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
