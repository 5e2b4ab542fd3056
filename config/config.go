package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FAILURE_POLICY_OPEN   = "open"
	FAILURE_POLICY_CLOSED = "closed"

	EMBEDDER_OPENAI = "openai"
	EMBEDDER_GENAI  = "genai"

	INDEX_PINECONE = "pinecone"
	INDEX_DATABASE = "database"

	DEFAULT_RED_THRESHOLD    = 0.65
	DEFAULT_YELLOW_THRESHOLD = 0.55
)

type StageConfig struct {
	No     int    `json:"no"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	Active *bool  `json:"active,omitempty"`
}

type CategoryConfig struct {
	No     int    `json:"no"`
	Name   string `json:"name"`
	Active *bool  `json:"active,omitempty"`
}

type Configuration struct {
	ApiPort  string `json:"api_port"`
	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json"`

	Database string `json:"database"` // "sqlite3" ou "postgres"
	DbPath   string `json:"db_path"`
	DbDSN    string `json:"db_dsn"`
	DbHost   string `json:"db_host"`
	DbPort   string `json:"db_port"`
	DbUser   string `json:"db_user"`
	DbName   string `json:"db_name"`
	DbPass   string `json:"db_pass"`
	DbDebug  bool   `json:"db_debug"`

	RedisURL string `json:"redis_url"`

	Workflow struct {
		DefaultCategory             int              `json:"default_category"`
		DefaultDeliveryMode         string           `json:"default_delivery_mode"`
		CollaborativeMinProficiency int              `json:"collaborative_min_proficiency"`
		Stages                      []StageConfig    `json:"stages"`
		Categories                  []CategoryConfig `json:"categories"`
	} `json:"workflow"`

	Classifier struct {
		Enabled         *bool   `json:"enabled,omitempty"`
		Embedder        string  `json:"embedder"` // openai | genai
		EmbeddingModel  string  `json:"embedding_model"`
		Index           string  `json:"index"` // pinecone | database
		PineconeIndex   string  `json:"pinecone_index"`
		Namespace       string  `json:"namespace"`
		TopK            int     `json:"top_k"`
		RedThreshold    *float64 `json:"red_threshold,omitempty"`
		YellowThreshold *float64 `json:"yellow_threshold,omitempty"`
		TimeoutMs       int     `json:"timeout_ms"`
		FailurePolicy   string  `json:"failure_policy"` // open | closed
		CacheTTLSeconds int     `json:"cache_ttl_seconds"`

		OpenAIAPIKey   string `json:"-"`
		GenAIAPIKey    string `json:"-"`
		PineconeAPIKey string `json:"-"`
	} `json:"classifier"`

	Alerts struct {
		IntervalSeconds int    `json:"interval_seconds"`
		MaxAttempts     int    `json:"max_attempts"`
		WhatsAppTo      string `json:"whatsapp_to"`
		CountryCode     string `json:"country_code"` // prefixado a números locais de 10 dígitos
		ApiVersion      string `json:"api_version"`
		PhoneNumberID   string `json:"phone_number_id"`
		AccessToken     string `json:"-"`
	} `json:"alerts"`
}

// ClassifierEnabled reports whether inbound messages are screened at all.
func (c Configuration) ClassifierEnabled() bool {
	return c.Classifier.Enabled == nil || *c.Classifier.Enabled
}

// Thresholds returns the red and yellow similarity thresholds. An explicit 0
// is kept: it flags every nearest match of that category.
func (c Configuration) Thresholds() (red, yellow float64) {
	red, yellow = DEFAULT_RED_THRESHOLD, DEFAULT_YELLOW_THRESHOLD
	if c.Classifier.RedThreshold != nil {
		red = *c.Classifier.RedThreshold
	}
	if c.Classifier.YellowThreshold != nil {
		yellow = *c.Classifier.YellowThreshold
	}
	return red, yellow
}

// Get loads the configuration or aborts the process.
func Get(path string) Configuration {
	c, err := Load(path)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	return c
}

// Load reads the JSON file at path (optional), applies environment overrides
// and defaults, then validates the result.
func Load(path string) (Configuration, error) {
	var c Configuration
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, errors.Wrapf(err, "read config %s", path)
		}
		if err := json.Unmarshal(b, &c); err != nil {
			return c, errors.Wrapf(err, "parse config %s", path)
		}
	}

	applyEnv(&c)
	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyEnv(c *Configuration) {
	setString(&c.ApiPort, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Database, "DATABASE")
	setString(&c.DbDSN, "DATABASE_DSN")
	setString(&c.RedisURL, "REDIS_URL")

	setString(&c.Classifier.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Classifier.GenAIAPIKey, "GEMINI_API_KEY")
	setString(&c.Classifier.PineconeAPIKey, "PINECONE_API_KEY")
	setString(&c.Classifier.PineconeIndex, "PINECONE_INDEX")
	setString(&c.Classifier.Namespace, "PINECONE_NAMESPACE")
	setString(&c.Classifier.EmbeddingModel, "OPENAI_EMBED_MODEL")
	setString(&c.Classifier.Embedder, "DISTRESS_EMBEDDER")
	setString(&c.Classifier.Index, "DISTRESS_INDEX")
	setString(&c.Classifier.FailurePolicy, "DISTRESS_FAILURE_POLICY")
	setFloat(&c.Classifier.RedThreshold, "DISTRESS_RED_THRESHOLD")
	setFloat(&c.Classifier.YellowThreshold, "DISTRESS_YELLOW_THRESHOLD")

	setString(&c.Alerts.WhatsAppTo, "ALERT_WHATSAPP_TO")
	setString(&c.Alerts.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	setString(&c.Alerts.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
}

// defaults (pra evitar nil/zero chato)
func applyDefaults(c *Configuration) {
	if c.ApiPort == "" {
		c.ApiPort = "8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database == "" {
		c.Database = "sqlite3"
	}
	if c.DbPath == "" {
		c.DbPath = "db/database.db"
	}

	w := &c.Workflow
	if w.DefaultCategory <= 0 {
		w.DefaultCategory = 1
	}
	if w.DefaultDeliveryMode == "" {
		w.DefaultDeliveryMode = "email"
	}
	if w.CollaborativeMinProficiency <= 0 {
		w.CollaborativeMinProficiency = 50
	}
	if len(w.Stages) == 0 {
		w.Stages = DefaultStages()
	}
	if len(w.Categories) == 0 {
		w.Categories = DefaultCategories()
	}

	cl := &c.Classifier
	if cl.Embedder == "" {
		cl.Embedder = EMBEDDER_OPENAI
	}
	if cl.EmbeddingModel == "" {
		if cl.Embedder == EMBEDDER_GENAI {
			cl.EmbeddingModel = "gemini-embedding-001"
		} else {
			cl.EmbeddingModel = "text-embedding-3-large"
		}
	}
	if cl.Index == "" {
		cl.Index = INDEX_PINECONE
	}
	if cl.Namespace == "" {
		cl.Namespace = "distress"
	}
	if cl.TopK <= 0 {
		cl.TopK = 5
	}
	if cl.RedThreshold == nil {
		v := DEFAULT_RED_THRESHOLD
		cl.RedThreshold = &v
	}
	if cl.YellowThreshold == nil {
		v := DEFAULT_YELLOW_THRESHOLD
		cl.YellowThreshold = &v
	}
	if cl.TimeoutMs <= 0 {
		cl.TimeoutMs = 5000
	}
	if cl.FailurePolicy == "" {
		cl.FailurePolicy = FAILURE_POLICY_OPEN
	}
	if cl.CacheTTLSeconds <= 0 {
		cl.CacheTTLSeconds = 3600
	}

	a := &c.Alerts
	if a.IntervalSeconds <= 0 {
		a.IntervalSeconds = 5
	}
	if a.MaxAttempts <= 0 {
		a.MaxAttempts = 5
	}
	if a.ApiVersion == "" {
		a.ApiVersion = "v24.0"
	}
	if a.CountryCode == "" {
		a.CountryCode = "91"
	}
}

// Validate rejects settings the service cannot run with.
func (c Configuration) Validate() error {
	cl := c.Classifier
	red, yellow := c.Thresholds()
	if red < 0 || red > 1 {
		return errors.Errorf("classifier.red_threshold must be within [0,1], got %v", red)
	}
	if yellow < 0 || yellow > 1 {
		return errors.Errorf("classifier.yellow_threshold must be within [0,1], got %v", yellow)
	}
	switch cl.FailurePolicy {
	case FAILURE_POLICY_OPEN, FAILURE_POLICY_CLOSED:
	default:
		return errors.Errorf("classifier.failure_policy must be %q or %q, got %q", FAILURE_POLICY_OPEN, FAILURE_POLICY_CLOSED, cl.FailurePolicy)
	}
	switch cl.Embedder {
	case EMBEDDER_OPENAI, EMBEDDER_GENAI:
	default:
		return errors.Errorf("unsupported classifier.embedder %q", cl.Embedder)
	}
	switch cl.Index {
	case INDEX_PINECONE, INDEX_DATABASE:
	default:
		return errors.Errorf("unsupported classifier.index %q", cl.Index)
	}
	switch c.Workflow.DefaultDeliveryMode {
	case "whatsapp", "email", "private":
	default:
		return errors.Errorf("unsupported workflow.default_delivery_mode %q", c.Workflow.DefaultDeliveryMode)
	}
	return nil
}

func DefaultStages() []StageConfig {
	return []StageConfig{
		{No: 1, Name: "CATEGORY_SELECTION", Prompt: "What kind of reflection would you like to write? Pick a category to begin."},
		{No: 2, Name: "RECIPIENT_NAME", Prompt: "Who is this reflection for? Tell me their name."},
		{No: 3, Name: "RELATION", Prompt: "How are you related to them?"},
		{No: 4, Name: "REFLECTION", Prompt: "Write what you would like them to know."},
	}
}

func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{No: 1, Name: "feedback"},
		{No: 2, Name: "gratitude"},
		{No: 3, Name: "apology"},
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setFloat(dst **float64, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.WithField("env", key).Warnf("ignoring non-numeric value %q", v)
		return
	}
	*dst = &f
}
