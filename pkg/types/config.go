package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP client timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "evidence-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SourceConfig holds per-adapter settings.
type SourceConfig struct {
	// Enabled controls whether the source is routed on the first round.
	// Disabled sources are still queried on the fallback round.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// MaxResults caps results per call (0 uses the adapter default).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// RequestsPerSecond and Burst configure the adapter's token bucket.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst" mapstructure:"burst"`

	// APIKey authenticates against the source when it supports keys.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Email is sent as a contact address where the source asks for one.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`
}

// RetrievalConfig holds settings for the retrieval coordinator.
type RetrievalConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// AdapterTimeout bounds each adapter call.
	AdapterTimeout time.Duration `json:"adapter_timeout" yaml:"adapter_timeout" mapstructure:"adapter_timeout"`

	// RoundDeadline bounds a whole fan-out round; stragglers are abandoned.
	RoundDeadline time.Duration `json:"round_deadline" yaml:"round_deadline" mapstructure:"round_deadline"`

	// MaxAttempts is the number of attempts per adapter on rate limiting (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// BackoffBase and BackoffMax bound the jittered exponential backoff.
	BackoffBase time.Duration `json:"backoff_base" yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax  time.Duration `json:"backoff_max" yaml:"backoff_max" mapstructure:"backoff_max"`

	// Jitter is the fraction of each delay randomized (0..1).
	Jitter float64 `json:"jitter" yaml:"jitter" mapstructure:"jitter"`

	// Sources holds per-source settings keyed by source name.
	Sources map[string]SourceConfig `json:"sources" yaml:"sources" mapstructure:"sources"`
}

// Source returns the settings for s, or a zero SourceConfig.
func (c RetrievalConfig) Source(s Source) SourceConfig {
	return c.Sources[string(s)]
}

// RelevanceConfig holds the lexical filter weights.
type RelevanceConfig struct {
	// Cutoff is the minimum score kept; a score equal to Cutoff is kept.
	Cutoff float64 `json:"cutoff" yaml:"cutoff" mapstructure:"cutoff"`

	DiseaseWeight   float64 `json:"disease_weight" yaml:"disease_weight" mapstructure:"disease_weight"`
	DrugWeight      float64 `json:"drug_weight" yaml:"drug_weight" mapstructure:"drug_weight"`
	ProcedureWeight float64 `json:"procedure_weight" yaml:"procedure_weight" mapstructure:"procedure_weight"`
	PhraseBonus     float64 `json:"phrase_bonus" yaml:"phrase_bonus" mapstructure:"phrase_bonus"`
	OverlapWeight   float64 `json:"overlap_weight" yaml:"overlap_weight" mapstructure:"overlap_weight"`
	OffTopicPenalty float64 `json:"off_topic_penalty" yaml:"off_topic_penalty" mapstructure:"off_topic_penalty"`

	// OffTopicMarkers are phrases that mark a record as off-topic.
	OffTopicMarkers []string `json:"off_topic_markers" yaml:"off_topic_markers" mapstructure:"off_topic_markers"`
}

// CacheBackend selects the rerank cache store.
type CacheBackend string

const (
	CacheNone   CacheBackend = "none"
	CacheMemory CacheBackend = "memory"
	CacheRedis  CacheBackend = "redis"
)

// RerankConfig holds settings for the semantic reranker.
type RerankConfig struct {
	// MinSimilarity is the cosine threshold; candidates below it are dropped.
	MinSimilarity float64 `json:"min_similarity" yaml:"min_similarity" mapstructure:"min_similarity"`

	SemanticWeight float64 `json:"semantic_weight" yaml:"semantic_weight" mapstructure:"semantic_weight"`
	LexicalWeight  float64 `json:"lexical_weight" yaml:"lexical_weight" mapstructure:"lexical_weight"`

	// SmallNCutoff bypasses reranking when fewer candidates arrive.
	SmallNCutoff int `json:"small_n_cutoff" yaml:"small_n_cutoff" mapstructure:"small_n_cutoff"`

	CacheBackend    CacheBackend  `json:"cache_backend" yaml:"cache_backend" mapstructure:"cache_backend"`
	CacheTTL        time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheMaxEntries int           `json:"cache_max_entries" yaml:"cache_max_entries" mapstructure:"cache_max_entries"`

	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" mapstructure:"redis_db"`
}

// AIConfig holds shared settings for stages that call a model API.
type AIConfig struct {
	// Model is the model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Endpoint is the API base URL (OpenAI-compatible).
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Timeout bounds each API call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retry attempts on HTTP 429 (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// EmbeddingConfig holds settings for the embedding service client.
type EmbeddingConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`
}

// SufficiencyConfig holds the gap analysis thresholds.
type SufficiencyConfig struct {
	// ProceedThreshold is the coverage score (0..100) at which synthesis proceeds.
	ProceedThreshold float64 `json:"proceed_threshold" yaml:"proceed_threshold" mapstructure:"proceed_threshold"`

	// StalenessYears is the age of the newest item beyond which the pack is stale.
	StalenessYears int `json:"staleness_years" yaml:"staleness_years" mapstructure:"staleness_years"`

	// ContradictionTopK is the number of top-ranked items compared for
	// opposing directional language.
	ContradictionTopK int `json:"contradiction_top_k" yaml:"contradiction_top_k" mapstructure:"contradiction_top_k"`
}

// SynthesisConfig holds settings for the synthesis gate.
type SynthesisConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// BaseWords and ExtraWords budget output: BaseWords + complexity*ExtraWords.
	BaseWords  int `json:"base_words" yaml:"base_words" mapstructure:"base_words"`
	ExtraWords int `json:"extra_words" yaml:"extra_words" mapstructure:"extra_words"`

	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxPackSize caps the number of ranked items sent to generation.
	MaxPackSize int `json:"max_pack_size" yaml:"max_pack_size" mapstructure:"max_pack_size"`

	// ExcerptChars caps each item's excerpt in the prompt.
	ExcerptChars int `json:"excerpt_chars" yaml:"excerpt_chars" mapstructure:"excerpt_chars"`
}

// VerifyConfig holds the citation verifier settings.
type VerifyConfig struct {
	// GroundingFloor is the minimum grounding score for a pass.
	GroundingFloor float64 `json:"grounding_floor" yaml:"grounding_floor" mapstructure:"grounding_floor"`

	// MinClaimWords is the shortest sentence treated as a factual claim.
	MinClaimWords int `json:"min_claim_words" yaml:"min_claim_words" mapstructure:"min_claim_words"`
}

// GuidelinesConfig holds settings for the local guideline index.
type GuidelinesConfig struct {
	// Dir is the base directory for the guideline index (contains index/).
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxResults is the default maximum number of chunks per search.
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// RequestTimeout bounds one /v1/answer run.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`

	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LogConfig selects the structured log level and format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all stage configurations for the pipeline.
type Config struct {
	Log         LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
	Retrieval   RetrievalConfig   `json:"retrieval" yaml:"retrieval" mapstructure:"retrieval"`
	Relevance   RelevanceConfig   `json:"relevance" yaml:"relevance" mapstructure:"relevance"`
	Rerank      RerankConfig      `json:"rerank" yaml:"rerank" mapstructure:"rerank"`
	Embedding   EmbeddingConfig   `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Sufficiency SufficiencyConfig `json:"sufficiency" yaml:"sufficiency" mapstructure:"sufficiency"`
	Synthesis   SynthesisConfig   `json:"synthesis" yaml:"synthesis" mapstructure:"synthesis"`
	Verify      VerifyConfig      `json:"verify" yaml:"verify" mapstructure:"verify"`
	Guidelines  GuidelinesConfig  `json:"guidelines" yaml:"guidelines" mapstructure:"guidelines"`
	Server      ServerConfig      `json:"server" yaml:"server" mapstructure:"server"`
}

// DefaultConfig returns the configuration used when no file overrides it.
// Similarity and lexical thresholds were tuned against one embedding model
// and should be recalibrated for another.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Retrieval: RetrievalConfig{
			HTTPConfig:     HTTPConfig{Timeout: 20 * time.Second, UserAgent: "evidence-engine/0.1"},
			AdapterTimeout: 12 * time.Second,
			RoundDeadline:  20 * time.Second,
			MaxAttempts:    3,
			BackoffBase:    500 * time.Millisecond,
			BackoffMax:     8 * time.Second,
			Jitter:         0.5,
			Sources: map[string]SourceConfig{
				string(SourceGuidelines):      {Enabled: true, MaxResults: 20, RequestsPerSecond: 50, Burst: 10},
				string(SourcePubMed):          {Enabled: true, MaxResults: 20, RequestsPerSecond: 3, Burst: 3},
				string(SourceEuropePMC):       {Enabled: true, MaxResults: 20, RequestsPerSecond: 5, Burst: 5},
				string(SourceDailyMed):        {Enabled: false, MaxResults: 2, RequestsPerSecond: 2, Burst: 2},
				string(SourceOpenAlex):        {Enabled: false, MaxResults: 20, RequestsPerSecond: 5, Burst: 5},
				string(SourceSemanticScholar): {Enabled: false, MaxResults: 20, RequestsPerSecond: 1, Burst: 1},
				string(SourceTavily):          {Enabled: false, MaxResults: 10, RequestsPerSecond: 2, Burst: 2},
			},
		},
		Relevance: RelevanceConfig{
			Cutoff:          20,
			DiseaseWeight:   25,
			DrugWeight:      20,
			ProcedureWeight: 15,
			PhraseBonus:     20,
			OverlapWeight:   30,
			OffTopicPenalty: 30,
			OffTopicMarkers: []string{
				"in mice", "murine", "rat model", "in rats", "veterinary", "canine", "feline",
				"in vitro", "erratum", "retracted", "retraction", "correction to",
			},
		},
		Rerank: RerankConfig{
			MinSimilarity:   0.45,
			SemanticWeight:  0.7,
			LexicalWeight:   0.3,
			SmallNCutoff:    10,
			CacheBackend:    CacheMemory,
			CacheTTL:        15 * time.Minute,
			CacheMaxEntries: 256,
		},
		Embedding: EmbeddingConfig{AIConfig: AIConfig{
			Model:      "text-embedding-3-small",
			Endpoint:   "https://api.openai.com/v1",
			Timeout:    20 * time.Second,
			MaxRetries: 3,
		}},
		Sufficiency: SufficiencyConfig{
			ProceedThreshold:  70,
			StalenessYears:    5,
			ContradictionTopK: 5,
		},
		Synthesis: SynthesisConfig{
			AIConfig: AIConfig{
				Model:      "gpt-4o",
				Endpoint:   "https://api.openai.com/v1",
				Timeout:    90 * time.Second,
				MaxRetries: 3,
			},
			BaseWords:    250,
			ExtraWords:   550,
			Temperature:  0.2,
			MaxPackSize:  20,
			ExcerptChars: 1200,
		},
		Verify: VerifyConfig{
			GroundingFloor: 0.7,
			MinClaimWords:  6,
		},
		Guidelines: GuidelinesConfig{
			Dir:        "guidelines",
			MaxResults: 20,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}
