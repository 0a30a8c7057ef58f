package config

import (
	"time"

	"MediaSteGo/pkg/models"
)

// Chi-square interpretations. See Config.ChiPolicy.
const (
	ChiRejectUniform = "reject-uniform"
	ChiAcceptUniform = "accept-uniform"
)

// Image scoring policies
const (
	PolicyWeighted  = "weighted"
	PolicyIndicator = "indicator"
)

// Config is the process-wide detection configuration. It is loaded once and treated as
// immutable afterwards; analyses only ever read it.
type Config struct {
	Thresholds Thresholds         `koanf:"thresholds"`
	Bands      Bands              `koanf:"bands"`
	Weights    map[string]float64 `koanf:"weights"`
	ChiPolicy  ChiPolicyConfig    `koanf:"chi_policy"`
	RS         RSConfig           `koanf:"rs"`
	Video      VideoConfig        `koanf:"video"`
	Image      ImageConfig        `koanf:"image"`
	Aggregate  AggregateConfig    `koanf:"aggregate"`
	Tools      ToolsConfig        `koanf:"tools"`
	Breaker    BreakerConfig      `koanf:"breaker"`
	Pipeline   PipelineConfig     `koanf:"pipeline"`
	Store      StoreConfig        `koanf:"store"`
	Logging    LoggingConfig      `koanf:"logging"`
	Metrics    MetricsConfig      `koanf:"metrics"`
	Reputation ReputationConfig   `koanf:"reputation"`
}

// Thresholds contains the suspicion cut-offs of the individual tests and policies
type Thresholds struct {
	// Chi-square significance bands (applied to p, or 1-p under accept-uniform)
	ChiSignificance float64 `koanf:"chi_significance" validate:"gt=0,lt=1"`
	ChiStrict       float64 `koanf:"chi_strict" validate:"gt=0,lt=1"`
	ChiLoose        float64 `koanf:"chi_loose" validate:"gt=0,lt=1"`

	// LSB entropy above which a plane is suspicious
	Entropy        float64 `koanf:"entropy" validate:"gt=0,lte=1"`
	AudioEntropy   float64 `koanf:"audio_entropy" validate:"gt=0,lte=1"`
	AudioStrict    float64 `koanf:"audio_entropy_strict" validate:"gt=0,lte=1"`
	AudioLoose     float64 `koanf:"audio_entropy_loose" validate:"gt=0,lte=1"`
	FrameEntropy   float64 `koanf:"frame_entropy" validate:"gt=0,lte=1"`
	RSGap          float64 `koanf:"rs_gap" validate:"gt=0,lt=1"`
	HistogramSlope float64 `koanf:"histogram_slope" validate:"gte=0"`

	// Indicator-counting policy
	IndicatorFloor   int     `koanf:"indicator_floor" validate:"gte=1,lte=4"`
	IndicatorBase    float64 `koanf:"indicator_base" validate:"gte=0,lte=1"`
	IndicatorStep    float64 `koanf:"indicator_step" validate:"gte=0,lte=1"`
	IndicatorCeiling float64 `koanf:"indicator_ceiling" validate:"gt=0,lte=1"`

	// Weighted-band policy
	WeightedCutoff int     `koanf:"weighted_cutoff" validate:"gte=1"`
	WeightedBase   float64 `koanf:"weighted_base" validate:"gte=0,lt=1"`
}

// Band is one severity band of the weighted policy
type Band struct {
	Threshold  float64 `koanf:"threshold"`
	Points     int     `koanf:"points" validate:"gte=0"`
	Confidence float64 `koanf:"confidence" validate:"gte=0,lte=1"`
}

// Bands lists the weighted-policy bands per test, strictest first. Chi-square and RS bands
// fire below their threshold; entropy and histogram bands fire above it.
type Bands struct {
	ChiSquare []Band `koanf:"chi_square" validate:"dive"`
	Entropy   []Band `koanf:"entropy" validate:"dive"`
	RS        []Band `koanf:"rs" validate:"dive"`
	Histogram []Band `koanf:"histogram" validate:"dive"`
}

// ChiPolicyConfig selects the chi-square interpretation per call site
type ChiPolicyConfig struct {
	Image  string `koanf:"image" validate:"oneof=reject-uniform accept-uniform"`
	Legacy string `koanf:"legacy" validate:"oneof=reject-uniform accept-uniform"`
	Audio  string `koanf:"audio" validate:"oneof=reject-uniform accept-uniform"`
	Video  string `koanf:"video" validate:"oneof=reject-uniform accept-uniform"`
}

type RSConfig struct {
	MaxPixels int `koanf:"max_pixels" validate:"gte=16"`
	Downscale int `koanf:"downscale" validate:"gte=4"`
}

type VideoConfig struct {
	MaxFrames    int  `koanf:"max_frames" validate:"gte=1"`
	AnalyzeAudio bool `koanf:"analyze_audio"`
}

type ImageConfig struct {
	Policy string `koanf:"policy" validate:"oneof=weighted indicator"`
}

type AggregateConfig struct {
	Enabled    bool          `koanf:"enabled"`
	GoodEnough float64       `koanf:"good_enough" validate:"gt=0,lte=1"`
	Timeout    time.Duration `koanf:"timeout" validate:"gt=0"`
	Externals  []string      `koanf:"externals"`
}

// ToolsConfig points at the external binaries. Every invocation is bounded by Timeout.
type ToolsConfig struct {
	FFmpeg        string        `koanf:"ffmpeg"`
	FFprobe       string        `koanf:"ffprobe"`
	Java          string        `koanf:"java"`
	StegExposeJar string        `koanf:"stegexpose_jar"`
	OpenStegoJar  string        `koanf:"openstego_jar"`
	Yara          string        `koanf:"yara"`
	YaraRules     string        `koanf:"yara_rules"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
	// CountFrames demuxes videos to count packets instead of estimating
	// duration times frame rate when the container stores no frame count
	CountFrames bool `koanf:"count_frames"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
}

type PipelineConfig struct {
	Workers     int           `koanf:"workers" validate:"gte=1"`
	FileTimeout time.Duration `koanf:"file_timeout" validate:"gt=0"`
}

type StoreConfig struct {
	Path string `koanf:"path"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

type ReputationConfig struct {
	URLhausURL    string        `koanf:"urlhaus_url"`
	APIKey        string        `koanf:"api_key"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gt=0"`
	MaxRetries    uint64        `koanf:"max_retries"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
}

// Default returns the canonical configuration
func Default() *Config {
	return &Config{
		Thresholds: Thresholds{
			ChiSignificance: 0.05,
			ChiStrict:       0.01,
			ChiLoose:        0.1,

			Entropy:        0.9,
			AudioEntropy:   0.97,
			AudioStrict:    0.98,
			AudioLoose:     0.95,
			FrameEntropy:   0.97,
			RSGap:          0.05,
			HistogramSlope: 100,

			IndicatorFloor:   3,
			IndicatorBase:    0.6,
			IndicatorStep:    0.35,
			IndicatorCeiling: 0.95,

			WeightedCutoff: 3,
			WeightedBase:   0.3,
		},
		Bands: Bands{
			ChiSquare: []Band{
				{Threshold: 0.001, Points: 3, Confidence: 0.4},
				{Threshold: 0.01, Points: 2, Confidence: 0.3},
				{Threshold: 0.05, Points: 1, Confidence: 0.2},
			},
			Entropy: []Band{
				{Threshold: 0.98, Points: 3, Confidence: 0.3},
				{Threshold: 0.95, Points: 2, Confidence: 0.2},
				{Threshold: 0.9, Points: 1, Confidence: 0.1},
			},
			RS: []Band{
				{Threshold: 0.05, Points: 2, Confidence: 0.2},
				{Threshold: 0.1, Points: 1, Confidence: 0.1},
			},
			Histogram: []Band{},
		},
		Weights: map[string]float64{
			string(models.MethodLSB):        2,
			string(models.MethodStegExpose): 1,
			string(models.MethodOpenStego):  1,
		},
		ChiPolicy: ChiPolicyConfig{
			Image:  ChiRejectUniform,
			Legacy: ChiRejectUniform,
			Audio:  ChiAcceptUniform,
			Video:  ChiRejectUniform,
		},
		RS: RSConfig{
			MaxPixels: 4_000_000,
			Downscale: 1024,
		},
		Video: VideoConfig{
			MaxFrames:    10,
			AnalyzeAudio: true,
		},
		Image: ImageConfig{
			Policy: PolicyWeighted,
		},
		Aggregate: AggregateConfig{
			Enabled:    true,
			GoodEnough: 0.8,
			Timeout:    60 * time.Second,
			Externals:  []string{string(models.MethodStegExpose), string(models.MethodOpenStego)},
		},
		Tools: ToolsConfig{
			FFmpeg:        "ffmpeg",
			FFprobe:       "ffprobe",
			Java:          "java",
			StegExposeJar: "./tools/stegexpose/StegExpose.jar",
			OpenStegoJar:  "./tools/openstego/openstego.jar",
			Yara:          "yara",
			YaraRules:     "",
			Timeout:       2 * time.Minute,
		},
		Breaker: BreakerConfig{
			MaxRequests:      1,
			Interval:         0,
			Timeout:          30 * time.Second,
			FailureThreshold: 3,
		},
		Pipeline: PipelineConfig{
			Workers:     4,
			FileTimeout: 5 * time.Minute,
		},
		Store: StoreConfig{
			Path: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
		Reputation: ReputationConfig{
			URLhausURL:    "https://urlhaus-api.abuse.ch/v1",
			RatePerSecond: 1,
			MaxRetries:    3,
			Timeout:       15 * time.Second,
		},
	}
}

// MethodWeights returns the validated weight table keyed by method.
// Methods missing from the table weigh 1.
func (c *Config) MethodWeights() map[models.Method]float64 {
	out := make(map[models.Method]float64, len(c.Weights))
	for name, w := range c.Weights {
		m, err := models.ParseMethod(name)
		if err != nil {
			continue
		}
		out[m] = w
	}
	return out
}

// Weight returns the weight of a single method
func (c *Config) Weight(m models.Method) float64 {
	if w, ok := c.Weights[string(m)]; ok {
		return w
	}
	return 1
}
