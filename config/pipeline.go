package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PipelineConfig carries the calibrated pipeline constants. All of them are
// env-tunable; the defaults were calibrated against a labeled report sample.
type PipelineConfig struct {
	// Engines lists the extraction engines to run, in order. Each engine may
	// have a command template under ENGINE_CMD_<NAME> with {input}/{output}
	// placeholders; engines without one are expected to have pre-produced
	// artifacts under ArtifactRoot.
	Engines []string

	// ArtifactRoot is the fixed fallback directory searched for engine output
	// when the command template does not carry an {output} placeholder.
	ArtifactRoot string

	// DictionaryPath points at the versioned metric-dictionary JSON. Empty
	// means the built-in base definitions; a set path that cannot be loaded is
	// a fatal pipeline error.
	DictionaryPath      string
	BackgroundRulesPath string

	// EngineTimeout bounds one external engine invocation; one retry is
	// attempted on transient failure.
	EngineTimeout time.Duration
	EngineRetries int

	// AgreementRelTol / AgreementAbsTol define "engine agreement" for
	// consensus grouping.
	AgreementRelTol decimal.Decimal
	AgreementAbsTol decimal.Decimal

	// ConsistencyAbsTol / ConsistencyRelTol bound accounting-identity residuals.
	ConsistencyAbsTol decimal.Decimal
	ConsistencyRelTol decimal.Decimal

	// ShortLabelMaxRunes: normalized labels at or below this length only ever
	// match exactly (no pattern matching).
	ShortLabelMaxRunes int

	// MinDistinctMetrics: a table matching fewer distinct metrics than this
	// writes no candidates at all.
	MinDistinctMetrics int
}

func Pipeline() PipelineConfig {
	return PipelineConfig{
		Engines:             splitList(envOr("PIPELINE_ENGINES", "mineru,pdftext")),
		ArtifactRoot:        envOr("ENGINE_ARTIFACT_ROOT", "tmp/engine_output"),
		DictionaryPath:      strings.TrimSpace(os.Getenv("METRIC_DICTIONARY_PATH")),
		BackgroundRulesPath: envOr("BACKGROUND_RULES_PATH", "data/taxonomy/background_rules.json"),
		EngineTimeout:       time.Duration(intFromEnv("ENGINE_TIMEOUT_SECONDS", 600)) * time.Second,
		EngineRetries:       intFromEnv("ENGINE_RETRIES", 1),
		AgreementRelTol:     decimalFromEnv("AGREEMENT_REL_TOL", "0.0001"),
		AgreementAbsTol:     decimalFromEnv("AGREEMENT_ABS_TOL", "0.01"),
		ConsistencyAbsTol:   decimalFromEnv("CONSISTENCY_ABS_TOL", "1"),
		ConsistencyRelTol:   decimalFromEnv("CONSISTENCY_REL_TOL", "0.000001"),
		ShortLabelMaxRunes:  intFromEnv("SHORT_LABEL_MAX_RUNES", 4),
		MinDistinctMetrics:  intFromEnv("MIN_DISTINCT_METRICS", 2),
	}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func decimalFromEnv(key, def string) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		d, _ = decimal.NewFromString(def)
	}
	return d
}
