package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"proofline/internal/doctree"
	"proofline/internal/suggestion"
)

type Config struct {
	Addr       string
	CORSOrigin string
	// Logging
	LogLevel string
	LogFile  string
	// Redis - empty disables the analysis cache
	RedisURL         string
	CacheTTL         time.Duration
	CacheVersion     string
	MinAnalysisChars int
	MaxCacheChars    int
	// Analysis collaborators - an empty URL disables that analyze kind
	AnalyzerURL     string
	EngageURL       string
	PromoURL        string
	AnalyzerTimeout time.Duration
	StylesFile      string
}

func Load() Config {
	return Config{
		Addr:             getenv("PROOFLINE_ADDR", ":8787"),
		CORSOrigin:       getenv("PROOFLINE_CORS_ORIGIN", "*"),
		LogLevel:         getenv("PROOFLINE_LOG_LEVEL", "info"),
		LogFile:          getenv("PROOFLINE_LOG_FILE", ""),
		RedisURL:         getenv("REDIS_URL", ""),
		CacheTTL:         time.Duration(getenvInt("PROOFLINE_CACHE_TTL_SECONDS", 604800)) * time.Second,
		CacheVersion:     getenv("PROOFLINE_CACHE_VERSION", "1.0.0"),
		MinAnalysisChars: getenvInt("PROOFLINE_MIN_ANALYSIS_CHARS", 10),
		MaxCacheChars:    getenvInt("PROOFLINE_MAX_CACHE_CHARS", 50000),
		AnalyzerURL:      getenv("PROOFLINE_ANALYZER_URL", ""),
		EngageURL:        getenv("PROOFLINE_ENGAGE_URL", ""),
		PromoURL:         getenv("PROOFLINE_PROMO_URL", ""),
		AnalyzerTimeout:  time.Duration(getenvInt("PROOFLINE_ANALYZER_TIMEOUT_SECONDS", 30)) * time.Second,
		StylesFile:       getenv("PROOFLINE_STYLES_FILE", ""),
	}
}

// stylesFile is the YAML layout of a styles override file:
//
//	styles:
//	  grammar: {treatment: underline, class: my-grammar}
type stylesFile struct {
	Styles map[string]doctree.Style `yaml:"styles"`
}

// LoadStyles returns the default styles with the overrides from path
// applied. An empty path returns the defaults.
func LoadStyles(path string) (doctree.Styles, error) {
	styles := doctree.DefaultStyles()
	if path == "" {
		return styles, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read styles file: %w", err)
	}
	var file stylesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse styles file: %w", err)
	}

	overrides := doctree.Styles{}
	for name, style := range file.Styles {
		category, ok := suggestion.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("styles file: unknown category %q", name)
		}
		switch style.Treatment {
		case "", doctree.TreatmentUnderline, doctree.TreatmentHighlight, doctree.TreatmentNone:
		default:
			return nil, fmt.Errorf("styles file: unknown treatment %q for %s", style.Treatment, name)
		}
		overrides[category] = style
	}
	return styles.Merge(overrides), nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
