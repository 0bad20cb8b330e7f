package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Config holds everything the binaries read from the environment.
type Config struct {
	Port     string
	LogLevel string

	BeamToken      string
	BeamTokenParam string
	BeamAPIURL     string
	BeamGatewayURL string
	Timeout        time.Duration

	ImageAPIURL         string
	ImageAuthToken      string
	ImageAuthTokenParam string
	ImagePromptField    string
	DebounceWindow      time.Duration

	DeploymentRefresh string

	Bucket       string
	Distribution string
	SiteURL      string
	EventSink    string
	EventSource  string

	Prompts      []string
	PromptsParam string
}

// Load reads an optional .env file, then the process environment.
// Variables already present in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	timeout, err := getDuration("BEAM_TIMEOUT", time.Minute)
	if err != nil {
		return nil, err
	}
	window, err := getDuration("DEBOUNCE_WINDOW", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:     getEnv("PORT", "3000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BeamToken:      getEnv("BEAM_TOKEN", ""),
		BeamTokenParam: getEnv("BEAM_TOKEN_PARAM", ""),
		BeamAPIURL:     strings.TrimRight(getEnv("BEAM_API_URL", "https://api.beam.cloud"), "/"),
		BeamGatewayURL: strings.TrimRight(getEnv("BEAM_GATEWAY_URL", "https://app.beam.cloud"), "/"),
		Timeout:        timeout,

		ImageAPIURL:         getEnv("IMAGE_API_URL", ""),
		ImageAuthToken:      getEnv("IMAGE_AUTH_TOKEN", ""),
		ImageAuthTokenParam: getEnv("IMAGE_AUTH_TOKEN_PARAM", ""),
		ImagePromptField:    getEnv("IMAGE_PROMPT_FIELD", "prompt"),
		DebounceWindow:      window,

		DeploymentRefresh: getEnv("DEPLOYMENT_REFRESH", ""),

		Bucket:       getEnv("BUCKET", ""),
		Distribution: getEnv("DISTRIBUTION", ""),
		SiteURL:      strings.TrimRight(getEnv("SITE_URL", ""), "/"),
		EventSink:    getEnv("K_SINK", ""),
		EventSource:  getEnv("EVENT_SOURCE", "beamshim"),

		Prompts:      splitList(getEnv("PROMPTS", "")),
		PromptsParam: getEnv("PROMPTS_PARAM", ""),
	}

	if !lo.Contains([]string{"prompt", "content"}, cfg.ImagePromptField) {
		return nil, fmt.Errorf("IMAGE_PROMPT_FIELD must be prompt or content, got %q", cfg.ImagePromptField)
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("BEAM_TIMEOUT must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("750ms") and bare integers, which are
// read as milliseconds.
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if d, err := time.ParseDuration(raw + "ms"); err == nil {
		return d, nil
	}
	return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
}

func splitList(s string) []string {
	parts := lo.Map(strings.Split(s, "\n"), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Filter(parts, func(p string, _ int) bool { return p != "" })
}
