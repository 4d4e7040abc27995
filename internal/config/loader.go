package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/arivox/arivox/internal/endpoint"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper-native", "whisper-server"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp"},
	"tts": {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.AudioSocketAddr == "" {
		errs = append(errs, errors.New("server.audiosocket_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TelephonyRate < 0 {
		errs = append(errs, fmt.Errorf("server.telephony_rate %d must not be negative", cfg.Server.TelephonyRate))
	}

	seg := cfg.Segmentation
	for _, f := range []struct {
		name  string
		value int
	}{
		{"segmentation.sample_rate", seg.SampleRate},
		{"segmentation.energy_threshold", seg.EnergyThreshold},
		{"segmentation.frame_ms", seg.FrameMs},
		{"segmentation.preroll_ms", seg.PrerollMs},
		{"segmentation.min_ms", seg.MinMs},
		{"segmentation.silence_ms", seg.SilenceMs},
		{"segmentation.max_ms", seg.MaxMs},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", f.name, f.value))
		}
	}
	if seg.MaxMs > 0 && seg.SilenceMs > 0 && seg.MaxMs < seg.SilenceMs {
		errs = append(errs, fmt.Errorf("segmentation.max_ms %d is shorter than segmentation.silence_ms %d", seg.MaxMs, seg.SilenceMs))
	}

	// Both the telephony leg and the pipeline must produce a whole number of
	// samples per frame, or the first audio frame fails the segmenter's
	// whole-frame check at runtime.
	frameMs := seg.FrameMs
	if frameMs == 0 {
		frameMs = endpoint.DefaultFrameMs
	}
	if frameMs > 0 {
		if rate := cfg.Server.TelephonyRate; rate > 0 && rate*frameMs%1000 != 0 {
			errs = append(errs, fmt.Errorf("server.telephony_rate %d does not yield whole samples per %d ms frame", rate, frameMs))
		}
		if rate := seg.SampleRate; rate > 0 && rate*frameMs%1000 != 0 {
			errs = append(errs, fmt.Errorf("segmentation.sample_rate %d does not yield whole samples per %d ms frame", rate, frameMs))
		}
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	switch cfg.Providers.STT.Name {
	case "whisper-native":
		if cfg.Providers.STT.Model == "" {
			errs = append(errs, errors.New("providers.stt.model (GGML model path) is required for whisper-native"))
		}
	case "whisper-server":
		if cfg.Providers.STT.BaseURL == "" {
			errs = append(errs, errors.New("providers.stt.base_url is required for whisper-server"))
		}
	}

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; the agent will transcribe but never reply")
	}
	if cfg.Providers.TTS.Name != "" && cfg.Providers.TTS.Option("voice_id") == "" {
		errs = append(errs, errors.New("providers.tts.options.voice_id is required when a TTS provider is configured"))
	}

	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; calls will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
