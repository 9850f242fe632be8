package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"
)

// Config carries every tunable the client needs. Sections mirror the
// subsystems that consume them.
type Config struct {
	Provider  *ProviderConfig  `json:"provider"`
	Transport *TransportConfig `json:"transport"`
	Audio     *AudioConfig     `json:"audio"`
	Session   *SessionConfig   `json:"session"`
	Archive   *ArchiveConfig   `json:"archive"`
}

// ProviderConfig points at the backend and the realtime endpoint.
type ProviderConfig struct {
	BaseURL        string        `json:"base_url"`
	RealtimeURL    string        `json:"realtime_url"`
	Model          string        `json:"model"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// TransportConfig selects the wire transport and its negotiation knobs.
type TransportConfig struct {
	Kind         string        `json:"kind"`
	ChannelLabel string        `json:"channel_label"`
	StunURL      string        `json:"stun_url"`
	DialTimeout  time.Duration `json:"dial_timeout"`
}

// AudioConfig tunes capture, playback, and the mouth monitor.
type AudioConfig struct {
	SampleRate     int           `json:"sample_rate"`
	FrameSize      int           `json:"frame_size"`
	MouthThreshold float64       `json:"mouth_threshold"`
	MouthHold      time.Duration `json:"mouth_hold"`
	ReleaseHold    time.Duration `json:"release_hold"`
}

// SessionConfig tunes conversation pacing.
type SessionConfig struct {
	PromptDelay time.Duration `json:"prompt_delay"`
	EndDelay    time.Duration `json:"end_delay"`
}

// ArchiveConfig locates the local session store.
type ArchiveConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns settings that match the hosted backend and the
// tuning the client ships with.
func DefaultConfig() *Config {
	return &Config{
		Provider: &ProviderConfig{
			BaseURL:        "http://localhost:8000",
			RealtimeURL:    "https://api.openai.com/v1/realtime",
			Model:          "gpt-4o-realtime-preview",
			RequestTimeout: 15 * time.Second,
		},
		Transport: &TransportConfig{
			Kind:         TransportWebRTC,
			ChannelLabel: "oai-events",
			StunURL:      "stun:stun.l.google.com:19302",
			DialTimeout:  20 * time.Second,
		},
		Audio: &AudioConfig{
			SampleRate:     48000,
			FrameSize:      256,
			MouthThreshold: 0.01,
			MouthHold:      150 * time.Millisecond,
			ReleaseHold:    300 * time.Millisecond,
		},
		Session: &SessionConfig{
			PromptDelay: 150 * time.Millisecond,
			EndDelay:    2 * time.Second,
		},
		Archive: &ArchiveConfig{
			Path:    "./xiaoqiu.db",
			Timeout: 30 * time.Second,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Provider == nil {
		return fmt.Errorf("provider configuration is required")
	}

	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base URL cannot be empty")
	}

	if c.Provider.RealtimeURL == "" {
		return fmt.Errorf("provider realtime URL cannot be empty")
	}

	if c.Provider.Model == "" {
		return fmt.Errorf("provider model cannot be empty")
	}

	if c.Provider.RequestTimeout <= 0 {
		return fmt.Errorf("provider request timeout must be positive")
	}

	if c.Transport == nil {
		return fmt.Errorf("transport configuration is required")
	}

	if c.Transport.Kind != TransportWebRTC && c.Transport.Kind != TransportWebSocket {
		return fmt.Errorf("transport kind must be %q or %q", TransportWebRTC, TransportWebSocket)
	}

	if c.Transport.ChannelLabel == "" {
		return fmt.Errorf("transport channel label cannot be empty")
	}

	if c.Transport.Kind == TransportWebRTC && c.Transport.StunURL == "" {
		return fmt.Errorf("transport STUN URL cannot be empty")
	}

	if c.Transport.DialTimeout <= 0 {
		return fmt.Errorf("transport dial timeout must be positive")
	}

	if c.Audio == nil {
		return fmt.Errorf("audio configuration is required")
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio sample rate must be positive")
	}

	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("audio frame size must be positive")
	}

	if c.Audio.MouthThreshold <= 0 || c.Audio.MouthThreshold >= 1 {
		return fmt.Errorf("audio mouth threshold must be between 0 and 1")
	}

	if c.Audio.MouthHold <= 0 {
		return fmt.Errorf("audio mouth hold must be positive")
	}

	if c.Audio.ReleaseHold <= 0 {
		return fmt.Errorf("audio release hold must be positive")
	}

	if c.Session == nil {
		return fmt.Errorf("session configuration is required")
	}

	if c.Session.PromptDelay < 0 {
		return fmt.Errorf("session prompt delay cannot be negative")
	}

	if c.Session.EndDelay <= 0 {
		return fmt.Errorf("session end delay must be positive")
	}

	if c.Archive == nil {
		return fmt.Errorf("archive configuration is required")
	}

	if c.Archive.Path == "" {
		return fmt.Errorf("archive path cannot be empty")
	}

	if c.Archive.Timeout <= 0 {
		return fmt.Errorf("archive timeout must be positive")
	}

	return nil
}

// LoadFromEnv overrides defaults with XIAOQIU_* environment variables.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if baseURL := os.Getenv("XIAOQIU_PROVIDER_BASE_URL"); baseURL != "" {
		config.Provider.BaseURL = baseURL
	}

	if realtimeURL := os.Getenv("XIAOQIU_PROVIDER_REALTIME_URL"); realtimeURL != "" {
		config.Provider.RealtimeURL = realtimeURL
	}

	if model := os.Getenv("XIAOQIU_PROVIDER_MODEL"); model != "" {
		config.Provider.Model = model
	}

	if reqTimeout := os.Getenv("XIAOQIU_PROVIDER_REQUEST_TIMEOUT"); reqTimeout != "" {
		if timeout, err := time.ParseDuration(reqTimeout); err == nil {
			config.Provider.RequestTimeout = timeout
		}
	}

	if kind := os.Getenv("XIAOQIU_TRANSPORT_KIND"); kind != "" {
		config.Transport.Kind = kind
	}

	if label := os.Getenv("XIAOQIU_TRANSPORT_CHANNEL_LABEL"); label != "" {
		config.Transport.ChannelLabel = label
	}

	if stunURL := os.Getenv("XIAOQIU_TRANSPORT_STUN_URL"); stunURL != "" {
		config.Transport.StunURL = stunURL
	}

	if dialTimeout := os.Getenv("XIAOQIU_TRANSPORT_DIAL_TIMEOUT"); dialTimeout != "" {
		if timeout, err := time.ParseDuration(dialTimeout); err == nil {
			config.Transport.DialTimeout = timeout
		}
	}

	if sampleRate := os.Getenv("XIAOQIU_AUDIO_SAMPLE_RATE"); sampleRate != "" {
		if rate, err := strconv.Atoi(sampleRate); err == nil {
			config.Audio.SampleRate = rate
		}
	}

	if threshold := os.Getenv("XIAOQIU_AUDIO_MOUTH_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Audio.MouthThreshold = t
		}
	}

	if mouthHold := os.Getenv("XIAOQIU_AUDIO_MOUTH_HOLD"); mouthHold != "" {
		if hold, err := time.ParseDuration(mouthHold); err == nil {
			config.Audio.MouthHold = hold
		}
	}

	if releaseHold := os.Getenv("XIAOQIU_AUDIO_RELEASE_HOLD"); releaseHold != "" {
		if hold, err := time.ParseDuration(releaseHold); err == nil {
			config.Audio.ReleaseHold = hold
		}
	}

	if promptDelay := os.Getenv("XIAOQIU_SESSION_PROMPT_DELAY"); promptDelay != "" {
		if delay, err := time.ParseDuration(promptDelay); err == nil {
			config.Session.PromptDelay = delay
		}
	}

	if endDelay := os.Getenv("XIAOQIU_SESSION_END_DELAY"); endDelay != "" {
		if delay, err := time.ParseDuration(endDelay); err == nil {
			config.Session.EndDelay = delay
		}
	}

	if archivePath := os.Getenv("XIAOQIU_ARCHIVE_PATH"); archivePath != "" {
		config.Archive.Path = archivePath
	}

	if archiveTimeout := os.Getenv("XIAOQIU_ARCHIVE_TIMEOUT"); archiveTimeout != "" {
		if timeout, err := time.ParseDuration(archiveTimeout); err == nil {
			config.Archive.Timeout = timeout
		}
	}

	return config
}

// ConfigFile mirrors Config for JSON parsing, with durations as strings.
type ConfigFile struct {
	Provider  *ProviderConfigFile  `json:"provider"`
	Transport *TransportConfigFile `json:"transport"`
	Audio     *AudioConfigFile     `json:"audio"`
	Session   *SessionConfigFile   `json:"session"`
	Archive   *ArchiveConfigFile   `json:"archive"`
}

type ProviderConfigFile struct {
	BaseURL        string `json:"base_url"`
	RealtimeURL    string `json:"realtime_url"`
	Model          string `json:"model"`
	RequestTimeout string `json:"request_timeout"`
}

type TransportConfigFile struct {
	Kind         string `json:"kind"`
	ChannelLabel string `json:"channel_label"`
	StunURL      string `json:"stun_url"`
	DialTimeout  string `json:"dial_timeout"`
}

type AudioConfigFile struct {
	SampleRate     int     `json:"sample_rate"`
	FrameSize      int     `json:"frame_size"`
	MouthThreshold float64 `json:"mouth_threshold"`
	MouthHold      string  `json:"mouth_hold"`
	ReleaseHold    string  `json:"release_hold"`
}

type SessionConfigFile struct {
	PromptDelay string `json:"prompt_delay"`
	EndDelay    string `json:"end_delay"`
}

type ArchiveConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

// LoadFromFile reads a JSON configuration file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Provider != nil {
		if configFile.Provider.BaseURL != "" {
			config.Provider.BaseURL = configFile.Provider.BaseURL
		}
		if configFile.Provider.RealtimeURL != "" {
			config.Provider.RealtimeURL = configFile.Provider.RealtimeURL
		}
		if configFile.Provider.Model != "" {
			config.Provider.Model = configFile.Provider.Model
		}
		if configFile.Provider.RequestTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Provider.RequestTimeout); err == nil {
				config.Provider.RequestTimeout = timeout
			}
		}
	}

	if configFile.Transport != nil {
		if configFile.Transport.Kind != "" {
			config.Transport.Kind = configFile.Transport.Kind
		}
		if configFile.Transport.ChannelLabel != "" {
			config.Transport.ChannelLabel = configFile.Transport.ChannelLabel
		}
		if configFile.Transport.StunURL != "" {
			config.Transport.StunURL = configFile.Transport.StunURL
		}
		if configFile.Transport.DialTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Transport.DialTimeout); err == nil {
				config.Transport.DialTimeout = timeout
			}
		}
	}

	if configFile.Audio != nil {
		if configFile.Audio.SampleRate > 0 {
			config.Audio.SampleRate = configFile.Audio.SampleRate
		}
		if configFile.Audio.FrameSize > 0 {
			config.Audio.FrameSize = configFile.Audio.FrameSize
		}
		if configFile.Audio.MouthThreshold > 0 {
			config.Audio.MouthThreshold = configFile.Audio.MouthThreshold
		}
		if configFile.Audio.MouthHold != "" {
			if hold, err := time.ParseDuration(configFile.Audio.MouthHold); err == nil {
				config.Audio.MouthHold = hold
			}
		}
		if configFile.Audio.ReleaseHold != "" {
			if hold, err := time.ParseDuration(configFile.Audio.ReleaseHold); err == nil {
				config.Audio.ReleaseHold = hold
			}
		}
	}

	if configFile.Session != nil {
		if configFile.Session.PromptDelay != "" {
			if delay, err := time.ParseDuration(configFile.Session.PromptDelay); err == nil {
				config.Session.PromptDelay = delay
			}
		}
		if configFile.Session.EndDelay != "" {
			if delay, err := time.ParseDuration(configFile.Session.EndDelay); err == nil {
				config.Session.EndDelay = delay
			}
		}
	}

	if configFile.Archive != nil {
		if configFile.Archive.Path != "" {
			config.Archive.Path = configFile.Archive.Path
		}
		if configFile.Archive.Timeout != "" {
			if timeout, err := time.ParseDuration(configFile.Archive.Timeout); err == nil {
				config.Archive.Timeout = timeout
			}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. File errors are ignored so environment and defaults still apply.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
