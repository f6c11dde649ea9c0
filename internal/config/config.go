// Package config provides the configuration schema and loader for the
// voxwire voice message client.
package config

// LogLevel controls log verbosity for the client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// InterruptPolicy decides what happens when a new recording is started while
// a send attempt is still converting or sending.
type InterruptPolicy string

const (
	// InterruptReject refuses the new recording until the in-flight attempt
	// resolves.
	InterruptReject InterruptPolicy = "reject"

	// InterruptDiscard withdraws the in-flight attempt (its files are purged
	// once the pending operation returns) and starts the new recording.
	InterruptDiscard InterruptPolicy = "discard"
)

// IsValid reports whether p is a recognised interrupt policy.
func (p InterruptPolicy) IsValid() bool {
	return p == InterruptReject || p == InterruptDiscard
}

// Config is the root configuration structure for voxwire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Recording RecordingConfig `yaml:"recording"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Transport TransportConfig `yaml:"transport"`
}

// ClientConfig holds process-wide settings.
type ClientConfig struct {
	// LogLevel controls verbosity. Default: "info".
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus /metrics endpoint listens
	// on (e.g., ":9100"). Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// TempDir is the directory for transient media artifacts (raw takes and
	// encoded payloads). Default: a "voxwire" directory under os.TempDir().
	// The directory is swept of stale artifacts at startup.
	TempDir string `yaml:"temp_dir"`
}

// RecordingConfig holds capture and silence-detection settings.
type RecordingConfig struct {
	// Device is the capture device identifier passed to the recording tool
	// (e.g., an ALSA device name). Default: "default".
	Device string `yaml:"device"`

	// SampleRate is the capture sample rate in Hz. Default: 48000.
	SampleRate int `yaml:"sample_rate"`

	// SilenceDetection enables auto-stop after sustained silence. Default: true.
	SilenceDetection bool `yaml:"silence_detection"`

	// SilenceThreshold is the normalized amplitude [0, 1] below which a frame
	// counts as silent. Default: 0.03.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceDuration is how long, in seconds, the signal must stay below
	// SilenceThreshold before the recorder auto-stops. Default: 2.0.
	SilenceDuration float64 `yaml:"silence_duration"`

	// MaxDuration is the hard recording ceiling in seconds. A take is
	// forcibly stopped when it reaches this length. Default: 60.
	MaxDuration int `yaml:"max_duration"`

	// InterruptPolicy decides whether a new recording may displace an
	// in-flight send attempt. Default: "reject".
	InterruptPolicy InterruptPolicy `yaml:"interrupt_policy"`
}

// PlaybackConfig holds settings for handling received voice messages.
type PlaybackConfig struct {
	// AutoPlay downloads incoming voice messages and announces them as ready
	// to play. Default: true.
	AutoPlay bool `yaml:"auto_play"`

	// Haptics enables haptic feedback notifications on record start/stop.
	// Default: true.
	Haptics bool `yaml:"haptics"`
}

// TransportConfig holds settings for the messaging backend connection.
type TransportConfig struct {
	// Endpoint is the WebSocket URL of the messaging backend
	// (e.g., "wss://gateway.example.com/client"). Required.
	Endpoint string `yaml:"endpoint"`

	// DeviceName identifies this client to the backend in setParameters.
	// Default: "voxwire".
	DeviceName string `yaml:"device_name"`

	// AppVersion is reported to the backend in setParameters.
	AppVersion string `yaml:"app_version"`

	// TargetChatID is the opaque backend identifier of the chat voice
	// messages are sent to. When empty, the first chat returned by the
	// backend is used.
	TargetChatID string `yaml:"target_chat_id"`

	// DownloadDir is where downloaded files are cached. Default: a
	// "downloads" directory under Client.TempDir.
	DownloadDir string `yaml:"download_dir"`
}

// Default values applied by [Validate] for unset fields.
const (
	DefaultSampleRate       = 48000
	DefaultSilenceThreshold = 0.03
	DefaultSilenceDuration  = 2.0
	DefaultMaxDuration      = 60
	DefaultDevice           = "default"
	DefaultDeviceName       = "voxwire"
)
