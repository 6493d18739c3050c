package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	JWT       JWTConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Convert   ConvertConfig
	Admission AdmissionConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	ConvertPerHour  int
	DownloadPerHour int
}

type ConvertConfig struct {
	MaxConcurrentJobs int
	JobTTLMinutes     int
	SweepMinutes      int
	MaxUploadMB       int
	FFmpegEnabled     bool
}

type AdmissionConfig struct {
	MemoryCeilingMB    int
	MemoryMultiplier   float64
	MaxJobMinutes      int
	SampleSeconds      int
	SnapshotWindowMins int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("ratelimit.convert_per_hour", "RATELIMIT_CONVERT_PER_HOUR")
	_ = viper.BindEnv("ratelimit.download_per_hour", "RATELIMIT_DOWNLOAD_PER_HOUR")
	_ = viper.BindEnv("convert.max_concurrent_jobs", "CONVERT_MAX_CONCURRENT_JOBS")
	_ = viper.BindEnv("convert.job_ttl_minutes", "CONVERT_JOB_TTL_MINUTES")
	_ = viper.BindEnv("convert.sweep_minutes", "CONVERT_SWEEP_MINUTES")
	_ = viper.BindEnv("convert.max_upload_mb", "CONVERT_MAX_UPLOAD_MB")
	_ = viper.BindEnv("convert.ffmpeg_enabled", "CONVERT_FFMPEG_ENABLED")
	_ = viper.BindEnv("admission.memory_ceiling_mb", "ADMISSION_MEMORY_CEILING_MB")
	_ = viper.BindEnv("admission.memory_multiplier", "ADMISSION_MEMORY_MULTIPLIER")
	_ = viper.BindEnv("admission.max_job_minutes", "ADMISSION_MAX_JOB_MINUTES")
	_ = viper.BindEnv("admission.sample_seconds", "ADMISSION_SAMPLE_SECONDS")
	_ = viper.BindEnv("admission.snapshot_window_mins", "ADMISSION_SNAPSHOT_WINDOW_MINS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.convert_per_hour", 10)
	viper.SetDefault("ratelimit.download_per_hour", 30)
	viper.SetDefault("convert.max_concurrent_jobs", 3)
	viper.SetDefault("convert.job_ttl_minutes", 30)
	viper.SetDefault("convert.sweep_minutes", 5)
	viper.SetDefault("convert.max_upload_mb", 100)
	viper.SetDefault("convert.ffmpeg_enabled", true)
	viper.SetDefault("admission.memory_ceiling_mb", 512)
	viper.SetDefault("admission.memory_multiplier", 3.0)
	viper.SetDefault("admission.max_job_minutes", 10)
	viper.SetDefault("admission.sample_seconds", 30)
	viper.SetDefault("admission.snapshot_window_mins", 60)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			ConvertPerHour:  viper.GetInt("ratelimit.convert_per_hour"),
			DownloadPerHour: viper.GetInt("ratelimit.download_per_hour"),
		},
		Convert: ConvertConfig{
			MaxConcurrentJobs: viper.GetInt("convert.max_concurrent_jobs"),
			JobTTLMinutes:     viper.GetInt("convert.job_ttl_minutes"),
			SweepMinutes:      viper.GetInt("convert.sweep_minutes"),
			MaxUploadMB:       viper.GetInt("convert.max_upload_mb"),
			FFmpegEnabled:     viper.GetBool("convert.ffmpeg_enabled"),
		},
		Admission: AdmissionConfig{
			MemoryCeilingMB:    viper.GetInt("admission.memory_ceiling_mb"),
			MemoryMultiplier:   viper.GetFloat64("admission.memory_multiplier"),
			MaxJobMinutes:      viper.GetInt("admission.max_job_minutes"),
			SampleSeconds:      viper.GetInt("admission.sample_seconds"),
			SnapshotWindowMins: viper.GetInt("admission.snapshot_window_mins"),
		},
	}

	return cfg, nil
}
