// Package config provides configuration loading and validation for the
// ingestion and query-serving processes. It uses koanf to merge environment
// variables with an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every recognized knob for both the ingest and server binaries.
type Config struct {
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	WarmupDatabaseURL string `koanf:"warmup_database_url"`

	JWTSecretCurrent  string `koanf:"jwt_secret_current"`
	JWTSecretPrevious string `koanf:"jwt_secret_previous"`

	EventBusURL string `koanf:"event_bus_url"`

	DirectoryRPCAddr string `koanf:"directory_rpc_addr"`

	// Retention and query bounds, named to match the behavior they bound.
	RetentionSeconds          int64 `koanf:"retention_seconds"`
	PostRetentionSeconds      int64 `koanf:"post_retention_seconds"`
	RequestTimeoutMS          int64 `koanf:"request_timeout_ms"`
	KafkaNumThreads           int   `koanf:"kafka_num_threads"`
	TweetEventsNumPartitions  int   `koanf:"tweet_events_num_partitions"`
	KafkaBatchSize            int   `koanf:"kafka_batch_size"`
	LagMonitorIntervalSecs    int   `koanf:"lag_monitor_interval_secs"`
	MaxConcurrentRequests     int64 `koanf:"max_concurrent_requests"`
	MaxInputListSize          int   `koanf:"max_input_list_size"`
	MaxPostsToReturn          int   `koanf:"max_posts_to_return"`
	MaxVideosToReturn         int   `koanf:"max_videos_to_return"`
	MaxOriginalPostsPerAuthor int   `koanf:"max_original_posts_per_author"`
	MaxReplyPostsPerAuthor    int   `koanf:"max_reply_posts_per_author"`
	MaxVideoPostsPerAuthor    int   `koanf:"max_video_posts_per_author"`
	MaxTinyPostsPerUserScan   int   `koanf:"max_tiny_posts_per_user_scan"`
	MinVideoDurationMS        int64 `koanf:"min_video_duration_ms"`
	DeleteEventKey            int64 `koanf:"delete_event_key"`
	IsServing                 bool  `koanf:"is_serving"`

	RetentionTrimInterval time.Duration `koanf:"-"`
	StatsLogInterval      time.Duration `koanf:"-"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret     = errors.New("JWT_SECRET_CURRENT is required")
	ErrMissingEventBusURL   = errors.New("EVENT_BUS_URL is required")
	ErrInvalidPort          = errors.New("PORT must be a valid integer")
	ErrInvalidNumThreads    = errors.New("KAFKA_NUM_THREADS must be >= 1")
	ErrInvalidNumPartitions = errors.New("TWEET_EVENTS_NUM_PARTITIONS must be >= 1")
)

// Default values, mirroring spec.md §6.
const (
	DefaultPort                      = 8080
	DefaultEnv                       = "development"
	DefaultRetentionSeconds          = 172800 // 2 days
	DefaultPostRetentionSeconds      = 172800
	DefaultRequestTimeoutMS          = 200
	DefaultKafkaNumThreads           = 4
	DefaultTweetEventsNumPartitions  = 16
	DefaultKafkaBatchSize            = 500
	DefaultLagMonitorIntervalSecs    = 30
	DefaultMaxConcurrentRequests     = 512
	DefaultMaxInputListSize          = 20000
	DefaultMaxPostsToReturn          = 200
	DefaultMaxVideosToReturn         = 100
	DefaultMaxOriginalPostsPerAuthor = 20
	DefaultMaxReplyPostsPerAuthor    = 10
	DefaultMaxVideoPostsPerAuthor    = 10
	DefaultMaxTinyPostsPerUserScan   = 500
	DefaultMinVideoDurationMS        = 1000
	DefaultDeleteEventKey            = -1
	DefaultIsServing                 = true
	DefaultRetentionTrimInterval     = 5 * time.Minute
	DefaultStatsLogInterval          = 5 * time.Second
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over file values. Returns the
// loaded config and a slice of validation errors (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	numThreads, threadsErr := getEnvIntOrDefault("KAFKA_NUM_THREADS", k.Int("kafka_num_threads"), DefaultKafkaNumThreads)
	if threadsErr != nil {
		loadErrs = append(loadErrs, threadsErr)
	}

	numPartitions, partitionsErr := getEnvIntOrDefault("TWEET_EVENTS_NUM_PARTITIONS", k.Int("tweet_events_num_partitions"), DefaultTweetEventsNumPartitions)
	if partitionsErr != nil {
		loadErrs = append(loadErrs, partitionsErr)
	}

	cfg := &Config{
		Port:                      port,
		Env:                       getEnvOrDefault("ENV", k.String("env"), DefaultEnv),
		WarmupDatabaseURL:         getEnvOrKoanf("WARMUP_DATABASE_URL", k, "warmup_database_url"),
		JWTSecretCurrent:          getEnvOrKoanf("JWT_SECRET_CURRENT", k, "jwt_secret_current"),
		JWTSecretPrevious:         getEnvOrKoanf("JWT_SECRET_PREVIOUS", k, "jwt_secret_previous"),
		EventBusURL:               getEnvOrKoanf("EVENT_BUS_URL", k, "event_bus_url"),
		DirectoryRPCAddr:          getEnvOrKoanf("DIRECTORY_RPC_ADDR", k, "directory_rpc_addr"),
		RetentionSeconds:          getEnvInt64OrDefault("RETENTION_SECONDS", int64(k.Int("retention_seconds")), DefaultRetentionSeconds),
		PostRetentionSeconds:      getEnvInt64OrDefault("POST_RETENTION_SECONDS", int64(k.Int("post_retention_seconds")), DefaultPostRetentionSeconds),
		RequestTimeoutMS:          getEnvInt64OrDefault("REQUEST_TIMEOUT_MS", int64(k.Int("request_timeout_ms")), DefaultRequestTimeoutMS),
		KafkaNumThreads:           numThreads,
		TweetEventsNumPartitions:  numPartitions,
		KafkaBatchSize:            getIntOrDefault(k.Int("kafka_batch_size"), DefaultKafkaBatchSize),
		LagMonitorIntervalSecs:    getIntOrDefault(k.Int("lag_monitor_interval_secs"), DefaultLagMonitorIntervalSecs),
		MaxConcurrentRequests:     getEnvInt64OrDefault("MAX_CONCURRENT_REQUESTS", int64(k.Int("max_concurrent_requests")), DefaultMaxConcurrentRequests),
		MaxInputListSize:          getIntOrDefault(k.Int("max_input_list_size"), DefaultMaxInputListSize),
		MaxPostsToReturn:          getIntOrDefault(k.Int("max_posts_to_return"), DefaultMaxPostsToReturn),
		MaxVideosToReturn:         getIntOrDefault(k.Int("max_videos_to_return"), DefaultMaxVideosToReturn),
		MaxOriginalPostsPerAuthor: getIntOrDefault(k.Int("max_original_posts_per_author"), DefaultMaxOriginalPostsPerAuthor),
		MaxReplyPostsPerAuthor:    getIntOrDefault(k.Int("max_reply_posts_per_author"), DefaultMaxReplyPostsPerAuthor),
		MaxVideoPostsPerAuthor:    getIntOrDefault(k.Int("max_video_posts_per_author"), DefaultMaxVideoPostsPerAuthor),
		MaxTinyPostsPerUserScan:   getIntOrDefault(k.Int("max_tiny_posts_per_user_scan"), DefaultMaxTinyPostsPerUserScan),
		MinVideoDurationMS:        getEnvInt64OrDefault("MIN_VIDEO_DURATION_MS", int64(k.Int("min_video_duration_ms")), DefaultMinVideoDurationMS),
		DeleteEventKey:            getEnvInt64OrDefault("DELETE_EVENT_KEY", int64(k.Int("delete_event_key")), DefaultDeleteEventKey),
		IsServing:                 getBoolOrDefault("IS_SERVING", k, "is_serving", DefaultIsServing),
		RetentionTrimInterval:     DefaultRetentionTrimInterval,
		StatsLogInterval:          DefaultStatsLogInterval,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)
	return cfg, errs
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() []error {
	var errs []error
	if c.JWTSecretCurrent == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.EventBusURL == "" {
		errs = append(errs, ErrMissingEventBusURL)
	}
	if c.KafkaNumThreads < 1 {
		errs = append(errs, ErrInvalidNumThreads)
	}
	if c.TweetEventsNumPartitions < 1 {
		errs = append(errs, ErrInvalidNumPartitions)
	}
	return errs
}

func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

func getIntOrDefault(koanfVal int, defaultVal int) int {
	if koanfVal != 0 {
		return koanfVal
	}
	return defaultVal
}

func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

func getEnvInt64OrDefault(envKey string, koanfVal int64, defaultVal int64) int64 {
	if val := os.Getenv(envKey); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	if koanfVal != 0 {
		return koanfVal
	}
	return defaultVal
}

func getBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	if val := os.Getenv(envKey); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	if k.Exists(koanfKey) {
		return k.Bool(koanfKey)
	}
	return defaultVal
}
