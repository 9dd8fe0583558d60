// Package config loads the service configuration.
//
// Priority (highest to lowest):
//  1. Environment variables with the LEAVE_ prefix (LEAVE_STORAGE_DRIVER)
//  2. A .env file in the working directory, loaded into the environment
//  3. config.toml (working directory or ./config, or the -config path)
//  4. Defaults set below
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/leave-engine/leave"
)

const EnvPrefix = "LEAVE"

type Config struct {
	App         AppConfig
	Log         LogConfig
	Storage     StorageConfig
	Redis       RedisConfig
	Attachments AttachmentConfig
	Scheduler   SchedulerConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port int
}

type LogConfig struct {
	Level      string
	Format     string // json | console
	Output     string // stdout | stderr | file path
	TimeFormat string
}

type StorageConfig struct {
	Driver        string // sqlite | mongo | memory
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string
}

type AttachmentConfig struct {
	Driver       string // local | s3
	LocalDir     string
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	MaxBytes     int64
	AllowedTypes []string
}

type SchedulerConfig struct {
	Enabled       bool
	Interval      time.Duration
	ResetCriteria string
	RemindAfter   time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "leave-engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.time_format", time.RFC3339)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "leave.db")
	v.SetDefault("storage.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongo_database", "leave")
	v.SetDefault("storage.mongo_timeout", 10*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "leave.events")

	v.SetDefault("attachments.driver", "local")
	v.SetDefault("attachments.local_dir", "attachments")
	v.SetDefault("attachments.region", "us-east-1")
	v.SetDefault("attachments.max_bytes", leave.DefaultMaxAttachmentBytes)
	v.SetDefault("attachments.allowed_types", leave.DefaultAttachmentTypes)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 24*time.Hour)
	v.SetDefault("scheduler.reset_criteria", string(leave.ResetHireDate))
	v.SetDefault("scheduler.remind_after", 72*time.Hour)
}

// Load reads the configuration. path is an explicit config file; empty
// searches for config.toml and tolerates its absence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetInt("app.port"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			TimeFormat: v.GetString("log.time_format"),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(v.GetString("storage.driver")),
			SQLitePath:    v.GetString("storage.sqlite_path"),
			MongoURI:      v.GetString("storage.mongo_uri"),
			MongoDatabase: v.GetString("storage.mongo_database"),
			MongoTimeout:  v.GetDuration("storage.mongo_timeout"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
		Attachments: AttachmentConfig{
			Driver:       strings.ToLower(v.GetString("attachments.driver")),
			LocalDir:     v.GetString("attachments.local_dir"),
			Bucket:       v.GetString("attachments.bucket"),
			Region:       v.GetString("attachments.region"),
			Endpoint:     v.GetString("attachments.endpoint"),
			AccessKey:    v.GetString("attachments.access_key"),
			SecretKey:    v.GetString("attachments.secret_key"),
			UsePathStyle: v.GetBool("attachments.use_path_style"),
			MaxBytes:     v.GetInt64("attachments.max_bytes"),
			AllowedTypes: v.GetStringSlice("attachments.allowed_types"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			Interval:      v.GetDuration("scheduler.interval"),
			ResetCriteria: v.GetString("scheduler.reset_criteria"),
			RemindAfter:   v.GetDuration("scheduler.remind_after"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app.port %d out of range", c.App.Port))
	}
	if !slices.Contains([]string{"sqlite", "mongo", "memory"}, c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("storage.driver %q must be sqlite, mongo or memory", c.Storage.Driver))
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		errs = append(errs, errors.New("storage.sqlite_path is required"))
	}
	if c.Storage.Driver == "mongo" && (c.Storage.MongoURI == "" || c.Storage.MongoDatabase == "") {
		errs = append(errs, errors.New("storage.mongo_uri and storage.mongo_database are required"))
	}
	switch c.Attachments.Driver {
	case "local":
	case "s3":
		if c.Attachments.Bucket == "" {
			errs = append(errs, errors.New("attachments.bucket is required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("attachments.driver %q must be local or s3", c.Attachments.Driver))
	}
	if c.Attachments.MaxBytes < 0 {
		errs = append(errs, errors.New("attachments.max_bytes must not be negative"))
	}
	if _, err := leave.ParseResetCriterion(c.Scheduler.ResetCriteria); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.reset_criteria: %w", err))
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}
