package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vlbeam/occlusion/pkg/core"
)

// FileName is the config file looked up in the config directory
const FileName = "beamsim.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// StorageConfig selects and configures the diagnostics backend
type StorageConfig struct {
	Type          string        `json:"type" mapstructure:"type"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	MaxPending    int           `json:"maxPending" mapstructure:"maxPending"`
	Memory        MemoryConfig  `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// SchedulerConfig holds the tick loop settings. Mode and Preview are validated by
// the scheduler package.
type SchedulerConfig struct {
	Mode        string
	Preview     string
	Parallelism int
}

// SceneConfig points at the scene description and the number of ticks to run
type SceneConfig struct {
	File  string
	Ticks int
}

// MonitorConfig controls the status file written during a run
type MonitorConfig struct {
	Interval time.Duration
}

// SetDefaults registers every default value
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./beamlogs")

	viper.SetDefault("scene.file", "./scene.yaml")
	viper.SetDefault("scene.ticks", 120)

	def := core.DefaultOcclusionConfig()
	viper.SetDefault("occlusion.queryMask", uint32(def.QueryMask))
	viper.SetDefault("occlusion.minOccluderArea", def.MinOccluderArea)
	viper.SetDefault("occlusion.updateInterval", def.UpdateInterval)
	viper.SetDefault("occlusion.minSurfaceRatio", def.MinSurfaceRatio)
	viper.SetDefault("occlusion.maxSurfaceDeviation", def.MaxSurfaceDeviation)
	viper.SetDefault("occlusion.planeAlignment", def.PlaneAlignment.String())
	viper.SetDefault("occlusion.planeOffset", def.PlaneOffset)

	viper.SetDefault("scheduler.mode", "active")
	viper.SetDefault("scheduler.preview", "everyTick")
	viper.SetDefault("scheduler.parallelism", 1)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.flushInterval", "2s")
	viper.SetDefault("storage.maxPending", 100000)
	viper.SetDefault("storage.memory.outputDir", "./diagnostics")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "1m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "beams")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "vlbeam")
	viper.SetDefault("influx.bucket", "occlusion")

	viper.SetDefault("monitor.interval", "1s")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "beamsim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// IsNotFound reports whether Load failed only because no config file exists
func IsNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

// FlagKeys maps command line flags to the config keys they override
var FlagKeys = map[string]string{
	"log-level":   "logLevel",
	"logs-dir":    "logsDir",
	"scene":       "scene.file",
	"ticks":       "scene.ticks",
	"mode":        "scheduler.mode",
	"preview":     "scheduler.preview",
	"parallelism": "scheduler.parallelism",
	"storage":     "storage.type",
}

// RegisterFlags declares every flag of FlagKeys on the set
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("logs-dir", "./beamlogs", "directory for log files")
	flags.String("scene", "./scene.yaml", "scene description file")
	flags.Int("ticks", 120, "number of ticks to simulate")
	flags.String("mode", "active", "scheduler mode (active, preview)")
	flags.String("preview", "everyTick", "preview policy (everyTick, forceOff)")
	flags.Int("parallelism", 1, "instances evaluated concurrently per tick")
	flags.String("storage", "memory", "diagnostics backend (memory, sqlite, postgres, influx, none)")
}

// BindFlags lets explicitly set flags override the config file
func BindFlags(flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetOcclusionConfig returns the base occlusion tunables, always sanitized.
// An unknown plane alignment is reported and the surface alignment is used.
func GetOcclusionConfig() (core.OcclusionConfig, error) {
	cfg := core.OcclusionConfig{
		QueryMask:           core.LayerMask(viper.GetUint32("occlusion.queryMask")),
		MinOccluderArea:     viper.GetFloat64("occlusion.minOccluderArea"),
		UpdateInterval:      viper.GetInt("occlusion.updateInterval"),
		MinSurfaceRatio:     viper.GetFloat64("occlusion.minSurfaceRatio"),
		MaxSurfaceDeviation: viper.GetFloat64("occlusion.maxSurfaceDeviation"),
		PlaneOffset:         viper.GetFloat64("occlusion.planeOffset"),
	}
	alignment, err := core.ParsePlaneAlignment(viper.GetString("occlusion.planeAlignment"))
	cfg.PlaneAlignment = alignment
	return cfg.Sanitize(), err
}

func GetSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Mode:        viper.GetString("scheduler.mode"),
		Preview:     viper.GetString("scheduler.preview"),
		Parallelism: viper.GetInt("scheduler.parallelism"),
	}
}

func GetSceneConfig() SceneConfig {
	return SceneConfig{
		File:  viper.GetString("scene.file"),
		Ticks: viper.GetInt("scene.ticks"),
	}
}

func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		MaxPending:    viper.GetInt("storage.maxPending"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetMonitorConfig returns the status monitor settings; a zero interval disables it.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval: viper.GetDuration("monitor.interval"),
	}
}
