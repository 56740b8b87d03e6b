package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Map       MapConfig       `mapstructure:"map"`
	Draw      DrawConfig      `mapstructure:"draw"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Import    ImportConfig    `mapstructure:"import"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	Data      DataConfig      `mapstructure:"data"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	OpenAPIPath  string `mapstructure:"openapi_path"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// MapConfig is the initial map view handed to the page.
type MapConfig struct {
	CenterLat          float64  `mapstructure:"center_lat"`
	CenterLon          float64  `mapstructure:"center_lon"`
	Zoom               int      `mapstructure:"zoom"`
	CenterOnFirstScene bool     `mapstructure:"center_on_first_scene"`
	TileURL            string   `mapstructure:"tile_url"`
	TileAttribution    string   `mapstructure:"tile_attribution"`
	TileSubdomains     []string `mapstructure:"tile_subdomains"`
	MaxZoom            int      `mapstructure:"max_zoom"`
}

// DrawConfig switches the draw toolbar tools on and off.
type DrawConfig struct {
	Polygon      bool `mapstructure:"polygon"`
	Rectangle    bool `mapstructure:"rectangle"`
	Circle       bool `mapstructure:"circle"`
	Polyline     bool `mapstructure:"polyline"`
	Marker       bool `mapstructure:"marker"`
	CircleMarker bool `mapstructure:"circlemarker"`
	Remove       bool `mapstructure:"remove"`
}

type WorkspaceConfig struct {
	MaxShapes    int           `mapstructure:"max_shapes"`
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`
	JanitorEvery time.Duration `mapstructure:"janitor_interval"`
}

type ImportConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// TilesConfig controls the optional tile proxy.
type TilesConfig struct {
	Proxy        bool          `mapstructure:"proxy"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
}

type DataConfig struct {
	Dir     string `mapstructure:"dir"`
	ScanDir string `mapstructure:"scan_dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: S1WEBAPP_DATABASE_HOST → database.host
	v.SetEnvPrefix("S1WEBAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.openapi_path", "api/openapi.yaml")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "s1")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "s1webapp")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "s1-scenes")

	v.SetDefault("map.center_lat", 50.926453)
	v.SetDefault("map.center_lon", 11.587832)
	v.SetDefault("map.zoom", 11)
	v.SetDefault("map.center_on_first_scene", false)
	v.SetDefault("map.tile_url", "http://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("map.tile_attribution", `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`)
	v.SetDefault("map.tile_subdomains", []string{"a", "b", "c"})
	v.SetDefault("map.max_zoom", 18)

	v.SetDefault("draw.polygon", true)
	v.SetDefault("draw.rectangle", true)
	v.SetDefault("draw.circle", true)
	v.SetDefault("draw.polyline", false)
	v.SetDefault("draw.marker", false)
	v.SetDefault("draw.circlemarker", false)
	v.SetDefault("draw.remove", true)

	v.SetDefault("workspace.max_shapes", 10000)
	v.SetDefault("workspace.idle_ttl", 30*time.Minute)
	v.SetDefault("workspace.janitor_interval", time.Minute)
	v.SetDefault("import.max_bytes", 32<<20)

	v.SetDefault("tiles.proxy", false)
	v.SetDefault("tiles.cache_ttl", 24*time.Hour)
	v.SetDefault("tiles.fetch_timeout", 10*time.Second)
	v.SetDefault("tiles.user_agent", "s1webapp-tile-proxy/1.0")

	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.scan_dir", "./data/input")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Map.CenterLat < -90 || c.Map.CenterLat > 90 {
		errs = append(errs, fmt.Sprintf("map.center_lat must be -90..90, got %g", c.Map.CenterLat))
	}
	if c.Map.CenterLon < -180 || c.Map.CenterLon > 180 {
		errs = append(errs, fmt.Sprintf("map.center_lon must be -180..180, got %g", c.Map.CenterLon))
	}
	if c.Map.MaxZoom <= 0 || c.Map.MaxZoom > 22 {
		errs = append(errs, fmt.Sprintf("map.max_zoom must be 1-22, got %d", c.Map.MaxZoom))
	}
	if c.Map.Zoom < 0 || c.Map.Zoom > c.Map.MaxZoom {
		errs = append(errs, fmt.Sprintf("map.zoom must be 0-%d, got %d", c.Map.MaxZoom, c.Map.Zoom))
	}
	if !strings.Contains(c.Map.TileURL, "{z}") || !strings.Contains(c.Map.TileURL, "{x}") || !strings.Contains(c.Map.TileURL, "{y}") {
		errs = append(errs, "map.tile_url must contain {z}, {x} and {y}")
	} else if u, err := url.Parse(strings.NewReplacer("{s}", "a", "{z}", "0", "{x}", "0", "{y}", "0").Replace(c.Map.TileURL)); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, "map.tile_url must be an http(s) URL template")
	}
	if strings.Contains(c.Map.TileURL, "{s}") && len(c.Map.TileSubdomains) == 0 {
		errs = append(errs, "map.tile_subdomains is required when tile_url uses {s}")
	}
	if c.Workspace.MaxShapes < 0 {
		errs = append(errs, "workspace.max_shapes must not be negative")
	}
	if c.Workspace.IdleTTL <= 0 {
		errs = append(errs, "workspace.idle_ttl must be positive")
	}
	if c.Workspace.JanitorEvery <= 0 {
		errs = append(errs, "workspace.janitor_interval must be positive")
	}
	if c.Import.MaxBytes <= 0 {
		errs = append(errs, "import.max_bytes must be positive")
	}
	if c.Tiles.Proxy && c.Tiles.CacheTTL < time.Second {
		errs = append(errs, "tiles.cache_ttl must be at least 1s")
	}
	if c.Data.Dir == "" {
		errs = append(errs, "data.dir is required")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
