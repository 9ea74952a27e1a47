package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Database DatabaseConfig `mapstructure:"database"` // PostgreSQL配置
	USGS     USGSConfig     `mapstructure:"usgs"`     // USGS地震接口配置
	Auth     AuthConfig     `mapstructure:"auth"`     // Basic认证配置
	Log      LogConfig      `mapstructure:"log"`      // 日志配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// DatabaseConfig PostgreSQL数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN（URL形式）
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogLevel        string        `mapstructure:"log_level"`         // GORM日志级别：silent/error/warn/info
	AutoMigrate     bool          `mapstructure:"auto_migrate"`      // 启动时是否建表
}

// USGSConfig 上游地震接口配置
type USGSConfig struct {
	BaseURL   string `mapstructure:"base_url"`   // API基础地址
	Format    string `mapstructure:"format"`     // 返回格式，默认geojson
	Timeout   int    `mapstructure:"timeout"`    // 请求超时（秒）
	Proxy     string `mapstructure:"proxy"`      // 代理地址
	UserAgent string `mapstructure:"user_agent"` // User-Agent请求头
}

// AuthConfig Basic认证配置
type AuthConfig struct {
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	Realm       string   `mapstructure:"realm"`
	BypassPaths []string `mapstructure:"bypass_paths"` // 免认证路径
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug/info/warn/error
	Format string `mapstructure:"format"` // text/json
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
// 配置目录可通过 QUAKESYNC_CONFIG_DIR 指定
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	dir := os.Getenv("QUAKESYNC_CONFIG_DIR")
	if dir == "" {
		dir = "./config"
	}
	return LoadConfigFrom(dir)
}

// LoadConfigFrom 从指定目录读取 config.yaml
func LoadConfigFrom(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// 2. 读取 config.yaml
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 10*time.Minute)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("usgs.base_url", "https://earthquake.usgs.gov/fdsnws/event/1")
	v.SetDefault("usgs.format", "geojson")
	v.SetDefault("usgs.timeout", 30)
	v.SetDefault("usgs.user_agent", "Earthquake-API-Client/1.0")
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "admin")
	v.SetDefault("auth.realm", "EarthquakeAPI")
	v.SetDefault("auth.bypass_paths", []string{"/healthz", "/metrics", "/visualization/map-view"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("API_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("API_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := os.Getenv("API_REALM"); v != "" {
		cfg.Auth.Realm = v
	}
	if v := os.Getenv("USGS_PROXY"); v != "" {
		cfg.USGS.Proxy = v
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn 不能为空")
	}
	if c.Auth.Username == "" || c.Auth.Password == "" {
		return fmt.Errorf("auth.username/auth.password 不能为空")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port 非法: %d", c.Server.Port)
	}
	return nil
}
