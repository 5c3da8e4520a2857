// config.go

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 服务器配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
}

// ServerConfig 服务器基本配置
type ServerConfig struct {
	GamePort  int    `mapstructure:"game_port"`
	LobbyPort int    `mapstructure:"lobby_port"`
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	MaxRooms  int    `mapstructure:"max_rooms"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 连接认证配置
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// GameConfig 对局与房间的时间参数
type GameConfig struct {
	ReconnectGrace time.Duration `mapstructure:"reconnect_grace"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	ReviewWindow   time.Duration `mapstructure:"review_window"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	ReapInterval   time.Duration `mapstructure:"reap_interval"`
	ChatPerMinute  int           `mapstructure:"chat_per_minute"`
	ScenarioFile   string        `mapstructure:"scenario_file"`
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig Config
)

// SetDefaults 注册所有配置项的默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.game_port", 8081)
	v.SetDefault("server.lobby_port", 8082)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.max_rooms", 500)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "cyberchess")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("auth.issuer", "cyberchess")

	v.SetDefault("game.reconnect_grace", 5*time.Minute)
	v.SetDefault("game.idle_timeout", 2*time.Hour)
	v.SetDefault("game.review_window", time.Minute)
	v.SetDefault("game.tick_interval", time.Second)
	v.SetDefault("game.reap_interval", time.Minute)
	v.SetDefault("game.chat_per_minute", 30)
}

// LoadConfig 从文件加载配置，文件不存在时只使用默认值和环境变量
func LoadConfig(configPath string) error {
	// .env 文件可选
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("CYBERCHESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	if err := v.Unmarshal(&GlobalConfig); err != nil {
		return fmt.Errorf("无法解析配置文件: %w", err)
	}

	return nil
}

// GetDSN 获取PostgreSQL连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetRedisAddr 获取Redis连接地址
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
