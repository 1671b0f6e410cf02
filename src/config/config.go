package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// 设备族名称
const (
	FamilyShokz    = "shokz"
	FamilyGloryFit = "gloryfit"
)

type Config struct {
	Log       LogConfig               `mapstructure:"log"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Families  map[string]FamilyConfig `mapstructure:"families"`
	Devices   []DeviceConfig          `mapstructure:"devices"`
	DeathLine time.Duration           `mapstructure:"death_line"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	JSON       bool   `mapstructure:"json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// FamilyConfig 设备族运行参数，超时与重试按族配置
type FamilyConfig struct {
	CommandTimeout      time.Duration `mapstructure:"command_timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	Readiness           string        `mapstructure:"readiness"`
	InitFailure         string        `mapstructure:"init_failure"`
	InitFailureLimit    int           `mapstructure:"init_failure_limit"`
	MTU                 int           `mapstructure:"mtu"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	BatteryPollInterval time.Duration `mapstructure:"battery_poll_interval"`
	SupportsSpO2        bool          `mapstructure:"supports_spo2"`
	CannedReplySlots    int           `mapstructure:"canned_reply_slots"`
	AlarmSlots          int           `mapstructure:"alarm_slots"`
}

// DeviceConfig 一台需要连接的设备
type DeviceConfig struct {
	Address string         `mapstructure:"address"`
	Family  string         `mapstructure:"family"`
	Name    string         `mapstructure:"name"`
	Port    string         `mapstructure:"port"` // Shokz 使用的 rfcomm 串口
	Prefs   map[string]any `mapstructure:"prefs"`
	// FetchOnConnect 初始化完成后拉取一次历史数据
	FetchOnConnect bool `mapstructure:"fetch_on_connect"`
}

// Flags 注册命令行参数
func Flags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "配置文件路径 (yaml/toml/json)")
	fs.String("db-driver", "sqlite", "存储后端: sqlite | postgres")
	fs.String("db-path", "./data.db", "sqlite 数据库文件")
	fs.String("db-dsn", "", "postgres 连接串")
	fs.String("log-level", "info", "日志级别")
	fs.String("log-file", "", "日志文件，留空输出到 stderr")
	fs.Bool("log-json", false, "以 JSON 格式输出日志")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data.db")
	v.SetDefault("death_line", "60s")

	for _, fam := range []string{FamilyShokz, FamilyGloryFit} {
		p := "families." + fam + "."
		v.SetDefault(p+"command_timeout", "2s")
		v.SetDefault(p+"max_retries", 3)
		v.SetDefault(p+"init_failure", "proceed")
		v.SetDefault(p+"init_failure_limit", 3)
		v.SetDefault(p+"fetch_timeout", "60s")
		v.SetDefault(p+"canned_reply_slots", 8)
		v.SetDefault(p+"alarm_slots", 3)
	}
	v.SetDefault("families.shokz.readiness", "response")
	v.SetDefault("families.shokz.mtu", 2048)
	v.SetDefault("families.gloryfit.readiness", "optimistic")
	v.SetDefault("families.gloryfit.mtu", 247)
	v.SetDefault("families.gloryfit.battery_poll_interval", "15m")
	v.SetDefault("families.gloryfit.supports_spo2", true)
}

// Load 按 默认值 < 配置文件 < 环境变量 < 命令行 的优先级读取配置
// fs 为 nil 时只读取默认值与环境变量
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GOSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 兼容旧的 DB_PATH 环境变量
	if err := v.BindEnv("database.path", "GOSTER_DATABASE_PATH", "DB_PATH"); err != nil {
		return nil, err
	}

	if fs != nil {
		binds := map[string]string{
			"database.driver": "db-driver",
			"database.path":   "db-path",
			"database.dsn":    "db-dsn",
			"log.level":       "log-level",
			"log.file":        "log-file",
			"log.json":        "log-json",
		}
		for key, flag := range binds {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("config: database.path 不能为空")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("config: database.dsn 不能为空")
		}
	default:
		return fmt.Errorf("config: 未知的存储后端 %q", c.Database.Driver)
	}

	for name, f := range c.Families {
		switch f.Readiness {
		case "optimistic", "response":
		default:
			return fmt.Errorf("config: families.%s.readiness 取值无效: %q", name, f.Readiness)
		}
		switch f.InitFailure {
		case "proceed", "stall":
		default:
			return fmt.Errorf("config: families.%s.init_failure 取值无效: %q", name, f.InitFailure)
		}
		if f.MaxRetries < 0 {
			return fmt.Errorf("config: families.%s.max_retries 不能为负数", name)
		}
	}

	for i, d := range c.Devices {
		if d.Address == "" {
			return fmt.Errorf("config: devices[%d] 缺少 address", i)
		}
		if _, ok := c.Families[d.Family]; !ok {
			return fmt.Errorf("config: devices[%d] 的设备族 %q 未配置", i, d.Family)
		}
		if d.Family == FamilyShokz && d.Port == "" {
			return fmt.Errorf("config: devices[%d] 缺少 rfcomm 串口 port", i)
		}
	}
	return nil
}
