// Package config 提供配置管理
//
// 加载顺序：内置缺省值 -> CONFIG_FILE 指向的 YAML 文件（可选）-> 环境变量。
// 后者覆盖前者，环境变量始终拥有最终发言权
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Solver   SolverConfig   `yaml:"solver"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Log      LogConfig      `yaml:"log"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
	Port int    `yaml:"port"`
}

// DatabaseConfig 任务登记库配置。driver 取 postgres、sqlite 或 memory；
// memory 不建立任何连接，登记库完全驻留进程内
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	Path            string        `yaml:"path"` // sqlite 数据文件
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 返回所选驱动的连接字符串
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// SolverConfig 求解器配置。提交请求缺省使用 Default 值；
// 超过 MaxTimeLimit 的请求被拒绝，超过 MaxWorkers 的并发度被收紧
type SolverConfig struct {
	DefaultTimeLimit time.Duration `yaml:"default_time_limit"`
	MaxTimeLimit     time.Duration `yaml:"max_time_limit"`
	DefaultWorkers   int           `yaml:"default_workers"`
	MaxWorkers       int           `yaml:"max_workers"`
	MaxLatticeCells  int           `yaml:"max_lattice_cells"`
}

// JobsConfig 任务池配置
type JobsConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
	PoolSize      int `yaml:"pool_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json/console
}

// Load 加载配置：缺省值、可选 YAML 文件、环境变量依次生效
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name: "schedulai",
			Env:  "development",
			Port: 7012,
		},
		Database: DatabaseConfig{
			Driver:          "memory",
			Host:            "localhost",
			Port:            5432,
			Name:            "schedulai",
			User:            "schedulai",
			Password:        "schedulai123",
			SSLMode:         "disable",
			Path:            "schedulai.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Solver: SolverConfig{
			DefaultTimeLimit: 10 * time.Second,
			MaxTimeLimit:     120 * time.Second,
			DefaultWorkers:   4,
			MaxWorkers:       16,
			MaxLatticeCells:  200000,
		},
		Jobs: JobsConfig{
			QueueCapacity: 64,
			PoolSize:      4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Port = getEnvInt("APP_PORT", cfg.App.Port)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)
	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)

	cfg.Solver.DefaultTimeLimit = getEnvDuration("SOLVER_DEFAULT_TIME_LIMIT", cfg.Solver.DefaultTimeLimit)
	cfg.Solver.MaxTimeLimit = getEnvDuration("SOLVER_MAX_TIME_LIMIT", cfg.Solver.MaxTimeLimit)
	cfg.Solver.DefaultWorkers = getEnvInt("SOLVER_DEFAULT_WORKERS", cfg.Solver.DefaultWorkers)
	cfg.Solver.MaxWorkers = getEnvInt("SOLVER_MAX_WORKERS", cfg.Solver.MaxWorkers)
	cfg.Solver.MaxLatticeCells = getEnvInt("SOLVER_MAX_LATTICE_CELLS", cfg.Solver.MaxLatticeCells)

	cfg.Jobs.QueueCapacity = getEnvInt("JOBS_QUEUE_CAPACITY", cfg.Jobs.QueueCapacity)
	cfg.Jobs.PoolSize = getEnvInt("JOBS_POOL_SIZE", cfg.Jobs.PoolSize)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsTest 检查是否为测试环境
func (c *Config) IsTest() bool {
	return c.App.Env == "test"
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
