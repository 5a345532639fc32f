// Package config 加载服务配置：YAML 文件 + .env / 环境变量覆盖。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`  // API 监听地址，默认 :8080
	MetricsAddr string `yaml:"metrics_addr"` // metrics/debug 监听地址，空则不启动
}

// StoreConfig 存储配置
type StoreConfig struct {
	LedgerDBPath string `yaml:"ledger_db_path"` // SQLite 账本库路径
	ReconDir     string `yaml:"recon_dir"`      // 对账队列（Badger）目录
}

// SettlementConfig 结算编排配置
type SettlementConfig struct {
	StepTimeout          time.Duration `yaml:"step_timeout"`           // 单步账本调用超时
	CompensateAttempts   int           `yaml:"compensate_attempts"`    // 补偿最大尝试次数
	CompensateBaseDelay  time.Duration `yaml:"compensate_base_delay"`  // 补偿退避起步
	CompensateMaxDelay   time.Duration `yaml:"compensate_max_delay"`   // 补偿退避上限
	DedupTTL             time.Duration `yaml:"dedup_ttl"`              // 重复提交去重窗口
	MaxConsecutiveErrors int64         `yaml:"max_consecutive_errors"` // 断路器连续错误阈值
	DailyStuckLimit      int64         `yaml:"daily_stuck_limit"`      // 断路器当日对账笔数阈值
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config 服务总配置
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Settlement SettlementConfig `yaml:"settlement"`
	Log        LogConfig        `yaml:"log"`
}

// Load 读取 YAML 配置并应用环境变量覆盖。path 为空时只用默认值 + 环境变量。
// .env 文件存在时先行加载（不覆盖已设置的环境变量）。
func Load(path string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Settlement.CompensateAttempts < 1 {
		return nil, fmt.Errorf("compensate_attempts must be >= 1, got %d", cfg.Settlement.CompensateAttempts)
	}
	if cfg.Settlement.StepTimeout <= 0 {
		return nil, fmt.Errorf("step_timeout must be positive, got %s", cfg.Settlement.StepTimeout)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  ":8080",
			MetricsAddr: "",
		},
		Store: StoreConfig{
			LedgerDBPath: "data/ledger.db",
			ReconDir:     "data/recon",
		},
		Settlement: SettlementConfig{
			StepTimeout:          5 * time.Second,
			CompensateAttempts:   3,
			CompensateBaseDelay:  200 * time.Millisecond,
			CompensateMaxDelay:   2 * time.Second,
			DedupTTL:             5 * time.Second,
			MaxConsecutiveErrors: 10,
			DailyStuckLimit:      20,
		},
		Log: LogConfig{
			Level:      "info",
			OutputFile: "logs/settle.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SETTLE_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("SETTLE_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("SETTLE_LEDGER_DB"); v != "" {
		cfg.Store.LedgerDBPath = v
	}
	if v := os.Getenv("SETTLE_RECON_DIR"); v != "" {
		cfg.Store.ReconDir = v
	}
	if v := os.Getenv("SETTLE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SETTLE_STEP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Settlement.StepTimeout = d
		}
	}
	if v := os.Getenv("SETTLE_COMPENSATE_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Settlement.CompensateAttempts = n
		}
	}
}
