// Package config 提供 TOML 配置加载、环境变量覆盖与 schema 校验
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 风险引擎配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 模拟引擎配置
	Simulation SimulationConfig `mapstructure:"simulation"`
	// 抵押资产配置
	Universe []UniverseAssetConfig `mapstructure:"universe"`
	// 资产对相关系数配置
	Correlations []CorrelationConfig `mapstructure:"correlations"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host" default:"0.0.0.0"`
	// 监听端口
	Port int `mapstructure:"port" default:"8087"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" default:"30"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" default:"30"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：目前仅 mysql
	Driver string `mapstructure:"driver" default:"mysql"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns" default:"25"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns" default:"5"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime" default:"300"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled" default:"false"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold" default:"1000"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// 是否启用事件发布
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 模拟结果事件 topic
	SimulationTopic string `mapstructure:"simulation_topic" default:"creditrisk.simulation.completed"`
	// 保证金事件 topic
	MarginTopic string `mapstructure:"margin_topic" default:"creditrisk.margin.events"`
	// 发送重试次数
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff" default:"100"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json"`
	Output     string `mapstructure:"output" default:"stdout"`
	FilePath   string `mapstructure:"file_path" default:"logs/riskengine.log"`
	MaxSize    int    `mapstructure:"max_size" default:"100"`
	MaxBackups int    `mapstructure:"max_backups" default:"10"`
	MaxAge     int    `mapstructure:"max_age" default:"30"`
	Compress   bool   `mapstructure:"compress" default:"true"`
	WithCaller bool   `mapstructure:"with_caller" default:"false"`
}

// SimulationConfig 蒙特卡洛引擎配置
type SimulationConfig struct {
	// 默认模拟次数
	DefaultTrials int `mapstructure:"default_trials" default:"1000"`
	// 单次请求允许的最大模拟次数
	MaxTrials int `mapstructure:"max_trials" default:"100000"`
	// 并行 worker 数，0 表示 GOMAXPROCS
	Workers int `mapstructure:"workers" default:"0"`
	// 无风险利率（年化），用于风险调整收益
	RiskFreeRate float64 `mapstructure:"risk_free_rate" default:"0.04"`
}

// UniverseAssetConfig 单个抵押资产的策略配置
type UniverseAssetConfig struct {
	// 资产代码，如 BTC
	Symbol string `mapstructure:"symbol"`
	// 预警 LTV 阈值
	WarningLTV float64 `mapstructure:"warning_ltv"`
	// 追加保证金 LTV 阈值
	MarginCallLTV float64 `mapstructure:"margin_call_ltv"`
	// 强平 LTV 阈值
	LiquidationLTV float64 `mapstructure:"liquidation_ltv"`
	// 强平滑点比例
	LiquidationSlippage float64 `mapstructure:"liquidation_slippage"`
	// 年化波动率
	AnnualVolatility float64 `mapstructure:"annual_volatility"`
	// 波动率乘数
	VolatilityMultiplier float64 `mapstructure:"volatility_multiplier"`
}

// CorrelationConfig 一对资产的相关系数
type CorrelationConfig struct {
	AssetA string  `mapstructure:"asset_a"`
	AssetB string  `mapstructure:"asset_b"`
	Value  float64 `mapstructure:"value"`
}

// Load 从 TOML 文件加载配置，支持 CREDITRISK_ 前缀环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("CREDITRISK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		c.ServiceName = "riskengine"
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Simulation.DefaultTrials <= 0 {
		return fmt.Errorf("simulation default_trials must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	for _, a := range c.Universe {
		if a.Symbol == "" {
			return fmt.Errorf("universe asset symbol is required")
		}
		if !(a.WarningLTV < a.MarginCallLTV && a.MarginCallLTV < a.LiquidationLTV) {
			return fmt.Errorf("universe asset %s: LTV thresholds must be strictly increasing", a.Symbol)
		}
	}
	for _, p := range c.Correlations {
		if p.AssetA == "" || p.AssetB == "" || p.AssetA == p.AssetB {
			return fmt.Errorf("correlation pair must name two distinct assets")
		}
		if p.Value < -1 || p.Value > 1 {
			return fmt.Errorf("correlation %s/%s out of range: %v", p.AssetA, p.AssetB, p.Value)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "riskengine")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8087)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.simulation_topic", "creditrisk.simulation.completed")
	v.SetDefault("kafka.margin_topic", "creditrisk.margin.events")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/riskengine.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("simulation.default_trials", 1000)
	v.SetDefault("simulation.max_trials", 100000)
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.risk_free_rate", 0.04)
}
