package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	ExitWatch ExitWatchConfig `mapstructure:"exitwatch"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	API       APIConfig       `mapstructure:"api"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// AccountConfig 描述单个券商账户的凭证。
type AccountConfig struct {
	ID         string `mapstructure:"id"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	APIPass    string `mapstructure:"api_password"`
	UseSandbox bool   `mapstructure:"use_sandbox"`
}

// BrokerConfig 描述券商连接信息与账户列表。
type BrokerConfig struct {
	Exchange    string          `mapstructure:"exchange"`
	Accounts    []AccountConfig `mapstructure:"accounts"`
	CallTimeout time.Duration   `mapstructure:"call_timeout"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReconcileConfig 控制下单对账行为。
type ReconcileConfig struct {
	TargetQuantity int     `mapstructure:"target_quantity"`
	RequotePrice   float64 `mapstructure:"requote_price"`
}

// ExitWatchConfig 控制离场监控行为。
type ExitWatchConfig struct {
	TickSize     float64       `mapstructure:"tick_size"`
	ProfitOffset float64       `mapstructure:"profit_offset"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// APIConfig 控制对外 HTTP 接口。
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Broker.Exchange == "" {
		err = multierr.Append(err, errors.New("broker.exchange 不能为空"))
	}
	if len(c.Broker.Accounts) == 0 {
		err = multierr.Append(err, errors.New("broker.accounts 至少需要配置一个账户"))
	}
	seen := make(map[string]struct{}, len(c.Broker.Accounts))
	for i, acct := range c.Broker.Accounts {
		if acct.ID == "" {
			err = multierr.Append(err, fmt.Errorf("broker.accounts[%d].id 不能为空", i))
			continue
		}
		if _, ok := seen[acct.ID]; ok {
			err = multierr.Append(err, fmt.Errorf("broker.accounts 账户 %q 重复", acct.ID))
		}
		seen[acct.ID] = struct{}{}
		if acct.APIKey == "" || acct.APISecret == "" {
			err = multierr.Append(err, fmt.Errorf("broker.accounts[%d] 缺少 api_key 或 api_secret", i))
		}
	}
	if c.Broker.CallTimeout <= 0 {
		err = multierr.Append(err, errors.New("broker.call_timeout 必须大于0"))
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}
	if c.Reconcile.TargetQuantity <= 0 {
		err = multierr.Append(err, errors.New("reconcile.target_quantity 必须大于0"))
	}
	if c.Reconcile.RequotePrice <= 0 {
		err = multierr.Append(err, errors.New("reconcile.requote_price 必须大于0"))
	}
	if c.ExitWatch.TickSize <= 0 {
		err = multierr.Append(err, errors.New("exitwatch.tick_size 必须大于0"))
	}
	if c.ExitWatch.ProfitOffset <= 0 {
		err = multierr.Append(err, errors.New("exitwatch.profit_offset 必须大于0"))
	}
	if c.ExitWatch.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("exitwatch.poll_interval 必须大于0"))
	}
	if c.ExitWatch.RetryDelay <= 0 {
		err = multierr.Append(err, errors.New("exitwatch.retry_delay 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		err = multierr.Append(err, errors.New("api.port 必须位于 (0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
