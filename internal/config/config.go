package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Storage      StorageConfig      `yaml:"storage"`
	ZEP          ZEPConfig          `yaml:"zep"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	RetryQueue  string        `yaml:"retry_queue"`
	DLQSuffix   string        `yaml:"dlq_suffix"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ZEPConfig drives the external space API client. A missing API key is
// tolerated at construction; calls will fail at request time.
type ZEPConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	SpaceTemplateID string        `yaml:"space_template_id"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

type ProvisioningConfig struct {
	EmailDomain        string `yaml:"email_domain"`
	PasswordLength     int    `yaml:"password_length"`
	MaxAutoSpaceBatch  int    `yaml:"max_auto_space_batch"`
	MaxUploadSizeBytes int64  `yaml:"max_upload_size_bytes"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.ZEP.BaseURL == "" {
		c.ZEP.BaseURL = "https://api.zep.us/v1"
	}
	if c.ZEP.Timeout == 0 {
		c.ZEP.Timeout = 30 * time.Second
	}
	if c.ZEP.MaxRetries == 0 {
		c.ZEP.MaxRetries = 3
	}
	if c.ZEP.RetryDelay == 0 {
		c.ZEP.RetryDelay = 2 * time.Second
	}
	if c.Provisioning.EmailDomain == "" {
		c.Provisioning.EmailDomain = "neulbom.internal"
	}
	if c.Provisioning.PasswordLength == 0 {
		c.Provisioning.PasswordLength = 12
	}
	if c.Provisioning.MaxAutoSpaceBatch == 0 {
		c.Provisioning.MaxAutoSpaceBatch = 30
	}
	if c.Provisioning.MaxUploadSizeBytes == 0 {
		c.Provisioning.MaxUploadSizeBytes = 5 * 1024 * 1024
	}
	if c.Redis.SessionTTL == 0 {
		c.Redis.SessionTTL = 30 * time.Minute
	}
	if c.Redis.RetryQueue == "" {
		c.Redis.RetryQueue = "neulbom:space-retry"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
