package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
		MaxUploadMB  int64         `mapstructure:"MAX_UPLOAD_MB"`
	} `mapstructure:"HTTP_SERVER"`
	Session struct {
		Issuer string `mapstructure:"ISSUER"`
		Secret string `mapstructure:"SECRET"`
	} `mapstructure:"SESSION"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		// SlowQueryThreshold marks queries logged as gorm.slow_query.
		SlowQueryThreshold time.Duration `mapstructure:"SLOW_QUERY_THRESHOLD"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Storage struct {
		Driver            string        `mapstructure:"DRIVER"`
		Endpoint          string        `mapstructure:"ENDPOINT"`
		Region            string        `mapstructure:"REGION"`
		AccessKey         string        `mapstructure:"ACCESS_KEY"`
		SecretKey         string        `mapstructure:"SECRET_KEY"`
		Secure            bool          `mapstructure:"SECURE"`
		Bucket            string        `mapstructure:"BUCKET"`
		PublicURL         string        `mapstructure:"PUBLIC_URL"`
		UploadConcurrency int           `mapstructure:"UPLOAD_CONCURRENCY"`
		CleanupDelay      time.Duration `mapstructure:"CLEANUP_DELAY"`
	} `mapstructure:"STORAGE"`
	Economy struct {
		DefaultLiteValidityDays int   `mapstructure:"DEFAULT_LITE_VALIDITY_DAYS"`
		DefaultPricePremium     int64 `mapstructure:"DEFAULT_PRICE_PREMIUM"`
		DefaultPriceLite        int64 `mapstructure:"DEFAULT_PRICE_LITE"`
	} `mapstructure:"ECONOMY"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Bootstrap struct {
		OwnerID    string `mapstructure:"OWNER_ID"`
		OwnerName  string `mapstructure:"OWNER_NAME"`
		OwnerEmail string `mapstructure:"OWNER_EMAIL"`
	} `mapstructure:"BOOTSTRAP"`
	Snowflake struct {
		NodeID int64 `mapstructure:"NODE_ID"`
	} `mapstructure:"SNOWFLAKE"`
	Vault struct {
		Addr  string `mapstructure:"ADDR"`
		Token string `mapstructure:"TOKEN"`
		Path  string `mapstructure:"PATH"`
	} `mapstructure:"VAULT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "gato-backoffice")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 120*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("HTTP_SERVER.MAX_UPLOAD_MB", 512)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("SESSION.ISSUER", "gato-backoffice")
	v.SetDefault("STORAGE.DRIVER", "minio")
	v.SetDefault("STORAGE.REGION", "auto")
	v.SetDefault("STORAGE.UPLOAD_CONCURRENCY", 4)
	v.SetDefault("STORAGE.CLEANUP_DELAY", 10*time.Minute)
	v.SetDefault("ECONOMY.DEFAULT_LITE_VALIDITY_DAYS", 30)
	v.SetDefault("ECONOMY.DEFAULT_PRICE_PREMIUM", 3)
	v.SetDefault("ECONOMY.DEFAULT_PRICE_LITE", 10)
	v.SetDefault("SNOWFLAKE.NODE_ID", 1)
}

// Load reads config.yaml from dir (when present) and the environment.
func Load(dir string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func LoadConfig(p Params) *Config {
	cfg, err := Load(".")
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := overlaySecrets(context.Background(), p.Vault, cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return cfg
}

func overlaySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	path := cfg.Vault.Path
	if path == "" {
		path = cfg.AppEnv
	}

	zap.L().Info("Starting Get Secrets", zap.String("path", path))
	secret, err := client.Secrets.KvV2Read(ctx, path, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("db_user", cfg.Database.User)
	cfg.Database.Password = get("db_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Storage.AccessKey = get("storage_access_key", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = get("storage_secret_key", cfg.Storage.SecretKey)
	cfg.Session.Secret = get("jwt_secret", cfg.Session.Secret)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)

	return nil
}
