package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/Spok95/placesdir/internal/domain/appconfig"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		// RateLimit — запросов в минуту с одного IP на публичные маршруты
		RateLimit int `mapstructure:"rate_limit"`
	} `mapstructure:"http"`

	Storage struct {
		Driver string // postgres | memory
	} `mapstructure:"storage"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Redis struct {
		Addr     string
		Password string
		DB       int
	} `mapstructure:"redis"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Stripe struct {
		SecretKey     string `mapstructure:"secret_key"`
		WebhookSecret string `mapstructure:"webhook_secret"`
		Currency      string
	} `mapstructure:"stripe"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`

	Scheduler struct {
		Interval  time.Duration
		LockTTL   time.Duration `mapstructure:"lock_ttl"`
		BatchSize int           `mapstructure:"batch_size"`
	} `mapstructure:"scheduler"`

	// значения AppConfig, пока политика не сохранена в БД
	Places  appconfig.Places  `mapstructure:"places"`
	Reviews appconfig.Reviews `mapstructure:"reviews"`
}

// Policy — политика по умолчанию из файла.
func (c Config) Policy() appconfig.AppConfig {
	return appconfig.AppConfig{Places: c.Places, Reviews: c.Reviews}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.rate_limit", 120)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("scheduler.lock_ttl", 10*time.Minute)
	v.SetDefault("scheduler.batch_size", 500)
	v.SetDefault("places.search_radius", 5000)
}

// Load читает YAML из path. Перед этим подгружается .env (если есть),
// переменные окружения APP_* перекрывают файл: APP_POSTGRES_DSN и т.п.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for storage.driver=postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	if c.Places.SearchRadius < 0 {
		errs = append(errs, errors.New("places.search_radius must not be negative"))
	}
	if c.Telegram.Token != "" && c.Telegram.AdminChatID == 0 {
		errs = append(errs, errors.New("telegram.admin_chat_id is required with telegram.token"))
	}
	return errors.Join(errs...)
}
