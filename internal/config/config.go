package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/seednote/seed-worker/internal/failure"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

const (
	StoreDriverRest   = "rest"
	StoreDriverPgsql  = "pgsql"
	StoreDriverSqlite = "sqlite"

	// DotEnvFile is loaded, when present, before the environment is processed.
	DotEnvFile = ".env"
)

type Config struct {
	Store     *storeConfig
	Database  *dbConfig
	Expansion *expansionConfig
	Worker    *workerConfig
	Service   *svcConfig
}

type storeConfig struct {
	Driver  string        `envconfig:"SEED_WORKER_STORE_DRIVER" default:"rest" validate:"oneof=rest pgsql sqlite"`
	URL     string        `envconfig:"SUPABASE_URL" validate:"required_if=Driver rest,omitempty,url"`
	APIKey  string        `envconfig:"SUPABASE_SERVICE_KEY" validate:"required_if=Driver rest"`
	Table   string        `envconfig:"SEED_WORKER_TABLE" default:"seeds" validate:"required"`
	Timeout time.Duration `envconfig:"SEED_WORKER_STORE_TIMEOUT" default:"30s" validate:"gte=0"`
}

type dbConfig struct {
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"postgres"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASS" default:""`
}

type expansionConfig struct {
	URL          string        `envconfig:"OLLAMA_URL" validate:"required,url"`
	Model        string        `envconfig:"MODEL" validate:"required"`
	Temperature  *float64      `envconfig:"EXPANSION_TEMPERATURE" validate:"omitempty,gte=0,lte=2"`
	Template     string        `envconfig:"SEED_WORKER_TEMPLATE" default:"moscow" validate:"required"`
	TemplateFile string        `envconfig:"SEED_WORKER_TEMPLATE_FILE" validate:"omitempty,file"`
	Timeout      time.Duration `envconfig:"SEED_WORKER_EXPANSION_TIMEOUT" default:"5m" validate:"gte=0"`
}

type workerConfig struct {
	IdleInterval  time.Duration `envconfig:"SEED_WORKER_IDLE_INTERVAL" default:"1h" validate:"gt=0"`
	ErrorCooldown time.Duration `envconfig:"SEED_WORKER_ERROR_COOLDOWN" default:"30s" validate:"gt=0"`
}

type svcConfig struct {
	MetricsAddress string `envconfig:"SEED_WORKER_METRICS_ADDRESS" default:":9090"`
	LogLevel       string `envconfig:"SEED_WORKER_LOG_LEVEL" default:"info"`
}

// New reads the configuration from the environment, after loading the
// optional .env file. Any missing or malformed value is reported as an
// *failure.ErrConfig.
func New() (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, failure.NewErrConfig(err)
	}

	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, failure.NewErrConfig(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewDefault returns the configuration used when no variable is set. The
// required values are left empty.
func NewDefault() *Config {
	return &Config{
		Store: &storeConfig{
			Driver:  StoreDriverRest,
			Table:   "seeds",
			Timeout: 30 * time.Second,
		},
		Database: &dbConfig{
			Hostname: "localhost",
			Port:     "5432",
			Name:     "postgres",
			User:     "postgres",
		},
		Expansion: &expansionConfig{
			Template: "moscow",
			Timeout:  5 * time.Minute,
		},
		Worker: &workerConfig{
			IdleInterval:  time.Hour,
			ErrorCooldown: 30 * time.Second,
		},
		Service: &svcConfig{
			MetricsAddress: ":9090",
			LogLevel:       "info",
		},
	}
}

// Validate checks the required fields and their formats.
func (c *Config) Validate() error {
	validate := newValidator()

	validationErrors := make([]error, 0)
	for _, section := range []any{c.Store, c.Expansion, c.Worker} {
		if err := validate.Struct(section); err != nil {
			var fieldErrors validator.ValidationErrors
			if !errors.As(err, &fieldErrors) {
				validationErrors = append(validationErrors, err)
				continue
			}
			for _, fe := range fieldErrors {
				validationErrors = append(validationErrors, fieldError(fe))
			}
		}
	}

	if len(validationErrors) > 0 {
		return failure.NewErrConfig(utilerrors.NewAggregate(validationErrors))
	}
	return nil
}

func (c *Config) UsesRestStore() bool {
	return c.Store.Driver == StoreDriverRest
}

// String renders the configuration for the startup log line, without secrets.
func (c *Config) String() string {
	temperature := "default"
	if c.Expansion.Temperature != nil {
		temperature = fmt.Sprintf("%.2f", *c.Expansion.Temperature)
	}
	return fmt.Sprintf("store=%s table=%s backend=%s model=%s template=%s temperature=%s idle=%s cooldown=%s metrics=%q",
		c.Store.Driver, c.Store.Table, c.Expansion.URL, c.Expansion.Model, c.templateName(), temperature,
		c.Worker.IdleInterval, c.Worker.ErrorCooldown, c.Service.MetricsAddress)
}

func (c *Config) templateName() string {
	if c.Expansion.TemplateFile != "" {
		return c.Expansion.TemplateFile
	}
	return c.Expansion.Template
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// report fields by the environment variable that sets them
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("envconfig"); name != "" {
			return name
		}
		return fld.Name
	})
	return validate
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s is required", fe.Field())
	case "url":
		return fmt.Errorf("%s: invalid url %q", fe.Field(), fe.Value())
	case "file":
		return fmt.Errorf("%s: file %v does not exist", fe.Field(), fe.Value())
	default:
		return fmt.Errorf("%s: failed %q validation (value %v)", fe.Field(), fe.Tag(), fe.Value())
	}
}
