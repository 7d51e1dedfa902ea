// Package config builds the service configuration from an optional YAML file
// and environment variables. It is loaded once in main and passed down.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends
const (
	BackendDynamoDB = "dynamodb"
	BackendMySQL    = "mysql"
)

// Lock providers
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Trace exporters
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// maxCartLines keeps 1 + 2*lines within the 100 item DynamoDB transaction limit.
const maxCartLines = 40

// Config is the full service configuration.
type Config struct {
	Service   string          `yaml:"service"`
	Backend   string          `yaml:"backend"`
	HTTP      HTTPConfig      `yaml:"http"`
	AWS       AWSConfig       `yaml:"aws"`
	Tables    TablesConfig    `yaml:"tables"`
	Queue     QueueConfig     `yaml:"queue"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Lock      LockConfig      `yaml:"lock"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Cart      CartConfig      `yaml:"cart"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Worker    WorkerConfig    `yaml:"worker"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	RunLocal     bool          `yaml:"run_local"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type AWSConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // e.g. DynamoDB Local / LocalStack
}

type TablesConfig struct {
	Products        string `yaml:"products"`
	Combos          string `yaml:"combos"`
	Carts           string `yaml:"carts"`
	Orders          string `yaml:"orders"`
	ProcessedEvents string `yaml:"processed_events"`
}

type QueueConfig struct {
	OrdersURL string `yaml:"orders_url"` // empty disables event publication
}

// MySQLConfig captures the connection parameters for a MySQL instance.
type MySQLConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	Params   string `yaml:"params"`
}

// DSN renders the go-sql-driver/mysql data source name.
func (m MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", m.User, m.Password, m.Host, m.Port, m.Database, m.Params)
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type LockConfig struct {
	Provider string        `yaml:"provider"`
	Wait     time.Duration `yaml:"wait"`
	TTL      time.Duration `yaml:"ttl"`
}

type PricingConfig struct {
	// ShareComboUnits lets several combos count the same cart units.
	ShareComboUnits bool `yaml:"share_combo_units"`
}

type CartConfig struct {
	MaxLines int `yaml:"max_lines"`
}

type TelemetryConfig struct {
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type WorkerConfig struct {
	MetricsNamespace string        `yaml:"metrics_namespace"`
	Lease            time.Duration `yaml:"lease"`
	LedgerTTL        time.Duration `yaml:"ledger_ttl"`
	// LocalBody is the message delivered once when the worker runs locally.
	LocalBody        string        `yaml:"local_body"`
}

const defaultLocalBody = `{"event_id":"local-order-1","order_id":"local-order-1","user_id":"local-user","subtotal":"35000","discount":"5000","total":"30000","units":3,"payment_method":"cod"}`

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Service: "cart-checkout",
		Backend: BackendDynamoDB,
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		AWS: AWSConfig{Region: "us-east-1"},
		Tables: TablesConfig{
			Products:        "products",
			Combos:          "combos",
			Carts:           "carts",
			Orders:          "orders",
			ProcessedEvents: "processed-events",
		},
		MySQL: MySQLConfig{
			User:     "checkout",
			Password: "checkout",
			Host:     "127.0.0.1",
			Port:     "3306",
			Database: "checkout",
			Params:   "charset=utf8mb4&parseTime=True&loc=UTC",
		},
		Lock: LockConfig{
			Provider: LockLocal,
			Wait:     5 * time.Second,
			TTL:      10 * time.Second,
		},
		Cart:      CartConfig{MaxLines: maxCartLines},
		Telemetry: TelemetryConfig{Exporter: ExporterNone, Insecure: true},
		Worker: WorkerConfig{
			MetricsNamespace: "CartCheckout",
			Lease:            time.Minute,
			LedgerTTL:        48 * time.Hour,
			LocalBody:        defaultLocalBody,
		},
	}
}

// Load reads CONFIG_FILE (if set) and then applies environment overrides.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"), os.Getenv)
}

// LoadFrom is Load with an explicit file path and environment lookup.
func LoadFrom(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	clean := filepath.Clean(path)
	switch ext := filepath.Ext(clean); ext {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", clean, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("SERVICE_NAME", &c.Service)
	str("BACKEND", &c.Backend)
	str("HTTP_ADDR", &c.HTTP.Addr)
	boolean("RUN_LOCAL", &c.HTTP.RunLocal)
	str("AWS_REGION", &c.AWS.Region)
	str("AWS_ENDPOINT_URL", &c.AWS.Endpoint)
	str("PRODUCTS_TABLE", &c.Tables.Products)
	str("COMBOS_TABLE", &c.Tables.Combos)
	str("CARTS_TABLE", &c.Tables.Carts)
	str("ORDERS_TABLE", &c.Tables.Orders)
	str("PROCESSED_EVENTS_TABLE", &c.Tables.ProcessedEvents)
	str("ORDERS_QUEUE_URL", &c.Queue.OrdersURL)
	str("MYSQL_USER", &c.MySQL.User)
	str("MYSQL_PASSWORD", &c.MySQL.Password)
	str("MYSQL_HOST", &c.MySQL.Host)
	str("MYSQL_PORT", &c.MySQL.Port)
	str("MYSQL_DATABASE", &c.MySQL.Database)
	str("MYSQL_PARAMS", &c.MySQL.Params)
	str("REDIS_URL", &c.Redis.URL)
	str("LOCK_PROVIDER", &c.Lock.Provider)
	duration("LOCK_WAIT", &c.Lock.Wait)
	duration("LOCK_TTL", &c.Lock.TTL)
	boolean("SHARE_COMBO_UNITS", &c.Pricing.ShareComboUnits)
	integer("CART_MAX_LINES", &c.Cart.MaxLines)
	str("OTEL_TRACES_EXPORTER", &c.Telemetry.Exporter)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	boolean("OTEL_EXPORTER_OTLP_INSECURE", &c.Telemetry.Insecure)
	str("OTEL_SERVICE_NAME", &c.Telemetry.ServiceName)
	str("METRICS_NAMESPACE", &c.Worker.MetricsNamespace)
	duration("WORKER_LEASE", &c.Worker.Lease)
	duration("LEDGER_TTL", &c.Worker.LedgerTTL)
	str("LOCAL_SQS_BODY", &c.Worker.LocalBody)

	c.Backend = strings.ToLower(c.Backend)
	c.Lock.Provider = strings.ToLower(c.Lock.Provider)
	c.Telemetry.Exporter = strings.ToLower(c.Telemetry.Exporter)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Service
	}
	return errors.Join(errs...)
}

// Validate reports every missing or inconsistent value of the API config.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendDynamoDB:
		for name, v := range map[string]string{
			"tables.products": c.Tables.Products,
			"tables.combos":   c.Tables.Combos,
			"tables.carts":    c.Tables.Carts,
			"tables.orders":   c.Tables.Orders,
		} {
			if v == "" {
				errs = append(errs, fmt.Errorf("%s is required for the dynamodb backend", name))
			}
		}
	case BackendMySQL:
		if c.MySQL.Host == "" || c.MySQL.Database == "" {
			errs = append(errs, errors.New("mysql.host and mysql.database are required for the mysql backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	switch c.Lock.Provider {
	case LockLocal:
	case LockRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis lock"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock provider %q", c.Lock.Provider))
	}
	if c.Lock.Wait <= 0 {
		errs = append(errs, errors.New("lock.wait must be positive"))
	}

	if c.Cart.MaxLines < 1 || c.Cart.MaxLines > maxCartLines {
		errs = append(errs, fmt.Errorf("cart.max_lines must be between 1 and %d", maxCartLines))
	}

	switch c.Telemetry.Exporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required for the otlp exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown trace exporter %q", c.Telemetry.Exporter))
	}
	return errors.Join(errs...)
}

// ValidateWorker checks the values the order-events worker needs.
func (c Config) ValidateWorker() error {
	var errs []error
	if c.Tables.ProcessedEvents == "" {
		errs = append(errs, errors.New("tables.processed_events is required"))
	}
	if c.Worker.MetricsNamespace == "" {
		errs = append(errs, errors.New("worker.metrics_namespace is required"))
	}
	if c.Worker.Lease <= 0 {
		errs = append(errs, errors.New("worker.lease must be positive"))
	}
	return errors.Join(errs...)
}
