package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	minSessionSecretBytes = 32
	defaultSessionTTL     = 7 * 24 * time.Hour
	// devDBPassword is the local fallback. Production must set DB_PASSWORD
	// to something else.
	devDBPassword = "password"
)

type Config struct {
	ServerPort   int
	Env          string
	LogVerbosity int
	BcryptCost   int
	Database     DatabaseConfig
	Session      SessionConfig
	Storage      StorageConfig
	MQ           MQConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type SessionConfig struct {
	// Secret is the HS256 signing key. Rotating it invalidates every session.
	Secret       string
	CookieName   string
	TTL          time.Duration
	CookieSecure bool
}

type StorageConfig struct {
	// Backend is one of "local", "minio" or "gcs".
	Backend string
	// PublicURL is the base URL stored media is served from.
	PublicURL string
	LocalDir  string
	Minio     MinioConfig
	GCS       GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type MQConfig struct {
	// Backend is one of "", "rabbitmq" or "pubsub". Empty disables catalog events.
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

// Production reports whether the process runs with a production posture.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func LoadConfig() (Config, error) {
	env := getEnv("ENV", "dev")
	if env == "dev" {
		godotenv.Load()
	}
	production := strings.EqualFold(env, "production")

	dbPassword := os.Getenv("DB_PASSWORD")
	if !production {
		dbPassword = getEnv("DB_PASSWORD", devDBPassword)
	}
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "storefront"),
		Password: dbPassword,
		DBName:   getEnv("DB_NAME", "storefront_db"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	ttl, err := getEnvDuration("SESSION_TTL", defaultSessionTTL)
	if err != nil {
		return Config{}, err
	}
	sessionConfig := SessionConfig{
		Secret:       strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		CookieName:   getEnv("SESSION_COOKIE_NAME", "session"),
		TTL:          ttl,
		CookieSecure: getEnvBool("SESSION_COOKIE_SECURE", production),
	}

	storageConfig := StorageConfig{
		Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		PublicURL: strings.TrimRight(getEnv("STORAGE_PUBLIC_URL", "/uploads"), "/"),
		LocalDir:  getEnv("STORAGE_LOCAL_DIR", "./uploads"),
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "storefront-media"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          os.Getenv("GCS_BUCKET"),
			ProjectID:       os.Getenv("GCS_PROJECT_ID"),
			CredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
		},
	}

	mqConfig := MQConfig{
		Backend: strings.ToLower(os.Getenv("MQ_BACKEND")),
		Channel: getEnv("MQ_CATALOG_CHANNEL", "catalog-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             os.Getenv("RABBITMQ_URL"),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:          os.Getenv("PUBSUB_PROJECT_ID"),
			CredentialsFile:    os.Getenv("PUBSUB_CREDENTIALS_FILE"),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	cfg := Config{
		ServerPort:   getEnvInt("SERVER_PORT", 8080),
		Env:          env,
		LogVerbosity: getEnvInt("LOG_VERBOSITY", 0),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),
		Database:     dbConfig,
		Session:      sessionConfig,
		Storage:      storageConfig,
		MQ:           mqConfig,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server must not start with.
func (c Config) Validate() error {
	if c.Session.Secret == "" {
		return errors.New("config: SESSION_SECRET is required")
	}
	if len(c.Session.Secret) < minSessionSecretBytes {
		return fmt.Errorf("config: SESSION_SECRET must be at least %d bytes", minSessionSecretBytes)
	}
	// Session expiry is carried in whole seconds.
	if c.Session.TTL < time.Second {
		return errors.New("config: SESSION_TTL must be at least 1s")
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("config: SESSION_COOKIE_NAME must not be empty")
	}
	if c.Production() && (c.Database.Password == "" || c.Database.Password == devDBPassword) {
		return errors.New("config: DB_PASSWORD must be set explicitly in production")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	switch c.Storage.Backend {
	case "local", "minio", "gcs":
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch c.MQ.Backend {
	case "", "rabbitmq", "pubsub":
	default:
		return fmt.Errorf("config: unknown MQ_BACKEND %q", c.MQ.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valueStr) == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return value, nil
}
