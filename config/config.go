package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	Database   DatabaseConfig
	Backend    BackendConfig
	Storage    StorageConfig
	MQ         MQConfig
	RedisURL   string
	Log        LogConfig
	Client     ClientConfig
	Scheduler  SchedulerConfig
}

// DatabaseConfig points at the platform's Postgres database. URL, when set,
// is the connection string copied from the platform dashboard and wins over
// the discrete fields.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// BackendConfig describes the hosted auth/database platform.
// URL and AnonKey gate whether a backend client can be built at all.
type BackendConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string
	// AuthMode is "remote" for the hosted auth service or "local" for the in-process development auth.
	AuthMode string
	// SiteURL is used for email redirect links (the verification callback).
	SiteURL string
	// EmailsPerHour caps verification emails per address in local mode.
	EmailsPerHour int
	Timeout       time.Duration
}

type StorageConfig struct {
	// Provider is one of "minio", "gcs", "s3" or "" (uploads disabled).
	Provider string
	Minio    MinioConfig
	GCS      GCSConfig
	S3       S3Config
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

type S3Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
}

type MQConfig struct {
	// Backend is one of "rabbitmq", "pubsub", "kafka" or "" (events dropped).
	Backend  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
	Kafka    KafkaConfig
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

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type LogConfig struct {
	Level string
	Dev   bool
	File  string
}

// ClientConfig configures the command-line client.
type ClientConfig struct {
	StatePath string
}

type SchedulerConfig struct {
	PendingTTL       time.Duration
	SessionIdleTTL   time.Duration
	PruneSchedule    string
	EvictionSchedule string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		URL:      getEnv("SUPABASE_DB_URL", ""),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "postgres"),
		UseSSL:   getEnvBool("DB_SSL", false),
	}

	logLevel := getEnv("LOG_LEVEL", "")
	logDev := os.Getenv("LOG_DEV") == "1"
	if logLevel == "" {
		if logDev {
			logLevel = "debug"
		} else {
			logLevel = "info"
		}
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Database:   dbConfig,
		Backend: BackendConfig{
			URL:           strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
			AnonKey:       getEnv("SUPABASE_ANON_KEY", ""),
			JWTSecret:     getEnv("SUPABASE_JWT_SECRET", ""),
			AuthMode:      getEnv("AUTH_MODE", "remote"),
			SiteURL:       strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),
			EmailsPerHour: getEnvInt("AUTH_EMAILS_PER_HOUR", 4),
			Timeout:       getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Provider: getEnv("STORAGE_PROVIDER", ""),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "jobboard"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
			S3: S3Config{
				Endpoint:      getEnv("S3_ENDPOINT", ""),
				Region:        getEnv("S3_REGION", "us-east-1"),
				AccessKey:     getEnv("S3_ACCESS_KEY", ""),
				SecretKey:     getEnv("S3_SECRET_KEY", ""),
				Bucket:        getEnv("S3_BUCKET", "jobboard"),
				PublicBaseURL: strings.TrimRight(getEnv("S3_PUBLIC_BASE_URL", ""), "/"),
			},
		},
		MQ: MQConfig{
			Backend: getEnv("MQ_BACKEND", ""),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
			Kafka: KafkaConfig{
				Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
				GroupID: getEnv("KAFKA_GROUP_ID", "jobboard"),
			},
		},
		RedisURL: getEnv("REDIS_URL", ""),
		Log: LogConfig{
			Level: logLevel,
			Dev:   logDev,
			File:  getEnv("LOG_FILE", ""),
		},
		Client: ClientConfig{
			StatePath: getEnv("CLIENT_STATE_PATH", defaultStatePath()),
		},
		Scheduler: SchedulerConfig{
			PendingTTL:       getEnvDuration("PENDING_TTL", 24*time.Hour),
			SessionIdleTTL:   getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
			PruneSchedule:    getEnv("PRUNE_SCHEDULE", "@every 1h"),
			EvictionSchedule: getEnv("EVICTION_SCHEDULE", "@every 5m"),
		},
	}
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
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "jobboard-state.db"
	}
	return dir + string(os.PathSeparator) + "jobboard" + string(os.PathSeparator) + "state.db"
}
