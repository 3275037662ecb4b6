package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Supported STORE_BACKEND values
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendBolt     = "bolt"
)

// Config holds the API service configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Store   StoreConfig   `json:"store"`
	Query   QueryConfig   `json:"query"`
	Kafka   KafkaConfig   `json:"kafka"`
	Logging LoggingConfig `json:"logging"`
	CORS    CORSConfig    `json:"cors"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// StoreConfig selects and configures the reading store
type StoreConfig struct {
	Backend string `json:"backend"`

	SQLitePath string `json:"sqlite_path"`
	BoltPath   string `json:"bolt_path"`

	MongoURI   string `json:"mongo_uri"`
	MongoTLS   bool   `json:"mongo_tls"`
	DBName     string `json:"db_name"`
	Collection string `json:"collection"`

	Postgres DatabaseConfig `json:"postgres"`

	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

// QueryConfig holds query engine configuration
type QueryConfig struct {
	TimeZone    string        `json:"time_zone"`
	Timeout     time.Duration `json:"timeout"`
	MaxParallel int           `json:"max_parallel"`
}

// KafkaConfig configures reading event publication. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	BrokerHost  string        `json:"broker_host"`
	BrokerPort  int           `json:"broker_port"`
	BrokerUser  string        `json:"broker_user"`
	BrokerPass  string        `json:"broker_pass"`
	UseTLS      bool          `json:"use_tls"`
	CACertPath  string        `json:"ca_cert_path"`
	Topic       string        `json:"topic"`
	ClientID    string        `json:"client_id"`
	SharedGroup string        `json:"shared_group"`
	KeepAlive   time.Duration `json:"keep_alive"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout or stderr
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// BatchConfig holds batch processing configuration
type BatchConfig struct {
	Size   int           `json:"size"`
	Window time.Duration `json:"window"`
}

// IngestorConfig holds configuration for the MQTT Ingestor service
type IngestorConfig struct {
	Server  ServerConfig  `json:"server"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Batch   BatchConfig   `json:"batch"`
	Store   StoreConfig   `json:"store"`
	Kafka   KafkaConfig   `json:"kafka"`
	Logging LoggingConfig `json:"logging"`
}

// LoadIngestorConfig loads configuration for the MQTT Ingestor service
func LoadIngestorConfig() (*IngestorConfig, error) {
	// .env is optional; variables may come from the environment directly
	_ = godotenv.Load()

	config := &IngestorConfig{
		Server: loadServer("INGESTOR_PORT", "9003"),
		MQTT: MQTTConfig{
			BrokerHost:  getEnv("BROKER_HOST", "localhost"),
			BrokerPort:  getInt("BROKER_PORT", 1883),
			BrokerUser:  getEnv("BROKER_USER", ""),
			BrokerPass:  getEnv("BROKER_PASS", ""),
			UseTLS:      getBool("BROKER_TLS", false),
			CACertPath:  getEnv("BROKER_CA_FILE", ""),
			Topic:       getEnv("MQTT_TOPIC", "sensors/+/readings"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "wth-ingestor"),
			SharedGroup: getEnv("MQTT_SHARED_GROUP", ""),
			KeepAlive:   getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout: getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
		},
		Batch: BatchConfig{
			Size:   getInt("BATCH_SIZE", 200),
			Window: getDuration("BATCH_WINDOW", 1*time.Second),
		},
		Store:   loadStore(),
		Kafka:   loadKafka(),
		Logging: loadLogging(),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadApiConfig loads configuration for the API service
func LoadApiConfig() (*Config, error) {
	// .env is optional; variables may come from the environment directly
	_ = godotenv.Load()

	config := &Config{
		Server: loadServer("PORT", "9002"),
		Store:  loadStore(),
		Query: QueryConfig{
			TimeZone:    getEnv("QUERY_TIME_ZONE", "UTC"),
			Timeout:     getDuration("QUERY_TIMEOUT", 30*time.Second),
			MaxParallel: getInt("QUERY_MAX_PARALLEL", 8),
		},
		Kafka:   loadKafka(),
		Logging: loadLogging(),
		CORS: CORSConfig{
			AllowedOrigins:   getStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}),
			ExposedHeaders:   getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length", "X-Request-ID"}),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if _, err := c.Query.Location(); err != nil {
		return err
	}
	if c.Query.MaxParallel < 1 {
		return fmt.Errorf("QUERY_MAX_PARALLEL must be at least 1")
	}
	return nil
}

// Validate validates the ingestor configuration
func (c *IngestorConfig) Validate() error {
	if c.MQTT.BrokerHost == "" {
		return fmt.Errorf("BROKER_HOST is required")
	}
	if c.Batch.Size < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}
	if c.Batch.Window <= 0 {
		return fmt.Errorf("BATCH_WINDOW must be positive")
	}
	// The ingestor runs next to the API process and must share its store.
	switch c.Store.Backend {
	case BackendMemory, BackendBolt:
		return fmt.Errorf("STORE_BACKEND %q cannot be shared with the API service; use sqlite, postgres or mongo", c.Store.Backend)
	}
	return c.Store.Validate()
}

// Validate checks that the selected backend has what it needs to connect
func (s StoreConfig) Validate() error {
	switch s.Backend {
	case BackendMemory:
	case BackendSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendBolt:
		if s.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required for the bolt backend")
		}
	case BackendMongo:
		if s.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo backend")
		}
	case BackendPostgres:
		if s.Postgres.User == "" {
			return fmt.Errorf("POSTGRES_USER is required for the postgres backend")
		}
		if s.Postgres.Password == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", s.Backend)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string
func (s StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Postgres.Host, s.Postgres.Port, s.Postgres.User, s.Postgres.Password, s.Postgres.DBName, s.Postgres.SSLMode)
}

// Location resolves the configured query time zone
func (q QueryConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(q.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid QUERY_TIME_ZONE %q: %w", q.TimeZone, err)
	}
	return loc, nil
}

// Enabled reports whether reading events should be published
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// BrokerURL returns the MQTT broker URL
func (m MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if m.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, m.BrokerHost, m.BrokerPort)
}

// SubscriptionTopic returns the topic filter, wrapped in a shared subscription when a group is set
func (m MQTTConfig) SubscriptionTopic() string {
	if m.SharedGroup == "" {
		return m.Topic
	}
	return fmt.Sprintf("$share/%s/%s", m.SharedGroup, m.Topic)
}

func loadServer(portKey, defaultPort string) ServerConfig {
	return ServerConfig{
		Port:         getEnv(portKey, defaultPort),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
	}
}

func loadStore() StoreConfig {
	return StoreConfig{
		Backend:    strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		SQLitePath: getEnv("SQLITE_PATH", "weather.db"),
		BoltPath:   getEnv("BOLT_PATH", "weather.bolt"),
		MongoURI:   getEnv("MONGODB_URI", ""),
		MongoTLS:   getBool("MONGODB_TLS", false),
		DBName:     getEnv("DB_NAME", "weather"),
		Collection: getEnv("COLL_NAME", "readings"),
		Postgres: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", ""),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			DBName:   getEnv("POSTGRES_DB", "weather"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getInt("POSTGRES_MAX_CONNS", 25),
			MinConns: getInt("POSTGRES_MIN_CONNS", 5),
		},
		ConnectTimeout: getDuration("STORE_CONNECT_TIMEOUT", 20*time.Second),
	}
}

func loadKafka() KafkaConfig {
	return KafkaConfig{
		Brokers: getStringSlice("KAFKA_BROKERS", nil),
		Topic:   getEnv("KAFKA_TOPIC", "weather.readings"),
	}
}

func loadLogging() LoggingConfig {
	return LoggingConfig{
		Level:        getEnv("LOG_LEVEL", "info"),
		Format:       getEnv("LOG_FORMAT", "text"),
		Output:       getEnv("LOG_OUTPUT", "stdout"),
		EnableCaller: getBool("LOG_ENABLE_CALLER", false),
	}
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
