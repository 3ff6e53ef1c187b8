package domain

// Config holds the complete Peregrine configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Project is the fraud-detection project this instance orchestrates
	Project ProjectConfig `json:"project"`

	// Remote is the managed fraud-detection service endpoint
	Remote RemoteConfig `json:"remote"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ProjectConfig names the remote resources one Peregrine instance owns.
type ProjectConfig struct {
	// Name scopes journal rows, cache keys, and bus subjects.
	Name string `json:"name"`

	EntityType      string `json:"entityType"`
	EventType       string `json:"eventType"`
	ModelName       string `json:"modelName"`
	ModelVersion    string `json:"modelVersion"`
	ModelType       string `json:"modelType"`
	DetectorName    string `json:"detectorName"`
	DetectorVersion string `json:"detectorVersion"`
}

// RemoteConfig holds the managed service endpoint settings.
type RemoteConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"-"`
	Region   string `json:"region"`

	// IdentityEndpoint is the auxiliary identity/object-store check
	// endpoint. Empty disables the check.
	IdentityEndpoint string `json:"identityEndpoint"`

	// TimeoutSeconds bounds a single remote call. No retries.
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Project: ProjectConfig{
			Name:            "default",
			EntityType:      "customer",
			EventType:       "transaction",
			ModelName:       "transaction_model",
			ModelVersion:    "1.00",
			ModelType:       ModelTypeOnlineFraudInsights,
			DetectorName:    "transaction_detector",
			DetectorVersion: "1",
		},
		Remote: RemoteConfig{
			Endpoint:       "http://localhost:9090",
			Region:         "eu-west-1",
			TimeoutSeconds: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./peregrine.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "peregrine",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "peregrine",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
