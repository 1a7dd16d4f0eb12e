package types

// RetryPolicy configures automatic copy retry behavior.
type RetryPolicy struct {
	MaxAttempts       int               `yaml:"maxAttempts" json:"maxAttempts"`
	BackoffSeconds    int               `yaml:"backoffSeconds" json:"backoffSeconds"`
	BackoffMultiplier float64           `yaml:"backoffMultiplier,omitempty" json:"backoffMultiplier,omitempty"`
	RetryableFailures []FailureCategory `yaml:"retryableFailures,omitempty" json:"retryableFailures,omitempty"`
}

// DestinationRule maps file keys matching a regex to a destination bucket.
// Rules are evaluated in order; first match wins.
type DestinationRule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Bucket  string `yaml:"bucket" json:"bucket"`
}

// CollectionProfile is a named destination-mapping and exclusion rule set.
type CollectionProfile struct {
	Name          string            `yaml:"name" json:"name"`
	Tier          LatencyClass      `yaml:"tier,omitempty" json:"tier,omitempty"`
	ExcludedTypes []string          `yaml:"excludedTypes,omitempty" json:"excludedTypes,omitempty"` // key suffixes, e.g. ".xml"
	Rules         []DestinationRule `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// DestinationConfig resolves where recovered files land.
type DestinationConfig struct {
	DefaultBucket string              `yaml:"defaultBucket" json:"defaultBucket"`
	Profiles      []CollectionProfile `yaml:"profiles,omitempty" json:"profiles,omitempty"`
}

// DeadlineConfig sets the advisory completion windows per retrieval tier.
// Records past their window are flagged stale, never auto-failed.
type DeadlineConfig struct {
	ExpeditedMinutes int `yaml:"expeditedMinutes,omitempty" json:"expeditedMinutes,omitempty"`
	StandardMinutes  int `yaml:"standardMinutes,omitempty" json:"standardMinutes,omitempty"`
	BulkMinutes      int `yaml:"bulkMinutes,omitempty" json:"bulkMinutes,omitempty"`
}

// ArchiveConfig holds archive-tier retrieval settings.
type ArchiveConfig struct {
	RestoreDays int          `yaml:"restoreDays,omitempty" json:"restoreDays,omitempty"`
	DefaultTier LatencyClass `yaml:"defaultTier,omitempty" json:"defaultTier,omitempty"`
	Region      string       `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint    string       `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// CopyConfig holds copy-capability settings.
type CopyConfig struct {
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// ExecutorConfig sizes the copy worker pool.
type ExecutorConfig struct {
	Workers   int `yaml:"workers,omitempty" json:"workers,omitempty"`
	QueueSize int `yaml:"queueSize,omitempty" json:"queueSize,omitempty"`
}

// SweeperConfig configures the staleness sweeper.
type SweeperConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Interval   string `yaml:"interval,omitempty" json:"interval,omitempty"`     // e.g. "5m"
	AlertDedup string `yaml:"alertDedup,omitempty" json:"alertDedup,omitempty"` // e.g. "6h"
}

// ListenerConfig configures the completion-event queue listener.
type ListenerConfig struct {
	QueueURL    string `yaml:"queueUrl" json:"queueUrl"`
	WaitSeconds int    `yaml:"waitSeconds,omitempty" json:"waitSeconds,omitempty"`
	BatchSize   int    `yaml:"batchSize,omitempty" json:"batchSize,omitempty"`
	Region      string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// IntakeConfig configures the optional queue-driven request intake.
type IntakeConfig struct {
	QueueURL    string `yaml:"queueUrl" json:"queueUrl"`
	WaitSeconds int    `yaml:"waitSeconds,omitempty" json:"waitSeconds,omitempty"`
	BatchSize   int    `yaml:"batchSize,omitempty" json:"batchSize,omitempty"`
	Region      string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// NotifyConfig configures status-change publication.
type NotifyConfig struct {
	TopicARN string `yaml:"topicArn" json:"topicArn"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type       AlertType `yaml:"type" json:"type"`
	URL        string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path       string    `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN   string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
	BucketName string    `yaml:"bucketName,omitempty" json:"bucketName,omitempty"`
	Prefix     string    `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// ArchiverConfig configures the background ledger archiver that copies
// terminal records from a hot ledger into Postgres.
type ArchiverConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"` // e.g. "5m"
	DSN      string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty" json:"maxRequestBody,omitempty"`
}

// TelemetryConfig configures OTLP export. With no endpoint set, traces and
// exported metrics stay on the no-op providers.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // OTLP gRPC host:port
	ServiceName string `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName   string `yaml:"tableName" json:"tableName"`
	Region      string `yaml:"region" json:"region"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	CreateTable bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// PostgresConfig holds Postgres connection settings. Exactly one of DSN or
// SecretARN must be set; SecretARN resolves connection info from AWS Secrets
// Manager at startup.
type PostgresConfig struct {
	DSN       string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	SecretARN string `yaml:"secretArn,omitempty" json:"secretArn,omitempty"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
}

// RedisConfig holds Redis/Valkey connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// ProjectConfig represents the top-level rehydrate.yaml configuration.
type ProjectConfig struct {
	Ledger      string             `yaml:"ledger"`
	DynamoDB    *DynamoDBConfig    `yaml:"dynamodb,omitempty"`
	Postgres    *PostgresConfig    `yaml:"postgres,omitempty"`
	Redis       *RedisConfig       `yaml:"redis,omitempty"`
	Archive     *ArchiveConfig     `yaml:"archive,omitempty"`
	Copy        *CopyConfig        `yaml:"copy,omitempty"`
	Destination *DestinationConfig `yaml:"destination"`
	Retry       *RetryPolicy       `yaml:"retry,omitempty"`
	Deadlines   *DeadlineConfig    `yaml:"deadlines,omitempty"`
	Executor    *ExecutorConfig    `yaml:"executor,omitempty"`
	Sweeper     *SweeperConfig     `yaml:"sweeper,omitempty"`
	Listener    *ListenerConfig    `yaml:"listener,omitempty"`
	Intake      *IntakeConfig      `yaml:"intake,omitempty"`
	Notify      *NotifyConfig      `yaml:"notify,omitempty"`
	Alerts      []AlertConfig      `yaml:"alerts,omitempty"`
	Archiver    *ArchiverConfig    `yaml:"archiver,omitempty"`
	Server      *ServerConfig      `yaml:"server,omitempty"`
	Telemetry   *TelemetryConfig   `yaml:"telemetry,omitempty"`
}
