package types

// ProjectConfig represents the top-level fleetmon.yaml configuration.
type ProjectConfig struct {
	Server     *ServerConfig    `yaml:"server,omitempty"`
	Redis      *RedisConfig     `yaml:"redis"`
	Postgres   *PostgresConfig  `yaml:"postgres,omitempty"`
	Alerts     []AlertConfig    `yaml:"alerts,omitempty"`
	Scheduler  *SchedulerConfig `yaml:"scheduler,omitempty"`
	Thresholds *ThresholdConfig `yaml:"thresholds,omitempty"`
	LogLevel   string           `yaml:"logLevel,omitempty"`
}

// ServerConfig holds the metrics exposition listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"` // default ":9090"
}

// RedisConfig holds Redis/Valkey connection settings for the shared counter
// store and the durable snapshot buffer.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
	OpTimeout string `yaml:"opTimeout,omitempty" json:"opTimeout,omitempty"` // default "500ms"
}

// PostgresConfig points the system-metrics collector at the fleet database.
// When absent, a static source is used.
type PostgresConfig struct {
	DSN         string `yaml:"dsn"`
	DriverTable string `yaml:"driverTable,omitempty"` // default "drivers"
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type     AlertType  `yaml:"type" json:"type"`
	URL      string     `yaml:"url,omitempty" json:"url,omitempty"`
	Path     string     `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN string     `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
	SMTPAddr string     `yaml:"smtpAddr,omitempty" json:"smtpAddr,omitempty"`
	Username string     `yaml:"username,omitempty" json:"username,omitempty"`
	Password string     `yaml:"password,omitempty" json:"-"`
	From     string     `yaml:"from,omitempty" json:"from,omitempty"`
	To       []string   `yaml:"to,omitempty" json:"to,omitempty"`
	MinLevel AlertLevel `yaml:"minLevel,omitempty" json:"minLevel,omitempty"`
}

// SchedulerConfig overrides the background loop periods.
type SchedulerConfig struct {
	FlushInterval  string `yaml:"flushInterval,omitempty" json:"flushInterval,omitempty"`   // default "60s"
	SystemInterval string `yaml:"systemInterval,omitempty" json:"systemInterval,omitempty"` // default "30s"
	SystemBackoff  string `yaml:"systemBackoff,omitempty" json:"systemBackoff,omitempty"`   // default "60s"
	SweepInterval  string `yaml:"sweepInterval,omitempty" json:"sweepInterval,omitempty"`   // default "5m"
	SinkTimeout    string `yaml:"sinkTimeout,omitempty" json:"sinkTimeout,omitempty"`       // default "10s"
	BufferMax      int    `yaml:"bufferMax,omitempty" json:"bufferMax,omitempty"`           // default 10000
}

// ThresholdConfig overrides the alert thresholds. Zero values keep defaults.
type ThresholdConfig struct {
	APILatency    float64 `yaml:"apiLatency,omitempty" json:"apiLatency,omitempty"`       // seconds, default 2.0
	DriverScore   float64 `yaml:"driverScore,omitempty" json:"driverScore,omitempty"`     // default 60
	DBConnections int     `yaml:"dbConnections,omitempty" json:"dbConnections,omitempty"` // default 50
	ErrorRate     float64 `yaml:"errorRate,omitempty" json:"errorRate,omitempty"`         // percent, default 5.0
	SlowEndpoint  float64 `yaml:"slowEndpoint,omitempty" json:"slowEndpoint,omitempty"`   // seconds, default 1.0
	Window        string  `yaml:"window,omitempty" json:"window,omitempty"`               // default "5m"
}
