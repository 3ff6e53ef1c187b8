package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ProvisionOp is one journal row: a single call against the remote
// service, with the status the provisioner recorded for it.
type ProvisionOp struct {
	ID        string       `json:"id"`
	Project   string       `json:"project"`
	Kind      ResourceKind `json:"kind"`
	Name      string       `json:"name"`
	Action    string       `json:"action"` // "create" or "delete"
	Status    OpStatus     `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Journal actions.
const (
	ActionCreate = "create"
	ActionDelete = "delete"
)

// PredictionRecord persists one scoring call's merged result.
type PredictionRecord struct {
	ID          string             `json:"id"`
	Project     string             `json:"project"`
	EventID     string             `json:"eventId"`
	Scores      map[string]float64 `json:"scores"`
	RuleResults []RuleMatch        `json:"ruleResults"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// ProfileReport persists one profiling run's artifacts as raw JSON.
type ProfileReport struct {
	ID        string          `json:"id"`
	Project   string          `json:"project"`
	Report    json.RawMessage `json:"report"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Repository defines the interface for the provisioning journal and
// prediction/profile persistence. All methods are scoped by project.
type Repository interface {
	// Provisioning journal
	SaveOp(ctx context.Context, op *ProvisionOp) error
	ListOps(ctx context.Context, project string) ([]*ProvisionOp, error)

	// Prediction results
	SavePrediction(ctx context.Context, rec *PredictionRecord) error
	GetPrediction(ctx context.Context, project, eventID string) (*PredictionRecord, error)

	// Profiling reports
	SaveProfileReport(ctx context.Context, rec *ProfileReport) error
	ListProfileReports(ctx context.Context, project string) ([]*ProfileReport, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
