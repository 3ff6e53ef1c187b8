// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/peregrine/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveOp appends one provisioning call to the journal.
func (r *SQLRepository) SaveOp(ctx context.Context, op *domain.ProvisionOp) error {
	if op.Project == "" {
		return fmt.Errorf("%w: project is required", ErrInvalidInput)
	}

	skipped := 0
	if op.Status.Skipped {
		skipped = 1
	}

	query := `
		INSERT INTO provision_ops (
			id, project, kind, name, action, status_code, skipped, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		op.ID, op.Project, string(op.Kind), op.Name, op.Action,
		op.Status.Code, skipped, op.CreatedAt,
	)
	return err
}

// ListOps retrieves the provisioning journal for a project, newest
// first.
func (r *SQLRepository) ListOps(ctx context.Context, project string) ([]*domain.ProvisionOp, error) {
	if project == "" {
		return nil, fmt.Errorf("%w: project is required", ErrInvalidInput)
	}

	query := `
		SELECT id, project, kind, name, action, status_code, skipped, created_at
		FROM provision_ops
		WHERE project = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []*domain.ProvisionOp
	for rows.Next() {
		var op domain.ProvisionOp
		var kind string
		var skipped int

		if err := rows.Scan(
			&op.ID, &op.Project, &kind, &op.Name, &op.Action,
			&op.Status.Code, &skipped, &op.CreatedAt,
		); err != nil {
			return nil, err
		}

		op.Kind = domain.ResourceKind(kind)
		op.Status.Skipped = skipped == 1
		ops = append(ops, &op)
	}

	return ops, rows.Err()
}

// SavePrediction stores a prediction result.
func (r *SQLRepository) SavePrediction(ctx context.Context, rec *domain.PredictionRecord) error {
	if rec.Project == "" {
		return fmt.Errorf("%w: project is required", ErrInvalidInput)
	}

	scores, _ := json.Marshal(rec.Scores)
	ruleResults, _ := json.Marshal(rec.RuleResults)

	query := `
		INSERT INTO predictions (
			id, project, event_id, scores, rule_results, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.Project, rec.EventID,
		string(scores), string(ruleResults), rec.CreatedAt,
	)
	return err
}

// GetPrediction retrieves a prediction by event ID.
func (r *SQLRepository) GetPrediction(ctx context.Context, project, eventID string) (*domain.PredictionRecord, error) {
	if project == "" {
		return nil, fmt.Errorf("%w: project is required", ErrInvalidInput)
	}

	query := `
		SELECT id, project, event_id, scores, rule_results, created_at
		FROM predictions
		WHERE project = ? AND event_id = ?
	`

	var rec domain.PredictionRecord
	var scores, ruleResults string

	err := r.db.QueryRowContext(ctx, r.rebind(query), project, eventID).Scan(
		&rec.ID, &rec.Project, &rec.EventID,
		&scores, &ruleResults, &rec.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(scores), &rec.Scores)
	json.Unmarshal([]byte(ruleResults), &rec.RuleResults)

	return &rec, nil
}

// SaveProfileReport stores one profiling run's report.
func (r *SQLRepository) SaveProfileReport(ctx context.Context, rec *domain.ProfileReport) error {
	if rec.Project == "" {
		return fmt.Errorf("%w: project is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO profile_reports (
			id, project, report, created_at
		) VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.Project, string(rec.Report), rec.CreatedAt,
	)
	return err
}

// ListProfileReports retrieves profiling reports for a project, newest
// first.
func (r *SQLRepository) ListProfileReports(ctx context.Context, project string) ([]*domain.ProfileReport, error) {
	if project == "" {
		return nil, fmt.Errorf("%w: project is required", ErrInvalidInput)
	}

	query := `
		SELECT id, project, report, created_at
		FROM profile_reports
		WHERE project = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.ProfileReport
	for rows.Next() {
		var rec domain.ProfileReport
		var report string

		if err := rows.Scan(&rec.ID, &rec.Project, &report, &rec.CreatedAt); err != nil {
			return nil, err
		}

		rec.Report = json.RawMessage(report)
		reports = append(reports, &rec)
	}

	return reports, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
