package repository

// Schema definitions for the Peregrine database.
// Compatible with both SQLite and PostgreSQL.

const schemaProvisionOps = `
CREATE TABLE IF NOT EXISTS provision_ops (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    action TEXT NOT NULL,
    status_code INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_provision_ops_project ON provision_ops(project);
CREATE INDEX IF NOT EXISTS idx_provision_ops_kind ON provision_ops(project, kind);
CREATE INDEX IF NOT EXISTS idx_provision_ops_created ON provision_ops(project, created_at);
`

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    event_id TEXT NOT NULL,
    scores TEXT NOT NULL,
    rule_results TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_project ON predictions(project);
CREATE INDEX IF NOT EXISTS idx_predictions_event ON predictions(project, event_id);
`

const schemaProfileReports = `
CREATE TABLE IF NOT EXISTS profile_reports (
    id TEXT PRIMARY KEY,
    project TEXT NOT NULL,
    report TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_profile_reports_project ON profile_reports(project);
CREATE INDEX IF NOT EXISTS idx_profile_reports_created ON profile_reports(project, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaProvisionOps,
		schemaPredictions,
		schemaProfileReports,
	}
}
