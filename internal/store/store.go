package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/deepak-muley/nkpsec/internal/types"
)

// ScanStore records scan runs and their findings in PostgreSQL.
type ScanStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(logger *zap.Logger, dsn string) (*ScanStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &ScanStore{db: db, logger: logger.Named("store")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *ScanStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id SERIAL PRIMARY KEY,
		cluster TEXT NOT NULL,
		scanner TEXT NOT NULL,
		severity_filter TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finding_count INT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scans_cluster_scanner ON scans(cluster, scanner, started_at DESC);

	CREATE TABLE IF NOT EXISTS findings (
		scan_id INT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
		finding_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		severity TEXT NOT NULL,
		vendor_severity TEXT,
		cluster TEXT NOT NULL,
		namespace TEXT,
		resource TEXT,
		component TEXT,
		image TEXT,
		message TEXT,
		fixed_version TEXT,
		details JSONB,
		observed_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_findings_scan ON findings(scan_id);
	CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ScanRecord is one persisted scan run.
type ScanRecord struct {
	ID             int64
	Cluster        string
	Scanner        string
	SeverityFilter string
	StartedAt      time.Time
	FindingCount   int
}

// RecordScan persists one scan run with its findings and returns the
// scan id.
func (s *ScanStore) RecordScan(ctx context.Context, cluster, scanner string, severity types.SeverityFilter, findings []types.Finding) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var scanID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO scans (cluster, scanner, severity_filter, started_at, finding_count)
		VALUES ($1, $2, $3, NOW(), $4)
		RETURNING id
	`, cluster, scanner, severity.String(), len(findings)).Scan(&scanID)
	if err != nil {
		return 0, fmt.Errorf("insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (
			scan_id, finding_id, kind, severity, vendor_severity, cluster,
			namespace, resource, component, image, message, fixed_version,
			details, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare finding insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		var details []byte
		if f.Details != nil {
			if details, err = json.Marshal(f.Details); err != nil {
				return 0, fmt.Errorf("marshal details for %s: %w", f.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			scanID, f.ID, string(f.Kind), string(f.Severity), f.VendorSeverity,
			f.Cluster, f.Namespace, f.Resource, f.Component, f.Image,
			f.Message, f.FixedVersion, details, f.ObservedAt,
		); err != nil {
			return 0, fmt.Errorf("insert finding %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit scan: %w", err)
	}

	s.logger.Info("Recorded scan",
		zap.Int64("scan_id", scanID),
		zap.String("cluster", cluster),
		zap.String("scanner", scanner),
		zap.Int("findings", len(findings)),
	)
	return scanID, nil
}

// History returns the most recent scan runs for a cluster, newest first.
// An empty cluster returns runs across the whole fleet.
func (s *ScanStore) History(ctx context.Context, cluster string, limit int) ([]ScanRecord, error) {
	query := `
		SELECT id, cluster, scanner, severity_filter, started_at, finding_count
		FROM scans
	`
	args := []interface{}{}
	if cluster != "" {
		query += " WHERE cluster = $1"
		args = append(args, cluster)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		var r ScanRecord
		if err := rows.Scan(&r.ID, &r.Cluster, &r.Scanner, &r.SeverityFilter, &r.StartedAt, &r.FindingCount); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delta compares the two most recent scans of one cluster and scanner.
type Delta struct {
	CurrentScanID  int64
	PreviousScanID int64

	// New lists finding ids present now but not in the previous scan.
	New []string

	// Resolved lists finding ids present previously but gone now.
	Resolved []string
}

// Delta computes what changed between the latest two scans of a cluster
// and scanner pair. With fewer than two scans recorded, every current
// finding counts as new.
func (s *ScanStore) Delta(ctx context.Context, cluster, scanner string) (Delta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM scans
		WHERE cluster = $1 AND scanner = $2
		ORDER BY started_at DESC, id DESC
		LIMIT 2
	`, cluster, scanner)
	if err != nil {
		return Delta{}, fmt.Errorf("query latest scans: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return Delta{}, fmt.Errorf("scan id row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return Delta{}, err
	}
	if len(ids) == 0 {
		return Delta{}, fmt.Errorf("no scans recorded for cluster %q scanner %q", cluster, scanner)
	}

	d := Delta{CurrentScanID: ids[0]}
	current, err := s.findingIDs(ctx, ids[0])
	if err != nil {
		return Delta{}, err
	}

	previous := map[string]bool{}
	if len(ids) == 2 {
		d.PreviousScanID = ids[1]
		if previous, err = s.findingIDs(ctx, ids[1]); err != nil {
			return Delta{}, err
		}
	}

	for id := range current {
		if !previous[id] {
			d.New = append(d.New, id)
		}
	}
	for id := range previous {
		if !current[id] {
			d.Resolved = append(d.Resolved, id)
		}
	}
	return d, nil
}

func (s *ScanStore) findingIDs(ctx context.Context, scanID int64) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT finding_id FROM findings WHERE scan_id = $1`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query findings for scan %d: %w", scanID, err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("finding id row: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Ping checks the database connection.
func (s *ScanStore) Ping() error {
	return s.db.Ping()
}

// Close releases the database connection pool.
func (s *ScanStore) Close() error {
	return s.db.Close()
}
