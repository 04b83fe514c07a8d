package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/flexproof/flexproof/pkg/domain"
)

// timeLayout is fixed-width so the lexicographic ORDER BY on stored
// timestamps matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRegistry is the durable Registry backend. Every state transition
// commits the artifact mutation and its audit entry in one transaction, so
// a reader can never observe one without the other. Artifacts are stored as
// their full JSON interchange document; the primary key enforces the
// write-once-by-id rule.
type SQLiteRegistry struct {
	db    *sql.DB
	clock func() time.Time
	newID func() string
}

// NewSQLiteRegistry wraps an open database handle and runs migrations.
func NewSQLiteRegistry(db *sql.DB) (*SQLiteRegistry, error) {
	r := &SQLiteRegistry{
		db:    db,
		clock: time.Now,
		newID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

// WithClock overrides the clock for deterministic testing.
func (r *SQLiteRegistry) WithClock(clock func() time.Time) *SQLiteRegistry {
	r.clock = clock
	return r
}

func (r *SQLiteRegistry) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS artifacts (
		artifact_id TEXT PRIMARY KEY,
		state       TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		doc         TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS audit_entries (
		entry_id    TEXT PRIMARY KEY,
		artifact_id TEXT NOT NULL,
		timestamp   TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		actor_id    TEXT NOT NULL,
		detail      TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_audit_artifact ON audit_entries (artifact_id, timestamp);`
	if _, err := r.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate registry schema: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) Store(ctx context.Context, artifact *domain.UsageRightArtifact, actorID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store artifact %s: %w", artifact.ArtifactID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.insertArtifact(ctx, tx, artifact); err != nil {
		return err
	}
	if err := r.insertAudit(ctx, tx, artifact.ArtifactID, domain.EventIssued, actorID, "artifact stored and issued"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store artifact %s: %w", artifact.ArtifactID, err)
	}
	return nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, artifactID string) (*domain.UsageRightArtifact, error) {
	row := r.db.QueryRowContext(ctx, `SELECT doc FROM artifacts WHERE artifact_id = ?`, artifactID)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get artifact %s: %w", artifactID, ErrNotFound)
		}
		return nil, fmt.Errorf("get artifact %s: %w", artifactID, err)
	}
	return decodeArtifact(doc)
}

func (r *SQLiteRegistry) List(ctx context.Context) ([]*domain.UsageRightArtifact, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT doc FROM artifacts ORDER BY created_at, artifact_id`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var artifacts []*domain.UsageRightArtifact
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("list artifacts: %w", err)
		}
		artifact, err := decodeArtifact(doc)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, nil
}

func (r *SQLiteRegistry) Revoke(ctx context.Context, artifactID, reason, actorID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("revoke artifact %s: %w", artifactID, err)
	}
	defer func() { _ = tx.Rollback() }()

	artifact, err := r.getForUpdate(ctx, tx, artifactID)
	if err != nil {
		return fmt.Errorf("revoke artifact %s: %w", artifactID, err)
	}
	artifact.State = domain.StateRevoked
	artifact.RevocationRef = reason
	if err := r.updateArtifact(ctx, tx, artifact); err != nil {
		return err
	}
	if err := r.insertAudit(ctx, tx, artifactID, domain.EventRevoked, actorID, reason); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("revoke artifact %s: %w", artifactID, err)
	}
	return nil
}

func (r *SQLiteRegistry) Supersede(ctx context.Context, oldArtifactID string, replacement *domain.UsageRightArtifact, actorID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("supersede artifact %s: %w", oldArtifactID, err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := r.getForUpdate(ctx, tx, oldArtifactID)
	if err != nil {
		return fmt.Errorf("supersede artifact %s: %w", oldArtifactID, err)
	}

	old.State = domain.StateSuperseded
	old.SupersededBy = replacement.ArtifactID
	if err := r.updateArtifact(ctx, tx, old); err != nil {
		return err
	}
	if err := r.insertArtifact(ctx, tx, replacement); err != nil {
		return err
	}
	if err := r.insertAudit(ctx, tx, oldArtifactID, domain.EventSuperseded, actorID, "superseded by "+replacement.ArtifactID); err != nil {
		return err
	}
	if err := r.insertAudit(ctx, tx, replacement.ArtifactID, domain.EventIssued, actorID, "supersedes "+oldArtifactID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("supersede artifact %s: %w", oldArtifactID, err)
	}
	return nil
}

func (r *SQLiteRegistry) RecordVerification(ctx context.Context, artifactID string, result *domain.VerificationResult, actorID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record verification for %s: %w", artifactID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.insertAudit(ctx, tx, artifactID, domain.EventVerified, actorID, verificationDetail(result)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record verification for %s: %w", artifactID, err)
	}
	return nil
}

func (r *SQLiteRegistry) GetAuditTrail(ctx context.Context, artifactID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entry_id, artifact_id, timestamp, event_type, actor_id, detail
		FROM audit_entries
		WHERE artifact_id = ?
		ORDER BY timestamp, rowid`, artifactID)
	if err != nil {
		return nil, fmt.Errorf("audit trail for %s: %w", artifactID, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var ts string
		if err := rows.Scan(&e.EntryID, &e.ArtifactID, &ts, &e.EventType, &e.ActorID, &e.Detail); err != nil {
			return nil, fmt.Errorf("audit trail for %s: %w", artifactID, err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("audit trail for %s: bad timestamp %q: %w", artifactID, ts, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit trail for %s: %w", artifactID, err)
	}
	return entries, nil
}

func (r *SQLiteRegistry) insertArtifact(ctx context.Context, tx *sql.Tx, artifact *domain.UsageRightArtifact) error {
	var exists int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM artifacts WHERE artifact_id = ?`, artifact.ArtifactID)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("insert artifact %s: %w", artifact.ArtifactID, err)
	}
	if exists > 0 {
		return fmt.Errorf("insert artifact %s: %w", artifact.ArtifactID, ErrAlreadyExists)
	}

	doc, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("insert artifact %s: %w", artifact.ArtifactID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO artifacts (artifact_id, state, created_at, doc) VALUES (?, ?, ?, ?)`,
		artifact.ArtifactID, string(artifact.State), artifact.CreatedAt.UTC().Format(timeLayout), string(doc))
	if err != nil {
		return fmt.Errorf("insert artifact %s: %w", artifact.ArtifactID, err)
	}
	return nil
}

func (r *SQLiteRegistry) updateArtifact(ctx context.Context, tx *sql.Tx, artifact *domain.UsageRightArtifact) error {
	doc, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("update artifact %s: %w", artifact.ArtifactID, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE artifacts SET state = ?, doc = ? WHERE artifact_id = ?`,
		string(artifact.State), string(doc), artifact.ArtifactID)
	if err != nil {
		return fmt.Errorf("update artifact %s: %w", artifact.ArtifactID, err)
	}
	return nil
}

func (r *SQLiteRegistry) getForUpdate(ctx context.Context, tx *sql.Tx, artifactID string) (*domain.UsageRightArtifact, error) {
	row := tx.QueryRowContext(ctx, `SELECT doc FROM artifacts WHERE artifact_id = ?`, artifactID)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeArtifact(doc)
}

func (r *SQLiteRegistry) insertAudit(ctx context.Context, tx *sql.Tx, artifactID string, eventType domain.EventType, actorID, detail string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_entries (entry_id, artifact_id, timestamp, event_type, actor_id, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.newID(), artifactID, r.clock().UTC().Format(timeLayout), string(eventType), actorID, detail)
	if err != nil {
		return fmt.Errorf("append audit for %s: %w", artifactID, err)
	}
	return nil
}

func decodeArtifact(doc string) (*domain.UsageRightArtifact, error) {
	var artifact domain.UsageRightArtifact
	if err := json.Unmarshal([]byte(doc), &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact document: %w", err)
	}
	return &artifact, nil
}
