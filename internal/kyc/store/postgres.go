package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kycflow/internal/intake/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	txcontext "kycflow/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Migrate creates the draft table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate draft schema: %w", err)
	}
	return nil
}

// Postgres stores drafts in kyc_drafts with sections as JSONB.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const selectDraft = `
	SELECT user_id, role, sections, status, progress_percent, updated_at
	FROM kyc_drafts
`

func (s *Postgres) FindDraft(ctx context.Context, userID id.UserID, role id.Role) (*models.Draft, error) {
	row := s.db.QueryRowContext(ctx, selectDraft+`WHERE user_id = $1 AND role = $2`,
		uuid.UUID(userID), string(role))
	d, err := scanDraft(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find draft: %w", err)
	}
	return d, nil
}

// Execute locks the row with SELECT ... FOR UPDATE, runs fn and upserts the
// result in one transaction. fn receives a context carrying the transaction
// so audit rows written through it commit or roll back with the draft.
func (s *Postgres) Execute(ctx context.Context, userID id.UserID, role id.Role, fn MutateFunc) (*models.Draft, error) {
	var working *models.Draft
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectDraft+`WHERE user_id = $1 AND role = $2 FOR UPDATE`,
			uuid.UUID(userID), string(role))
		var err error
		working, err = scanDraft(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			working = models.NewDraft(userID, role, time.Time{})
		case err != nil:
			return fmt.Errorf("lock draft: %w", err)
		}

		if err := fn(ctx, working); err != nil {
			return err
		}

		sections, err := json.Marshal(working.Sections)
		if err != nil {
			return fmt.Errorf("encode sections: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kyc_drafts (user_id, role, sections, status, progress_percent, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, role) DO UPDATE SET
				sections = EXCLUDED.sections,
				status = EXCLUDED.status,
				progress_percent = EXCLUDED.progress_percent,
				updated_at = EXCLUDED.updated_at
		`,
			uuid.UUID(userID),
			string(role),
			sections,
			string(working.Status),
			working.ProgressPercent,
			working.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert draft: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return working, nil
}

func (s *Postgres) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Draft, error) {
	query := selectDraft + `WHERE status = $1 ORDER BY updated_at ASC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var out []*models.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return out, nil
}

func scanDraft(row rowScanner) (*models.Draft, error) {
	var (
		userID   uuid.UUID
		role     string
		sections []byte
		status   string
		d        models.Draft
	)
	if err := row.Scan(&userID, &role, &sections, &status, &d.ProgressPercent, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.UserID = id.UserID(userID)
	d.Role = id.Role(role)
	d.Status = models.Status(status)
	if err := json.Unmarshal(sections, &d.Sections); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	if d.Sections == nil {
		d.Sections = models.Group{}
	}
	return &d, nil
}
