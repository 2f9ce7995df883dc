// Package postgres implements the stub segment store against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/repository"
)

// uniqueViolation is the SQLSTATE raised by segments_tenant_name_key.
const uniqueViolation = "23505"

const segmentColumns = `id, tenant_id, name, type, rules, match_count, created_at, updated_at`

// SegmentRepo stores segments in the segments table; rules are JSONB.
type SegmentRepo struct{ db *sql.DB }

// NewSegmentRepo creates a Postgres-backed segment store.
func NewSegmentRepo(db *sql.DB) *SegmentRepo { return &SegmentRepo{db: db} }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSegment(row rowScanner) (*domain.Segment, error) {
	var (
		s     domain.Segment
		rules []byte
	)
	if err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Type, &rules, &s.MatchCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if len(rules) > 0 && string(rules) != "null" {
		var g domain.RuleGroup
		if err := json.Unmarshal(rules, &g); err != nil {
			return nil, fmt.Errorf("decode rules of segment %d: %w", s.ID, err)
		}
		s.Rules = &g
	}
	return &s, nil
}

func encodeRules(g domain.RuleGroup) ([]byte, error) {
	if g.Rules == nil {
		g.Rules = []domain.Rule{}
	}
	return json.Marshal(g)
}

func mapErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return repository.ErrDuplicateName
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *SegmentRepo) List(ctx context.Context, tenantID int64) ([]domain.Segment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+segmentColumns+`
		FROM segments
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Segment, 0)
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return out, nil
}

func (r *SegmentRepo) Get(ctx context.Context, tenantID, id int64) (*domain.Segment, error) {
	s, err := scanSegment(r.db.QueryRowContext(ctx, `
		SELECT `+segmentColumns+`
		FROM segments
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
	if err != nil {
		return nil, mapErr("get segment", err)
	}
	return s, nil
}

func (r *SegmentRepo) Create(ctx context.Context, tenantID int64, in domain.SegmentInput) (*domain.Segment, error) {
	rules, err := encodeRules(in.Rules)
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	s, err := scanSegment(r.db.QueryRowContext(ctx, `
		INSERT INTO segments (tenant_id, name, type, rules, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+segmentColumns,
		tenantID, in.Name, in.Type, rules))
	if err != nil {
		return nil, mapErr("create segment", err)
	}
	return s, nil
}

// Update applies the non-nil fields of p.
func (r *SegmentRepo) Update(ctx context.Context, tenantID, id int64, p domain.SegmentPatch) (*domain.Segment, error) {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Type != nil {
		add("type", *p.Type)
	}
	if p.Rules != nil {
		rules, err := encodeRules(*p.Rules)
		if err != nil {
			return nil, fmt.Errorf("encode rules: %w", err)
		}
		add("rules", rules)
	}
	sets = append(sets, "updated_at = NOW()")

	q := fmt.Sprintf("UPDATE segments SET %s WHERE id = $%d AND tenant_id = $%d RETURNING %s",
		strings.Join(sets, ", "), idx, idx+1, segmentColumns)
	args = append(args, id, tenantID)

	s, err := scanSegment(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		return nil, mapErr("update segment", err)
	}
	return s, nil
}

func (r *SegmentRepo) Delete(ctx context.Context, tenantID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM segments WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks the database connection.
func (r *SegmentRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
