package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/repository"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var columns = []string{"id", "tenant_id", "name", "type", "rules", "match_count", "created_at", "updated_at"}

func TestListOrdersNewestFirst(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSegmentRepo(db)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM segments WHERE tenant_id = \$1 ORDER BY created_at DESC, id DESC`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(2, 3, "VIP", "static", []byte(`{"operator":"and","rules":[{"field":"tag","operator":"has_tag","value":"vip"}]}`), 5, now, now).
			AddRow(1, 3, "Legacy", "dynamic", nil, 0, now, now))

	segs, err := repo.List(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, domain.OpHasTag, segs[0].Rules.Rules[0].Operator)
	assert.Equal(t, 5, segs[0].MatchCount)
	assert.Nil(t, segs[1].Rules)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSegmentRepo(db)

	mock.ExpectQuery(`SELECT (.+) FROM segments WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs(int64(9), int64(1)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 1, 9)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateStoresRulesAsJSON(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSegmentRepo(db)
	now := time.Now().UTC()
	rulesJSON := []byte(`{"operator":"and","rules":[{"field":"email","operator":"ends_with","value":".edu"}]}`)

	mock.ExpectQuery(`INSERT INTO segments \(tenant_id, name, type, rules, created_at, updated_at\)`).
		WithArgs(int64(1), "Students", "dynamic", rulesJSON).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(11, 1, "Students", "dynamic", rulesJSON, 0, now, now))

	seg, err := repo.Create(context.Background(), 1, domain.SegmentInput{
		Name: "Students",
		Type: domain.SegmentDynamic,
		Rules: domain.RuleGroup{Operator: domain.CombinatorAnd, Rules: []domain.Rule{
			{Field: domain.FieldEmail, Operator: domain.OpEndsWith, Value: ".edu"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), seg.ID)
	assert.Equal(t, ".edu", seg.Rules.Rules[0].Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateName(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSegmentRepo(db)

	mock.ExpectQuery(`INSERT INTO segments`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "segments_tenant_name_key"})

	_, err := repo.Create(context.Background(), 1, domain.SegmentInput{Name: "VIP", Type: domain.SegmentStatic})
	assert.ErrorIs(t, err, repository.ErrDuplicateName)
}

func TestUpdateOnlySetsProvidedFields(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSegmentRepo(db)
	now := time.Now().UTC()
	name := "Renamed"

	mock.ExpectQuery(`UPDATE segments SET name = \$1, updated_at = NOW\(\) WHERE id = \$2 AND tenant_id = \$3 RETURNING`).
		WithArgs("Renamed", int64(4), int64(1)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(4, 1, "Renamed", "dynamic", []byte(`{"operator":"and","rules":[]}`), 0, now, now))

	seg, err := repo.Update(context.Background(), 1, 4, domain.SegmentPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", seg.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissing(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSegmentRepo(db)
	static := domain.SegmentStatic

	mock.ExpectQuery(`UPDATE segments SET type = \$1, updated_at = NOW\(\)`).
		WithArgs("static", int64(4), int64(1)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Update(context.Background(), 1, 4, domain.SegmentPatch{Type: &static})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDelete(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSegmentRepo(db)

	mock.ExpectExec(`DELETE FROM segments WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs(int64(4), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM segments`).
		WithArgs(int64(4), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 1, 4))
	assert.ErrorIs(t, repo.Delete(context.Background(), 1, 4), repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
