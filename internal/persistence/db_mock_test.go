package persistence

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-factory/internal/deltasync"
	"github.com/talgya/mini-factory/internal/energy"
	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/machines"
	"github.com/talgya/mini-factory/internal/worldctx"
)

func mockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &DB{conn: sqlx.NewDb(conn, "sqlmock")}, mock
}

func TestSaveUnitsRollsBackOnInsertFailure(t *testing.T) {
	db, mock := mockDB(t)
	diskFull := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM units")).WillReturnResult(sqlmock.NewResult(0, 3))
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO units"))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(diskFull)
	mock.ExpectRollback()

	err := db.SaveUnits([]Record{
		{ID: "a", Kind: "bottler", SchemaVersion: 2, State: []byte(`{}`)},
		{ID: "b", Kind: "raintank", SchemaVersion: 2, State: []byte(`{}`)},
	})
	require.ErrorIs(t, err, diskFull)
	assert.ErrorContains(t, err, "insert unit b")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveLinksCommitsInOneTransaction(t *testing.T) {
	db, mock := mockDB(t)
	link := engine.Link{From: uuid.New(), To: uuid.New()}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM links")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO links")).
		WithArgs(link.From.String(), link.To.String()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, db.SaveLinks([]engine.Link{link}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWorldStateIsOneTransaction(t *testing.T) {
	diskFull := errors.New("disk full")
	tests := []struct {
		name    string
		failAt  string
		wantErr string
	}{
		{"links fail", "DELETE FROM links", "save links"},
		{"meta fails", "INSERT OR REPLACE INTO world_meta", "save meta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := mockDB(t)
			sim := engine.NewSimulation(testEnv(t), energy.NewGrid(100, true), deltasync.NewHub(4))
			_, err := sim.Place(machines.KindBottler, worldctx.Pos{})
			require.NoError(t, err)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("DELETE FROM units")).WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO units")).
				ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
			links := mock.ExpectExec(regexp.QuoteMeta("DELETE FROM links"))
			if tt.failAt == "DELETE FROM links" {
				links.WillReturnError(diskFull)
			} else {
				links.WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexp.QuoteMeta(tt.failAt)).WillReturnError(diskFull)
			}
			// The units already written go with it; nothing commits.
			mock.ExpectRollback()

			err = db.SaveWorldState(sim)
			require.ErrorIs(t, err, diskFull)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoadWorldStateReportsMetaFailure(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM world_meta")).
		WithArgs("last_tick").
		WillReturnError(errors.New("disk I/O error"))

	sim := engine.NewSimulation(testEnv(t), energy.NewGrid(100, true), deltasync.NewHub(4))
	_, err := db.LoadWorldState(sim)
	assert.ErrorContains(t, err, "load meta")
	assert.Zero(t, sim.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadLinksRejectsCorruptIDs(t *testing.T) {
	db, mock := mockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT from_id, to_id FROM links")).
		WillReturnRows(sqlmock.NewRows([]string{"from_id", "to_id"}).AddRow("not-a-uuid", uuid.NewString()))

	_, err := db.LoadLinks()
	assert.ErrorIs(t, err, ErrCorruptRecord)
}
