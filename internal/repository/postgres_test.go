package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

func newTestPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgres(sqlx.NewDb(db, "pgx"), 0), mock
}

func TestPostgresAppendRawTrims(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO bess_raw\(device_id, payload\)`).
		WithArgs("BESS-001", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(`DELETE FROM bess_raw WHERE device_id = \$1 AND id < \(`).
		WithArgs("BESS-001", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.AppendRaw(context.Background(), "BESS-001", domain.Reading{BMSSOC: domain.Num(50)}, 3))
}

func TestPostgresAppendRawRollsBack(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO bess_raw`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := p.AppendRaw(context.Background(), "BESS-001", domain.Reading{}, 3)
	assert.EqualError(t, err, "disk full")
}

func TestPostgresLoadRawOldestFirst(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery(`SELECT payload FROM bess_raw WHERE device_id = \$1 ORDER BY id DESC LIMIT \$2`).
		WithArgs("BESS-001", 2).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).
			AddRow([]byte(`{"bms_soc":50}`)).
			AddRow([]byte(`{"bms_soc":40}`)))

	got, err := p.LoadRaw(context.Background(), "BESS-001", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 40.0, got[0].BMSSOC.Or(-1))
	assert.Equal(t, 50.0, got[1].BMSSOC.Or(-1))
}

func TestPostgresSessions(t *testing.T) {
	p, mock := newTestPostgres(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT device_id, online, streaming, config FROM bess_sessions WHERE device_id = \$1`).
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "online", "streaming", "config"}))
	_, err := p.LoadSession(ctx, "A")
	assert.True(t, errors.Is(err, ErrNotFound))

	mock.ExpectQuery(`SELECT device_id, online, streaming, config FROM bess_sessions ORDER BY device_id`).
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "online", "streaming", "config"}).
			AddRow("A", true, false, nil).
			AddRow("B", false, true, []byte(`{"interval":2,"date":"2024-03-01"}`)))
	list, err := p.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Online)
	assert.Nil(t, list[0].Config)
	require.NotNil(t, list[1].Config)
	assert.Equal(t, "2024-03-01", list[1].Config.Date)
	assert.Equal(t, 2.0, list[1].Config.Interval)
}
