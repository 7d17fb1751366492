package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var waterMeterCols = []string{
	"serial_number", "client_id", "code", "udrometro", "old_hydrometer", "kwdikos_katanalwti",
	"radio_address", "geo_location", "latitude", "longitude", "app_id", "sector_id",
	"removal_indication", "length", "diameter", "type", "manufacturer", "model",
	"encryption_key", "encryption_protocol", "address", "contact", "status",
	"date", "created_at", "updated_at",
}

func meterRow(rows *sqlmock.Rows, serial, tenant, code, status string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		serial, tenant, code, nil, nil, nil,
		nil, nil, 38.24, 21.73, nil, nil,
		nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil, status,
		now, now, now,
	)
}

func TestWaterMeterRepository_GetByTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(waterMeterCols)
	meterRow(rows, "S1", "T", "M1", "active")
	meterRow(rows, "S2", "T", "M2", "removed")
	mock.ExpectQuery("FROM hydrometers WHERE client_id").
		WithArgs("T").
		WillReturnRows(rows)

	repo := NewWaterMeterRepository(db, zap.NewNop())
	meters, err := repo.GetByTenant(context.Background(), "T")
	require.NoError(t, err)
	require.Len(t, meters, 2)

	// 状态入库时统一大写
	assert.Equal(t, "M1", meters[0].Code)
	assert.Equal(t, "ACTIVE", meters[0].Status)
	assert.Equal(t, "REMOVED", meters[1].Status)
	require.NotNil(t, meters[0].Latitude)
	assert.InDelta(t, 38.24, *meters[0].Latitude, 0.001)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaterMeterRepository_GetBySerialNumber(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(waterMeterCols)
	meterRow(rows, "S1", "T", "M1", "active")
	mock.ExpectQuery("FROM hydrometers WHERE sensor_id").
		WithArgs("S1").
		WillReturnRows(rows)

	repo := NewWaterMeterRepository(db, zap.NewNop())
	meter, err := repo.GetBySerialNumber(context.Background(), "S1")
	require.NoError(t, err)
	require.NotNil(t, meter)
	assert.Equal(t, "S1", meter.SerialNumber)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaterMeterRepository_GetByCodeNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM hydrometers WHERE code").
		WithArgs("M9").
		WillReturnRows(sqlmock.NewRows(waterMeterCols))

	repo := NewWaterMeterRepository(db, zap.NewNop())
	meter, err := repo.GetByCode(context.Background(), "M9")
	require.NoError(t, err)
	assert.Nil(t, meter)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaterMeterRepository_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM hydrometers WHERE client_id").
		WithArgs("T").
		WillReturnError(assert.AnError)

	repo := NewWaterMeterRepository(db, zap.NewNop())
	_, err = repo.GetByTenant(context.Background(), "T")
	assert.Error(t, err)
}
