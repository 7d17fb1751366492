package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/models"
)

// WaterMeterRepository 水表仓库（PostgreSQL hydrometers 表）
type WaterMeterRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWaterMeterRepository 创建水表仓库
func NewWaterMeterRepository(db *sql.DB, logger *zap.Logger) *WaterMeterRepository {
	return &WaterMeterRepository{
		db:     db,
		logger: logger,
	}
}

const waterMeterColumns = `
	serial_number, client_id, code, udrometro, old_hydrometer, kwdikos_katanalwti,
	radio_address, geo_location, latitude, longitude, app_id, sector_id,
	removal_indication, length, diameter, type, manufacturer, model,
	encryption_key, encryption_protocol, address, contact, status,
	date, created_at, updated_at`

// GetByTenant 按租户（client_id）查询全部水表
func (r *WaterMeterRepository) GetByTenant(ctx context.Context, tenant string) ([]models.WaterMeter, error) {
	query := `SELECT ` + waterMeterColumns + ` FROM hydrometers WHERE client_id = $1`

	rows, err := r.db.QueryContext(ctx, query, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query water meters: %w", err)
	}
	defer rows.Close()

	var meters []models.WaterMeter
	for rows.Next() {
		meter, err := scanWaterMeter(rows)
		if err != nil {
			return nil, err
		}
		meters = append(meters, *meter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate water meters: %w", err)
	}

	r.logger.Debug("Loaded water meters",
		zap.String("tenant", tenant),
		zap.Int("count", len(meters)),
	)
	return meters, nil
}

// GetBySerialNumber 按序列号查询单个水表
func (r *WaterMeterRepository) GetBySerialNumber(ctx context.Context, serialNumber string) (*models.WaterMeter, error) {
	query := `SELECT ` + waterMeterColumns + ` FROM hydrometers WHERE sensor_id = $1`
	return r.queryOne(ctx, query, serialNumber)
}

// GetByCode 按编码查询单个水表
func (r *WaterMeterRepository) GetByCode(ctx context.Context, code string) (*models.WaterMeter, error) {
	query := `SELECT ` + waterMeterColumns + ` FROM hydrometers WHERE code = $1`
	return r.queryOne(ctx, query, code)
}

// queryOne 查询单行，未命中返回 nil
func (r *WaterMeterRepository) queryOne(ctx context.Context, query string, arg any) (*models.WaterMeter, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query water meter: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read water meter: %w", err)
		}
		return nil, nil
	}
	return scanWaterMeter(rows)
}

// scanWaterMeter 将一行映射为 WaterMeter，并归一化状态
func scanWaterMeter(rows *sql.Rows) (*models.WaterMeter, error) {
	var m models.WaterMeter
	var (
		udrometro, oldHydrometer, kwdikos, radioAddress, geoLocation   sql.NullString
		appID, sectorID, removalIndication, length, diameter, mType    sql.NullString
		manufacturer, model, encryptionKey, encryptionProtocol         sql.NullString
		address, contact, status                                       sql.NullString
		latitude, longitude                                            sql.NullFloat64
		date, createdAt, updatedAt                                     sql.NullTime
	)

	if err := rows.Scan(
		&m.SerialNumber, &m.ClientID, &m.Code, &udrometro, &oldHydrometer, &kwdikos,
		&radioAddress, &geoLocation, &latitude, &longitude, &appID, &sectorID,
		&removalIndication, &length, &diameter, &mType, &manufacturer, &model,
		&encryptionKey, &encryptionProtocol, &address, &contact, &status,
		&date, &createdAt, &updatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan water meter: %w", err)
	}

	m.Udrometro = udrometro.String
	m.OldHydrometer = oldHydrometer.String
	m.KwdikosKatanalwti = kwdikos.String
	m.RadioAddress = radioAddress.String
	m.GeoLocation = geoLocation.String
	m.AppID = appID.String
	m.SectorID = sectorID.String
	m.RemovalIndication = removalIndication.String
	m.Length = length.String
	m.Diameter = diameter.String
	m.Type = mType.String
	m.Manufacturer = manufacturer.String
	m.Model = model.String
	m.EncryptionKey = encryptionKey.String
	m.EncryptionProtocol = encryptionProtocol.String
	m.Address = address.String
	m.Contact = contact.String
	m.Status = status.String
	if latitude.Valid {
		m.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		m.Longitude = &longitude.Float64
	}
	if date.Valid {
		m.Date = &date.Time
	}
	if createdAt.Valid {
		m.CreatedAt = &createdAt.Time
	}
	if updatedAt.Valid {
		m.UpdatedAt = &updatedAt.Time
	}

	m.NormalizeStatus()
	return &m, nil
}
