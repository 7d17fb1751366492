package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/models"
)

type fakeLookup struct {
	meters map[string]*models.WaterMeter
	err    error
}

func (f *fakeLookup) GetBySerialNumber(ctx context.Context, serialNumber string) (*models.WaterMeter, error) {
	return f.meters[serialNumber], f.err
}

func (f *fakeLookup) GetByCode(ctx context.Context, code string) (*models.WaterMeter, error) {
	return f.meters[code], f.err
}

func setupMeterAPI(lookup *fakeLookup) *Router {
	router := NewRouter(zap.NewNop())
	router.RegisterWaterMeterRoutes(NewWaterMeterHandler(lookup, zap.NewNop()))
	return router
}

func TestWaterMeterLookup_BySerial(t *testing.T) {
	lookup := &fakeLookup{meters: map[string]*models.WaterMeter{
		"S1": {SerialNumber: "S1", Code: "M1", Status: "ACTIVE"},
	}}
	rec := doRequest(setupMeterAPI(lookup), http.MethodGet, "/watermeters/serial/S1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var meter models.WaterMeter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meter))
	assert.Equal(t, "M1", meter.Code)
}

func TestWaterMeterLookup_ByCodeNotFound(t *testing.T) {
	rec := doRequest(setupMeterAPI(&fakeLookup{}), http.MethodGet, "/watermeters/code/M9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWaterMeterLookup_StoreError(t *testing.T) {
	rec := doRequest(setupMeterAPI(&fakeLookup{err: errors.New("down")}), http.MethodGet, "/watermeters/code/M1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWaterMeterLookup_MethodNotAllowed(t *testing.T) {
	rec := doRequest(setupMeterAPI(&fakeLookup{}), http.MethodPost, "/watermeters/serial/S1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
