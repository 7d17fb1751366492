package httpapi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/models"
)

// MeterLookup 水表查询接口（由 repository.WaterMeterRepository 实现）
type MeterLookup interface {
	GetBySerialNumber(ctx context.Context, serialNumber string) (*models.WaterMeter, error)
	GetByCode(ctx context.Context, code string) (*models.WaterMeter, error)
}

// WaterMeterHandler 水表查询 Handler
type WaterMeterHandler struct {
	meters MeterLookup
	logger *zap.Logger
}

// NewWaterMeterHandler 创建水表查询 Handler
func NewWaterMeterHandler(meters MeterLookup, logger *zap.Logger) *WaterMeterHandler {
	return &WaterMeterHandler{
		meters: meters,
		logger: logger,
	}
}

// ServeBySerial GET /watermeters/serial/{serial}
func (h *WaterMeterHandler) ServeBySerial(w http.ResponseWriter, r *http.Request) {
	h.serveLookup(w, r, "/watermeters/serial/", h.meters.GetBySerialNumber)
}

// ServeByCode GET /watermeters/code/{code}
func (h *WaterMeterHandler) ServeByCode(w http.ResponseWriter, r *http.Request) {
	h.serveLookup(w, r, "/watermeters/code/", h.meters.GetByCode)
}

func (h *WaterMeterHandler) serveLookup(
	w http.ResponseWriter,
	r *http.Request,
	prefix string,
	lookup func(context.Context, string) (*models.WaterMeter, error),
) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	meter, err := lookup(r.Context(), id)
	if err != nil {
		h.logger.Error("Water meter lookup failed", zap.String("id", id), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to look up water meter")
		return
	}
	if meter == nil {
		writeText(w, http.StatusNotFound, "Water meter not found")
		return
	}
	writeJSON(w, http.StatusOK, meter)
}
