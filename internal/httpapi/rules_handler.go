package httpapi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/models"
	"github.com/ianic-gr/alarms-service/internal/rules"
)

const maxBodyBytes = 1 << 20

// SessionControl 会话管理器接口（由 rules.SessionManager 实现）
type SessionControl interface {
	ReloadRulesForStreamSession(ctx context.Context, tenant string) error
	CreateStreamSession(ctx context.Context, tenant string, info models.TenantRulesInfo) bool
	UpdateWaterMetersFact(tenant string, meter *models.WaterMeter) bool
	DeleteWaterMetersFact(tenant string, meter *models.WaterMeter) bool
}

// RuleStore 规则存储写入接口（由 repository.RulesRepository 实现）
type RuleStore interface {
	GetByTenantAndMode(ctx context.Context, tenant, mode string) ([]models.Rule, error)
	Insert(ctx context.Context, rule *models.Rule) error
	Update(ctx context.Context, rule *models.Rule) error
	Delete(ctx context.Context, rule *models.Rule) error
}

// RulesHandler 规则控制 API Handler
type RulesHandler struct {
	manager SessionControl
	store   RuleStore
	logger  *zap.Logger
}

// NewRulesHandler 创建规则控制 Handler
func NewRulesHandler(manager SessionControl, store RuleStore, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{
		manager: manager,
		store:   store,
		logger:  logger,
	}
}

// ============================================
// PUT /rules/reload/{tenant} 热重载租户规则
// ============================================

func (h *RulesHandler) ServeReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := strings.TrimPrefix(r.URL.Path, "/rules/reload/")
	if tenant == "" || strings.Contains(tenant, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := h.manager.ReloadRulesForStreamSession(r.Context(), tenant); err != nil {
		h.logger.Error("Rule reload failed", zap.String("tenant", tenant), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to reload rules")
		return
	}
	writeText(w, http.StatusOK, "Rules reloaded successfully")
}

// ============================================
// POST /rules/session/{tenant}?mode=stream 创建流式会话
// ============================================

func (h *RulesHandler) ServeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := strings.TrimPrefix(r.URL.Path, "/rules/session/")
	if tenant == "" || strings.Contains(tenant, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// mode 缺省为 stream；本服务只处理流式规则
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = models.ModeStream
	}
	if mode != models.ModeStream {
		writeText(w, http.StatusBadRequest, "Unsupported rule mode: "+mode)
		return
	}

	tenantRules, err := h.store.GetByTenantAndMode(r.Context(), tenant, mode)
	if err != nil {
		h.logger.Error("Failed to read rules", zap.String("tenant", tenant), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Failed to read rules")
		return
	}
	if len(tenantRules) == 0 {
		writeText(w, http.StatusBadRequest, "No rules found for tenant "+tenant)
		return
	}

	info := rules.OrganizeSingleTenantRules(tenantRules)
	if !h.manager.CreateStreamSession(r.Context(), tenant, info) {
		writeText(w, http.StatusInternalServerError, "Failed to create stream session")
		return
	}
	writeText(w, http.StatusOK, "Stream session created successfully")
}

// ============================================
// PUT/DELETE /rules/watermeter/{tenant} 水表参照事实维护
// ============================================

func (h *RulesHandler) ServeWaterMeter(w http.ResponseWriter, r *http.Request) {
	tenant := strings.TrimPrefix(r.URL.Path, "/rules/watermeter/")
	if tenant == "" || strings.Contains(tenant, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var meter models.WaterMeter
	if err := readBodyJSON(r, maxBodyBytes, &meter); err != nil || meter.Code == "" {
		writeText(w, http.StatusBadRequest, "Invalid water meter payload")
		return
	}

	switch r.Method {
	case http.MethodPut:
		if !h.manager.UpdateWaterMetersFact(tenant, &meter) {
			writeText(w, http.StatusNotFound, "No stream session for tenant "+tenant)
			return
		}
		writeText(w, http.StatusOK, "Water meter updated successfully")
	case http.MethodDelete:
		if !h.manager.DeleteWaterMetersFact(tenant, &meter) {
			writeText(w, http.StatusNotFound, "No stream session for tenant "+tenant)
			return
		}
		writeText(w, http.StatusOK, "Water meter deleted successfully")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ============================================
// POST/PUT /rules/{tenant}、DELETE /rules/{tenant}/{name} 规则维护
// ============================================

func (h *RulesHandler) ServeRules(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/rules/")
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.Method == http.MethodDelete {
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.deleteRule(w, r, parts[0], parts[1])
		return
	}

	if strings.Contains(rest, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.addRule(w, r, rest)
	case http.MethodPut:
		h.updateRule(w, r, rest)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// addRule 新增规则（tenant 以路径为准，忽略 body 内的值）
func (h *RulesHandler) addRule(w http.ResponseWriter, r *http.Request, tenant string) {
	var rule models.Rule
	if err := readBodyJSON(r, maxBodyBytes, &rule); err != nil || rule.Name == "" {
		writeText(w, http.StatusBadRequest, "Invalid rule payload")
		return
	}
	rule.Tenant = tenant
	if rule.Mode == "" {
		rule.Mode = models.ModeStream
	}
	if !models.IsValidMode(rule.Mode) {
		writeText(w, http.StatusBadRequest, "Unsupported rule mode: "+rule.Mode)
		return
	}

	if err := h.store.Insert(r.Context(), &rule); err != nil {
		h.logger.Error("Failed to insert rule",
			zap.String("tenant", tenant),
			zap.String("rule", rule.Name),
			zap.Error(err),
		)
		writeText(w, http.StatusInternalServerError, "Failed to add rule")
		return
	}
	writeText(w, http.StatusOK, "Rule added successfully")
}

// updateRule 更新规则（tenant 以路径为准）
func (h *RulesHandler) updateRule(w http.ResponseWriter, r *http.Request, tenant string) {
	var rule models.Rule
	if err := readBodyJSON(r, maxBodyBytes, &rule); err != nil || rule.Name == "" {
		writeText(w, http.StatusBadRequest, "Invalid rule payload")
		return
	}
	rule.Tenant = tenant
	if rule.Mode == "" {
		rule.Mode = models.ModeStream
	}

	if err := h.store.Update(r.Context(), &rule); err != nil {
		h.logger.Error("Failed to update rule",
			zap.String("tenant", tenant),
			zap.String("rule", rule.Name),
			zap.Error(err),
		)
		writeText(w, http.StatusInternalServerError, "Failed to update rule")
		return
	}
	writeText(w, http.StatusOK, "Rule updated successfully")
}

// deleteRule 删除规则（mode 来自查询参数，缺省 stream）
func (h *RulesHandler) deleteRule(w http.ResponseWriter, r *http.Request, tenant, name string) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = models.ModeStream
	}
	rule := models.Rule{Tenant: tenant, Mode: mode, Name: name}

	if err := h.store.Delete(r.Context(), &rule); err != nil {
		h.logger.Error("Failed to delete rule",
			zap.String("tenant", tenant),
			zap.String("rule", name),
			zap.Error(err),
		)
		writeText(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}
	writeText(w, http.StatusOK, "Rule deleted successfully")
}
