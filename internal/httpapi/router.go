package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterRulesRoutes 注册规则控制 API 路由
func (r *Router) RegisterRulesRoutes(h *RulesHandler) {
	r.Handle("/rules/reload/", h.ServeReload)
	r.Handle("/rules/session/", h.ServeSession)
	r.Handle("/rules/watermeter/", h.ServeWaterMeter)
	r.Handle("/rules/", h.ServeRules)
}

// RegisterWaterMeterRoutes 注册水表查询路由
func (r *Router) RegisterWaterMeterRoutes(h *WaterMeterHandler) {
	r.Handle("/watermeters/serial/", h.ServeBySerial)
	r.Handle("/watermeters/code/", h.ServeByCode)
}
