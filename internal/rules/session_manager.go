package rules

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/models"
)

// RuleSource 规则存储读取接口（由 repository.RulesRepository 实现）
type RuleSource interface {
	GetByMode(ctx context.Context, mode string) ([]models.Rule, error)
	GetByTenantAndMode(ctx context.Context, tenant, mode string) ([]models.Rule, error)
}

// SessionManager 进程级流式会话注册表（按租户索引）
// 所有创建、重载、更新参照事实、销毁都经由它完成
type SessionManager struct {
	ruleSource RuleSource
	deps       SessionDeps
	logger     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*StreamSession
}

// NewSessionManager 创建会话管理器
func NewSessionManager(ruleSource RuleSource, deps SessionDeps, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		ruleSource: ruleSource,
		deps:       deps,
		logger:     logger,
		sessions:   make(map[string]*StreamSession),
	}
}

// Bootstrap 启动引导：读取全部流式规则，按租户归并并逐一创建会话
// 单租户创建失败不阻断其余租户
func (m *SessionManager) Bootstrap(ctx context.Context) error {
	allRules, err := m.ruleSource.GetByMode(ctx, models.ModeStream)
	if err != nil {
		return err
	}

	organized := OrganizeRules(allRules)
	m.logger.Info("Bootstrapping stream sessions",
		zap.Int("rule_count", len(allRules)),
		zap.Int("tenant_count", len(organized)),
	)

	for tenant, info := range organized {
		m.CreateStreamSession(ctx, tenant, info)
	}
	return nil
}

// CreateStreamSession 为租户创建并启动流式会话
// 已有会话时先停掉旧会话再替换，避免订阅泄漏；
// 失败时记录日志并返回 false，注册表不会留下半注册的会话。
// 编译与启动在注册表锁外进行，单租户的慢启动（实体拉取、建表查询）
// 不会阻塞其余租户的查询和事实更新
func (m *SessionManager) CreateStreamSession(ctx context.Context, tenant string, info models.TenantRulesInfo) bool {
	m.mu.Lock()
	prior, exists := m.sessions[tenant]
	delete(m.sessions, tenant)
	m.mu.Unlock()

	if exists {
		m.logger.Warn("Stream session already exists, replacing", zap.String("tenant", tenant))
		prior.Stop()
	}

	session, err := NewStreamSession(tenant, info, m.deps)
	if err != nil {
		m.logger.Error("Failed to create stream session",
			zap.String("tenant", tenant),
			zap.Error(err),
		)
		return false
	}
	if err := session.Start(ctx); err != nil {
		m.logger.Error("Failed to start stream session",
			zap.String("tenant", tenant),
			zap.Error(err),
		)
		return false
	}

	m.mu.Lock()
	racer := m.sessions[tenant]
	m.sessions[tenant] = session
	m.mu.Unlock()

	// 并发创建同一租户时后注册者生效，先注册的会话被停掉
	if racer != nil {
		m.logger.Warn("Concurrent stream session detected, replacing", zap.String("tenant", tenant))
		racer.Stop()
	}
	return true
}

// ReloadRulesForStreamSession 重读租户规则并热重载
// 规则为空时销毁会话；会话不存在或已停止而规则非空时创建新会话。
// 重载在换新阶段失败会把会话留在 STOPPED，此时注销死会话，
// 下一次重载走重建路径而不是永久 500
func (m *SessionManager) ReloadRulesForStreamSession(ctx context.Context, tenant string) error {
	tenantRules, err := m.ruleSource.GetByTenantAndMode(ctx, tenant, models.ModeStream)
	if err != nil {
		return err
	}

	if len(tenantRules) == 0 {
		m.logger.Info("No stream rules remain, destroying session", zap.String("tenant", tenant))
		m.DestroyStreamSession(tenant)
		return nil
	}

	info := OrganizeSingleTenantRules(tenantRules)

	m.mu.RLock()
	session := m.sessions[tenant]
	m.mu.RUnlock()

	if session != nil && session.State() == StateStopped {
		m.logger.Warn("Registered stream session is stopped, recreating", zap.String("tenant", tenant))
		m.DestroyStreamSession(tenant)
		session = nil
	}

	if session == nil {
		m.logger.Info("No stream session yet, creating from reloaded rules", zap.String("tenant", tenant))
		if !m.CreateStreamSession(ctx, tenant, info) {
			return fmt.Errorf("failed to create stream session for tenant %s", tenant)
		}
		return nil
	}

	if err := session.ReloadRules(ctx, info); err != nil {
		if session.State() == StateStopped {
			m.logger.Warn("Stream session died during reload, deregistering", zap.String("tenant", tenant))
			m.DestroyStreamSession(tenant)
		}
		return err
	}
	return nil
}

// UpdateWaterMetersFact 更新租户会话内的水表参照事实
// 会话不存在时返回 false
func (m *SessionManager) UpdateWaterMetersFact(tenant string, meter *models.WaterMeter) bool {
	m.mu.RLock()
	session := m.sessions[tenant]
	m.mu.RUnlock()

	if session == nil {
		m.logger.Warn("No stream session for water meter update", zap.String("tenant", tenant))
		return false
	}
	if err := session.UpdateWaterMeter(meter); err != nil {
		m.logger.Error("Failed to update water meter fact",
			zap.String("tenant", tenant),
			zap.String("code", meter.Code),
			zap.Error(err),
		)
		return false
	}
	return true
}

// DeleteWaterMetersFact 撤回租户会话内的水表参照事实
// 会话不存在时返回 false
func (m *SessionManager) DeleteWaterMetersFact(tenant string, meter *models.WaterMeter) bool {
	m.mu.RLock()
	session := m.sessions[tenant]
	m.mu.RUnlock()

	if session == nil {
		m.logger.Warn("No stream session for water meter delete", zap.String("tenant", tenant))
		return false
	}
	if err := session.DeleteWaterMeter(meter); err != nil {
		m.logger.Error("Failed to delete water meter fact",
			zap.String("tenant", tenant),
			zap.String("code", meter.Code),
			zap.Error(err),
		)
		return false
	}
	return true
}

// GetStreamSession 按租户取会话，不存在时返回 nil
func (m *SessionManager) GetStreamSession(tenant string) *StreamSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[tenant]
}

// DestroyStreamSession 停止并移除租户会话（不存在时为空操作）
func (m *SessionManager) DestroyStreamSession(tenant string) {
	m.mu.Lock()
	session := m.sessions[tenant]
	delete(m.sessions, tenant)
	m.mu.Unlock()

	if session != nil {
		session.Stop()
	}
}

// Shutdown 停止并移除全部会话（进程退出时调用）
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*StreamSession)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Stop()
	}
}
