// Package rules 实现租户规则会话的核心编排：
// 规则归并、流式会话生命周期（启动/热重载/停止）与会话注册表。
package rules

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/bus"
	"github.com/ianic-gr/alarms-service/internal/engine"
	"github.com/ianic-gr/alarms-service/internal/models"
)

// MetersEntryPoint 水表参照事实的固定入口点名称
const MetersEntryPoint = "metersEntry"

// SinkGlobal 规则结论可见的报警出口全局变量名
const SinkGlobal = "Sink"

// State 流式会话状态
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
	StateReloading    State = "RELOADING"
	StateStopped      State = "STOPPED"
)

// MeterSource 按租户查询水表参照事实
type MeterSource interface {
	GetByTenant(ctx context.Context, tenant string) ([]models.WaterMeter, error)
}

// EntitySource 按 (租户, 项目, 实体标签) 查询图谱实体事实
type EntitySource interface {
	GetEntities(ctx context.Context, tenant, project, entity string) ([]map[string]any, error)
}

// EventConsumer 事件流订阅生命周期（由 bus.StreamConsumer 实现）
type EventConsumer interface {
	Start(sessionID string, subs []bus.Subscription) error
	Stop(sessionID string)
}

// SessionDeps 流式会话的外部依赖
type SessionDeps struct {
	Meters   MeterSource
	Entities EntitySource
	Consumer EventConsumer
	// NewSink 为租户构造报警出口，注册为规则会话全局变量，
	// 规则结论通过它发出报警
	NewSink func(tenant string) any
	Engine  engine.SessionConfig
	Logger  *zap.Logger
}

// referenceFacts 预取的参照事实
// 热重载先完成预取再停旧会话，预取失败时旧会话保持运行
type referenceFacts struct {
	entities map[string][]map[string]any
	meters   []models.WaterMeter
}

// StreamSession 单租户流式规则会话
// 同一时刻每租户至多一个工作内存会话；生命周期操作
// （Start/ReloadRules/Stop）与参照事实更新互相串行
type StreamSession struct {
	tenant string
	deps   SessionDeps
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	info        models.TenantRulesInfo
	session     *engine.Session
	factHandles map[string]engine.FactHandle
	loopCancel  context.CancelFunc
}

// NewStreamSession 编译规则并创建会话（进入 INITIALIZING 状态）
// 任一规则编译失败则整体失败，不产生任何副作用
func NewStreamSession(tenant string, info models.TenantRulesInfo, deps SessionDeps) (*StreamSession, error) {
	logger := deps.Logger.With(zap.String("tenant", tenant))

	ss := &StreamSession{
		tenant:      tenant,
		deps:        deps,
		logger:      logger,
		state:       StateInitializing,
		info:        info,
		factHandles: make(map[string]engine.FactHandle),
	}

	session, err := ss.buildSession(info)
	if err != nil {
		return nil, err
	}
	ss.session = session

	logger.Info("Stream session created",
		zap.Int("rule_count", len(info.Rules)),
		zap.Strings("entry_points", info.EntryPoints),
		zap.Strings("entities", info.Entities),
	)
	return ss, nil
}

// Tenant 会话所属租户
func (ss *StreamSession) Tenant() string {
	return ss.tenant
}

// State 当前状态
func (ss *StreamSession) State() State {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.state
}

// EntryPoints 当前规则集声明的事件入口点
func (ss *StreamSession) EntryPoints() []string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return append([]string(nil), ss.info.EntryPoints...)
}

// Rules 当前规则集
func (ss *StreamSession) Rules() []models.Rule {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return append([]models.Rule(nil), ss.info.Rules...)
}

// buildSession 编译规则并创建配好全局变量的工作内存会话
func (ss *StreamSession) buildSession(info models.TenantRulesInfo) (*engine.Session, error) {
	rb, err := engine.CompileRuleBase(ss.tenant, info.Rules)
	if err != nil {
		return nil, err
	}

	refEntryPoints := append(append([]string(nil), info.Entities...), MetersEntryPoint)
	session := engine.NewSession(rb, ss.deps.Engine, ss.logger, refEntryPoints...)
	if ss.deps.NewSink != nil {
		session.SetGlobal(SinkGlobal, ss.deps.NewSink(ss.tenant))
	}
	return session, nil
}

// Start 启动会话：装载参照事实，启动评估循环，挂载流订阅
// 任一步失败时会话被完整停掉，不会留下半启动状态
func (ss *StreamSession) Start(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.state == StateStopped {
		return fmt.Errorf("stream session for tenant %s is stopped", ss.tenant)
	}

	facts, err := ss.fetchReferenceFacts(ctx, ss.info)
	if err != nil {
		ss.teardownLocked()
		ss.state = StateStopped
		return err
	}

	if err := ss.startLocked(facts); err != nil {
		ss.teardownLocked()
		ss.state = StateStopped
		return err
	}

	ss.state = StateRunning
	ss.logger.Info("Stream session started",
		zap.Int("water_meters", len(facts.meters)),
		zap.Int("entity_labels", len(facts.entities)),
	)
	return nil
}

// startLocked 装载预取的参照事实、启动评估循环并挂载订阅（须持锁调用）
func (ss *StreamSession) startLocked(facts *referenceFacts) error {
	handles, err := ss.seedReferenceFacts(ss.session, facts)
	if err != nil {
		return err
	}
	ss.factHandles = handles

	loopCtx, cancel := context.WithCancel(context.Background())
	ss.loopCancel = cancel
	go ss.session.FireUntilHalt(loopCtx)

	// 参照事实装载完成后才挂载订阅，规则对参照状态的 join 不会
	// 与初始摄入竞争
	if err := ss.deps.Consumer.Start(ss.tenant, ss.buildSubscriptions(ss.session, ss.info)); err != nil {
		return err
	}
	return nil
}

// fetchReferenceFacts 预取参照事实，不触碰工作内存
func (ss *StreamSession) fetchReferenceFacts(ctx context.Context, info models.TenantRulesInfo) (*referenceFacts, error) {
	facts := &referenceFacts{
		entities: make(map[string][]map[string]any, len(info.Entities)),
	}

	for _, entity := range info.Entities {
		if ss.deps.Entities == nil {
			ss.logger.Warn("Entity source not configured, skipping entity facts", zap.String("entity", entity))
			continue
		}
		results, err := ss.deps.Entities.GetEntities(ctx, ss.tenant, "", entity)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity facts %q: %w", entity, err)
		}
		facts.entities[entity] = results
	}

	if ss.deps.Meters != nil {
		meters, err := ss.deps.Meters.GetByTenant(ctx, ss.tenant)
		if err != nil {
			return nil, fmt.Errorf("failed to load water meters: %w", err)
		}
		facts.meters = meters
	}

	return facts, nil
}

// seedReferenceFacts 将预取的参照事实插入会话，返回水表句柄索引
func (ss *StreamSession) seedReferenceFacts(session *engine.Session, facts *referenceFacts) (map[string]engine.FactHandle, error) {
	for entity, results := range facts.entities {
		ep := session.EntryPoint(entity)
		if ep == nil {
			continue
		}
		for _, fact := range results {
			if _, err := ep.Insert(fact); err != nil {
				return nil, fmt.Errorf("failed to insert entity fact into %q: %w", entity, err)
			}
		}
	}

	handles := make(map[string]engine.FactHandle, len(facts.meters))
	metersEP := session.EntryPoint(MetersEntryPoint)
	for i := range facts.meters {
		meter := facts.meters[i]
		h, err := metersEP.Insert(&meter)
		if err != nil {
			return nil, fmt.Errorf("failed to insert water meter %q: %w", meter.Code, err)
		}
		handles[meter.Code] = h
	}
	return handles, nil
}

// buildSubscriptions 为规则声明的每个事件入口点构造一条主题订阅
// 规则文本未声明的入口点记录日志后跳过
func (ss *StreamSession) buildSubscriptions(session *engine.Session, info models.TenantRulesInfo) []bus.Subscription {
	subs := make([]bus.Subscription, 0, len(info.EntryPoints))
	for _, name := range info.EntryPoints {
		ep := session.EntryPoint(name)
		if ep == nil || !ep.IsEvent() {
			ss.logger.Warn("Entry point not declared by any rule, skipping subscription",
				zap.String("entry_point", name),
				zap.Strings("declared", session.EntryPointNames()),
			)
			continue
		}

		subs = append(subs, bus.Subscription{
			Topic: name + "-" + ss.tenant,
			Handler: func(m *models.AmrMeasurement) {
				if _, err := ep.Insert(m); err != nil {
					ss.logger.Warn("Measurement dropped",
						zap.String("entry_point", ep.Name()),
						zap.Error(err),
					)
				}
			},
		})
	}
	return subs
}

// ReloadRules 原子地替换规则集
// 先编译新规则并预取参照事实，任一步失败时直接返回错误，旧会话保持运行；
// 两者都就绪后才停旧换新
func (ss *StreamSession) ReloadRules(ctx context.Context, info models.TenantRulesInfo) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.state != StateRunning {
		return fmt.Errorf("stream session for tenant %s is not running (state %s)", ss.tenant, ss.state)
	}

	newSession, err := ss.buildSession(info)
	if err != nil {
		return fmt.Errorf("rule reload rejected: %w", err)
	}
	facts, err := ss.fetchReferenceFacts(ctx, info)
	if err != nil {
		return fmt.Errorf("rule reload rejected: %w", err)
	}

	ss.state = StateReloading
	ss.teardownLocked()

	ss.session = newSession
	ss.info = info
	if err := ss.startLocked(facts); err != nil {
		ss.teardownLocked()
		ss.state = StateStopped
		return fmt.Errorf("rule reload failed after teardown: %w", err)
	}

	ss.state = StateRunning
	ss.logger.Info("Rules reloaded",
		zap.Int("rule_count", len(info.Rules)),
		zap.Strings("entry_points", info.EntryPoints),
	)
	return nil
}

// UpdateWaterMeter 更新水表参照事实
// 句柄已存在则原地更新；不存在则插入并登记句柄
func (ss *StreamSession) UpdateWaterMeter(meter *models.WaterMeter) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.state == StateStopped {
		return fmt.Errorf("stream session for tenant %s is stopped", ss.tenant)
	}

	meter.NormalizeStatus()

	if h, ok := ss.factHandles[meter.Code]; ok {
		if err := ss.session.Update(h, meter); err != nil {
			return err
		}
		ss.logger.Info("Water meter fact updated", zap.String("code", meter.Code))
		return nil
	}

	ep := ss.session.EntryPoint(MetersEntryPoint)
	h, err := ep.Insert(meter)
	if err != nil {
		return err
	}
	ss.factHandles[meter.Code] = h
	ss.logger.Info("Water meter fact not found, inserted", zap.String("code", meter.Code))
	return nil
}

// DeleteWaterMeter 撤回水表参照事实
// 句柄不存在时仅记录日志，不做任何修改
func (ss *StreamSession) DeleteWaterMeter(meter *models.WaterMeter) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.state == StateStopped {
		return fmt.Errorf("stream session for tenant %s is stopped", ss.tenant)
	}

	h, ok := ss.factHandles[meter.Code]
	if !ok {
		ss.logger.Warn("Water meter fact not found, nothing to delete", zap.String("code", meter.Code))
		return nil
	}
	if err := ss.session.Retract(h); err != nil {
		return err
	}
	delete(ss.factHandles, meter.Code)
	ss.logger.Info("Water meter fact retracted", zap.String("code", meter.Code))
	return nil
}

// Stop 停止会话：卸载订阅、停止评估循环、销毁工作内存（幂等）
func (ss *StreamSession) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.state == StateStopped {
		return
	}
	ss.teardownLocked()
	ss.state = StateStopped
	ss.logger.Info("Stream session stopped")
}

// teardownLocked 卸载订阅并销毁当前工作内存会话（须持锁调用）
// 订阅先停，保证重载的停旧阶段不再有记录投递
func (ss *StreamSession) teardownLocked() {
	ss.deps.Consumer.Stop(ss.tenant)
	if ss.loopCancel != nil {
		ss.loopCancel()
		ss.loopCancel = nil
	}
	if ss.session != nil {
		ss.session.Dispose()
	}
	ss.factHandles = make(map[string]engine.FactHandle)
}
