package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjumptech/grule-rule-engine/ast"
	gruleengine "github.com/hyperjumptech/grule-rule-engine/engine"
	"go.uber.org/zap"
)

var (
	// ErrSessionDisposed 会话已销毁，插入被丢弃
	ErrSessionDisposed = errors.New("engine: session disposed")
	// ErrSessionHalted 评估循环已停止
	ErrSessionHalted = errors.New("engine: session halted")
)

// SessionConfig 会话配置
type SessionConfig struct {
	// 事件窗口保留时长
	WindowRetention time.Duration
	// 单次评估最大循环次数
	MaxCycle int
	// 插入队列长度（写满时阻塞，形成对上游的背压）
	InsertBuffer int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.WindowRetention <= 0 {
		c.WindowRetention = time.Hour
	}
	if c.MaxCycle <= 0 {
		c.MaxCycle = 100
	}
	if c.InsertBuffer <= 0 {
		c.InsertBuffer = 256
	}
	return c
}

// queuedEvent 待评估事件
type queuedEvent struct {
	entryPoint *EntryPoint
	event      Event
}

// Session 工作内存会话（事件时间处理模式）
// 事件入口点来自规则库，参照入口点由调用方显式声明；
// 评估循环独占一个 goroutine，直到被显式停止
type Session struct {
	rb     *RuleBase
	cfg    SessionConfig
	logger *zap.Logger
	eng    *gruleengine.GruleEngine

	// mu 保护参照事实与全局对象；评估期间持读锁
	mu          sync.RWMutex
	globals     map[string]any
	entryPoints map[string]*EntryPoint
	refs        map[FactHandle]*EntryPoint
	nextHandle  uint64

	inserts  chan queuedEvent
	halt     chan struct{}
	done     chan struct{}
	haltOnce sync.Once
	started  atomic.Bool
	disposed atomic.Bool
}

// EntryPoint 命名入口点
// 事件入口点（kb != nil）接收事件并触发评估；
// 参照入口点持有长生命周期事实并返回句柄
type EntryPoint struct {
	name    string
	session *Session
	kb      *ast.KnowledgeBase
	window  *EventWindow
	refs    *RefIndex
}

// Name 入口点名称
func (ep *EntryPoint) Name() string {
	return ep.name
}

// IsEvent 是否为事件入口点（由规则库声明，接收事件并触发评估）
func (ep *EntryPoint) IsEvent() bool {
	return ep.kb != nil
}

// Refs 入口点的参照事实索引，事件入口点返回 nil
func (ep *EntryPoint) Refs() *RefIndex {
	return ep.refs
}

// NewSession 创建会话
// referenceEntryPoints 为参照事实入口点（实体标签及 metersEntry）
func NewSession(rb *RuleBase, cfg SessionConfig, logger *zap.Logger, referenceEntryPoints ...string) *Session {
	cfg = cfg.withDefaults()

	eng := gruleengine.NewGruleEngine()
	eng.MaxCycle = uint64(cfg.MaxCycle)

	s := &Session{
		rb:          rb,
		cfg:         cfg,
		logger:      logger,
		eng:         eng,
		globals:     make(map[string]any),
		entryPoints: make(map[string]*EntryPoint),
		refs:        make(map[FactHandle]*EntryPoint),
		inserts:     make(chan queuedEvent, cfg.InsertBuffer),
		halt:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	for ep, kb := range rb.knowledge {
		s.entryPoints[ep] = &EntryPoint{
			name:    ep,
			session: s,
			kb:      kb,
			window:  newEventWindow(cfg.WindowRetention),
		}
	}
	for _, name := range referenceEntryPoints {
		if _, exists := s.entryPoints[name]; exists {
			continue
		}
		s.entryPoints[name] = &EntryPoint{
			name:    name,
			session: s,
			refs:    newRefIndex(name),
		}
	}

	return s
}

// SetGlobal 注册暴露给规则后件的全局对象（须在启动前调用）
func (s *Session) SetGlobal(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals[name] = value
}

// EntryPoint 按名称取入口点，未声明的返回 nil
func (s *Session) EntryPoint(name string) *EntryPoint {
	return s.entryPoints[name]
}

// EntryPointNames 会话内全部入口点名称（字典序）
func (s *Session) EntryPointNames() []string {
	names := make([]string, 0, len(s.entryPoints))
	for name := range s.entryPoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Insert 插入事实
// 事件入队评估循环（队列满时阻塞）；参照事实记录索引并返回句柄
func (ep *EntryPoint) Insert(fact any) (FactHandle, error) {
	s := ep.session
	if s.disposed.Load() {
		return 0, ErrSessionDisposed
	}

	if ev, ok := fact.(Event); ok {
		select {
		case s.inserts <- queuedEvent{entryPoint: ep, event: ev}:
			return 0, nil
		case <-s.halt:
			return 0, ErrSessionHalted
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ep.refs == nil {
		ep.refs = newRefIndex(ep.name)
	}
	s.nextHandle++
	h := FactHandle(s.nextHandle)
	ep.refs.add(h, fact)
	s.refs[h] = ep
	return h, nil
}

// Update 按句柄替换参照事实
func (s *Session) Update(h FactHandle, fact any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.refs[h]
	if !ok {
		return fmt.Errorf("engine: unknown fact handle %d", h)
	}
	ep.refs.remove(h)
	ep.refs.add(h, fact)
	return nil
}

// Retract 按句柄撤回参照事实
func (s *Session) Retract(h FactHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.refs[h]
	if !ok {
		return fmt.Errorf("engine: unknown fact handle %d", h)
	}
	ep.refs.remove(h)
	delete(s.refs, h)
	return nil
}

// FireUntilHalt 评估循环：阻塞消费事件直到被显式停止
// 单条事件的评估错误只记录日志，循环不会因此终止
func (s *Session) FireUntilHalt(ctx context.Context) {
	s.started.Store(true)
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.halt:
			return
		case qe := <-s.inserts:
			s.evaluate(ctx, qe)
		}
	}
}

// evaluate 评估单条事件
func (s *Session) evaluate(ctx context.Context, qe queuedEvent) {
	ep := qe.entryPoint
	if ep.kb == nil {
		// 参照入口点不接收事件
		s.logger.Warn("Event dropped on reference entry point", zap.String("entry_point", ep.name))
		return
	}
	if ep.window == nil {
		ep.window = newEventWindow(s.cfg.WindowRetention)
	}

	s.mu.Lock()
	ep.window.add(qe.event)
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	dc := ast.NewDataContext()
	// 参照索引与事件窗口先注册，事件本身最后注册（同名时事件优先）
	for name, other := range s.entryPoints {
		if name == ep.name {
			continue
		}
		if other.refs != nil {
			if err := dc.Add(name, other.refs); err != nil {
				s.logger.Warn("Failed to bind reference index", zap.String("entry_point", name), zap.Error(err))
			}
		}
	}
	for name, g := range s.globals {
		if err := dc.Add(name, g); err != nil {
			s.logger.Warn("Failed to bind global", zap.String("name", name), zap.Error(err))
		}
	}
	if err := dc.Add(ep.name+"Window", ep.window); err != nil {
		s.logger.Warn("Failed to bind event window", zap.String("entry_point", ep.name), zap.Error(err))
	}
	if err := dc.Add(ep.name, qe.event); err != nil {
		s.logger.Warn("Failed to bind event", zap.String("entry_point", ep.name), zap.Error(err))
		return
	}

	if err := s.eng.ExecuteWithContext(ctx, dc, ep.kb); err != nil {
		s.logger.Error("Rule evaluation failed",
			zap.String("entry_point", ep.name),
			zap.String("event_key", qe.event.EventKey()),
			zap.Error(err),
		)
	}
}

// Halt 停止评估循环（幂等）
func (s *Session) Halt() {
	s.haltOnce.Do(func() {
		close(s.halt)
	})
}

// Dispose 销毁会话：停止循环并使后续插入立即失败（幂等）
func (s *Session) Dispose() {
	s.Halt()
	if s.disposed.Swap(true) {
		return
	}

	if s.started.Load() {
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			s.logger.Warn("Session evaluation loop did not stop within 5 seconds")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = make(map[FactHandle]*EntryPoint)
	for _, ep := range s.entryPoints {
		if ep.refs != nil {
			ep.refs = newRefIndex(ep.name)
		}
	}
}
