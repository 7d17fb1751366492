package rules

import (
	"context"
	"sort"
	"sync"

	"github.com/ianic-gr/alarms-service/internal/bus"
	"github.com/ianic-gr/alarms-service/internal/models"
)

// fakeRuleSource 可替换返回值的规则存储
type fakeRuleSource struct {
	mu    sync.Mutex
	rules []models.Rule
	err   error
}

func (f *fakeRuleSource) set(rules []models.Rule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = rules
}

func (f *fakeRuleSource) GetByMode(ctx context.Context, mode string) ([]models.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Rule
	for _, r := range f.rules {
		if r.Mode == mode {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleSource) GetByTenantAndMode(ctx context.Context, tenant, mode string) ([]models.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Rule
	for _, r := range f.rules {
		if r.Tenant == tenant && r.Mode == mode {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeMeters 固定返回值的水表存储
type fakeMeters struct {
	meters []models.WaterMeter
	err    error
}

func (f *fakeMeters) GetByTenant(ctx context.Context, tenant string) ([]models.WaterMeter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.meters, nil
}

// fakeEntities 固定返回值的实体图谱
type fakeEntities struct {
	data map[string][]map[string]any
	err  error
}

func (f *fakeEntities) GetEntities(ctx context.Context, tenant, project, entity string) ([]map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[entity], nil
}

// fakeConsumer 记录订阅状态的事件流消费者
type fakeConsumer struct {
	mu       sync.Mutex
	active   map[string][]bus.Subscription
	startErr error
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{active: make(map[string][]bus.Subscription)}
}

func (f *fakeConsumer) setStartErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

func (f *fakeConsumer) Start(sessionID string, subs []bus.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.active[sessionID] = subs
	return nil
}

func (f *fakeConsumer) Stop(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, sessionID)
}

func (f *fakeConsumer) topics(sessionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, sub := range f.active[sessionID] {
		out = append(out, sub.Topic)
	}
	sort.Strings(out)
	return out
}

// deliver 模拟总线投递一条已解码记录
func (f *fakeConsumer) deliver(sessionID, topic string, m *models.AmrMeasurement) bool {
	f.mu.Lock()
	var handler func(*models.AmrMeasurement)
	for _, sub := range f.active[sessionID] {
		if sub.Topic == topic {
			handler = sub.Handler
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(m)
	return true
}

// gatedMeters 对指定租户的查询阻塞到放行为止，其余租户直接返回
type gatedMeters struct {
	tenant  string
	entered chan struct{}
	release chan struct{}
}

func newGatedMeters(tenant string) *gatedMeters {
	return &gatedMeters{
		tenant:  tenant,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedMeters) GetByTenant(ctx context.Context, tenant string) ([]models.WaterMeter, error) {
	if tenant == g.tenant {
		g.entered <- struct{}{}
		<-g.release
	}
	return nil, nil
}

// fakePublisher 捕获发出的报警记录
type fakePublisher struct {
	mu      sync.Mutex
	records []publishedRecord
}

type publishedRecord struct {
	topic string
	key   string
	value []byte
}

func (f *fakePublisher) Send(topic, key string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, publishedRecord{topic: topic, key: key, value: value})
}

func (f *fakePublisher) sent() []publishedRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedRecord(nil), f.records...)
}
