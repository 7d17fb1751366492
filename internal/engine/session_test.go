package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/models"
)

// recordingSink 捕获规则结论发出的报警键
type recordingSink struct {
	mu   sync.Mutex
	keys []string
}

func (s *recordingSink) Alert(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
}

func (s *recordingSink) captured() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

const highConsumptionGRL = `
rule HighConsumption "alert on high consumption" {
    when
        amr.Consumption > 100
    then
        Sink.Alert(amr.MeterAddress);
        Retract("HighConsumption");
}
`

func testRules(drl string) []models.Rule {
	return []models.Rule{{
		Tenant:      "T",
		Mode:        models.ModeStream,
		Name:        "HighConsumption",
		EntryPoints: []string{"amr"},
		DRL:         drl,
	}}
}

func TestCompileRuleBase_Success(t *testing.T) {
	rb, err := CompileRuleBase("T", testRules(highConsumptionGRL))
	require.NoError(t, err)
	assert.Equal(t, 1, rb.RuleCount())
	assert.Equal(t, []string{"amr"}, rb.EntryPoints())
}

func TestCompileRuleBase_InvalidRuleFails(t *testing.T) {
	_, err := CompileRuleBase("T", testRules("this is not a rule"))
	assert.Error(t, err)
}

func TestSession_EntryPointNamesSorted(t *testing.T) {
	rb, err := CompileRuleBase("T", testRules(highConsumptionGRL))
	require.NoError(t, err)

	session := NewSession(rb, SessionConfig{}, zap.NewNop(), "metersEntry", "gateway")
	defer session.Dispose()

	// 事件入口点与参照入口点的并集，字典序返回
	assert.Equal(t, []string{"amr", "gateway", "metersEntry"}, session.EntryPointNames())
}

func TestSession_EventTriggersRule(t *testing.T) {
	rb, err := CompileRuleBase("T", testRules(highConsumptionGRL))
	require.NoError(t, err)

	sink := &recordingSink{}
	session := NewSession(rb, SessionConfig{}, zap.NewNop(), "metersEntry")
	session.SetGlobal("Sink", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.FireUntilHalt(ctx)
	defer session.Dispose()

	ep := session.EntryPoint("amr")
	require.NotNil(t, ep)
	require.True(t, ep.IsEvent())

	_, err = ep.Insert(&models.AmrMeasurement{
		MeterAddress: "M1",
		Consumption:  200,
		ReadingDate:  time.Now().UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.captured()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"M1"}, sink.captured())
}

func TestSession_EventBelowThresholdDoesNotFire(t *testing.T) {
	rb, err := CompileRuleBase("T", testRules(highConsumptionGRL))
	require.NoError(t, err)

	sink := &recordingSink{}
	session := NewSession(rb, SessionConfig{}, zap.NewNop())
	session.SetGlobal("Sink", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.FireUntilHalt(ctx)
	defer session.Dispose()

	ep := session.EntryPoint("amr")
	_, err = ep.Insert(&models.AmrMeasurement{
		MeterAddress: "M1",
		Consumption:  50,
		ReadingDate:  time.Now().UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, sink.captured())
}

func TestSession_ReferenceFactHandles(t *testing.T) {
	rb, err := CompileRuleBase("T", testRules(highConsumptionGRL))
	require.NoError(t, err)

	session := NewSession(rb, SessionConfig{}, zap.NewNop(), "metersEntry")
	ep := session.EntryPoint("metersEntry")
	require.NotNil(t, ep)
	assert.False(t, ep.IsEvent())

	h, err := ep.Insert(&models.WaterMeter{Code: "M1", Status: "ACTIVE"})
	require.NoError(t, err)
	require.NotZero(t, h)
	assert.Equal(t, 1, ep.Refs().Count())

	// 句柄更新替换事实而非新增
	require.NoError(t, session.Update(h, &models.WaterMeter{Code: "M1", Status: "REMOVED"}))
	assert.Equal(t, 1, ep.Refs().Count())
	meter := ep.Refs().Get("M1").(*models.WaterMeter)
	assert.Equal(t, "REMOVED", meter.Status)

	require.NoError(t, session.Retract(h))
	assert.Equal(t, 0, ep.Refs().Count())

	// 已撤回的句柄不可再用
	assert.Error(t, session.Update(h, &models.WaterMeter{Code: "M1"}))
	assert.Error(t, session.Retract(h))
}

func TestSession_UnknownEntryPoint(t *testing.T) {
	rb, err := CompileRuleBase("T", testRules(highConsumptionGRL))
	require.NoError(t, err)

	session := NewSession(rb, SessionConfig{}, zap.NewNop())
	assert.Nil(t, session.EntryPoint("unknown"))
}

func TestSession_InsertAfterDisposeFails(t *testing.T) {
	rb, err := CompileRuleBase("T", testRules(highConsumptionGRL))
	require.NoError(t, err)

	session := NewSession(rb, SessionConfig{}, zap.NewNop(), "metersEntry")
	ep := session.EntryPoint("metersEntry")

	session.Dispose()

	_, err = ep.Insert(&models.WaterMeter{Code: "M1"})
	assert.ErrorIs(t, err, ErrSessionDisposed)
}

func TestSession_DisposeIdempotent(t *testing.T) {
	rb, err := CompileRuleBase("T", testRules(highConsumptionGRL))
	require.NoError(t, err)

	session := NewSession(rb, SessionConfig{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.FireUntilHalt(ctx)

	session.Dispose()
	session.Dispose()
}

func TestSession_WindowAggregation(t *testing.T) {
	const burstGRL = `
rule RepeatedReadings "alert on repeated readings" {
    when
        amrWindow.CountKeySince(amr.MeterAddress, 3600000) > 2
    then
        Sink.Alert(amr.MeterAddress);
        Retract("RepeatedReadings");
}
`
	rb, err := CompileRuleBase("T", []models.Rule{{
		Tenant:      "T",
		Mode:        models.ModeStream,
		Name:        "RepeatedReadings",
		EntryPoints: []string{"amr"},
		DRL:         burstGRL,
	}})
	require.NoError(t, err)

	sink := &recordingSink{}
	session := NewSession(rb, SessionConfig{}, zap.NewNop())
	session.SetGlobal("Sink", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.FireUntilHalt(ctx)
	defer session.Dispose()

	ep := session.EntryPoint("amr")
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := ep.Insert(&models.AmrMeasurement{
			MeterAddress: "M1",
			ReadingDate:  base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		})
		require.NoError(t, err)
	}

	// 只有第三条事件使同键计数超过阈值
	require.Eventually(t, func() bool {
		return len(sink.captured()) == 1
	}, 3*time.Second, 10*time.Millisecond)
}
