package engine

import (
	"sort"
	"time"
)

// Event 事件接口
// 事件携带自身时间戳（事件时间），时间推理基于该时间而非到达顺序
type Event interface {
	EventTime() time.Time
	EventKey() string
}

// keyedFact 带领域键的参照事实（如水表以 code 为键）
type keyedFact interface {
	RefKey() string
}

// FactHandle 事实句柄（插入参照事实时返回，更新/撤回时使用）
// 句柄生命周期不超过当前工作内存会话，重载后必须重建
type FactHandle uint64

// RefIndex 某入口点下的参照事实索引
// 规则通过入口点名访问（如 metersEntry.Get(amr.MeterAddress)）
type RefIndex struct {
	name  string
	facts map[FactHandle]any
	byKey map[string]FactHandle
}

func newRefIndex(name string) *RefIndex {
	return &RefIndex{
		name:  name,
		facts: make(map[FactHandle]any),
		byKey: make(map[string]FactHandle),
	}
}

func (i *RefIndex) add(h FactHandle, fact any) {
	i.facts[h] = fact
	if k, ok := fact.(keyedFact); ok {
		i.byKey[k.RefKey()] = h
	}
}

func (i *RefIndex) remove(h FactHandle) {
	if fact, ok := i.facts[h]; ok {
		if k, ok := fact.(keyedFact); ok {
			delete(i.byKey, k.RefKey())
		}
		delete(i.facts, h)
	}
}

// Count 事实数量
func (i *RefIndex) Count() int {
	return len(i.facts)
}

// Has 是否存在指定领域键的事实
func (i *RefIndex) Has(key string) bool {
	_, ok := i.byKey[key]
	return ok
}

// Get 按领域键取事实，未命中返回 nil
func (i *RefIndex) Get(key string) any {
	if h, ok := i.byKey[key]; ok {
		return i.facts[h]
	}
	return nil
}

// Find 按字段值查找 map 形态的事实（图谱实体），未命中返回 nil
func (i *RefIndex) Find(field, value string) map[string]any {
	for _, fact := range i.facts {
		if m, ok := fact.(map[string]any); ok {
			if v, ok := m[field]; ok && v == value {
				return m
			}
		}
	}
	return nil
}

// timedEvent 窗口内的事件记录
type timedEvent struct {
	key   string
	at    time.Time
	value any
}

// EventWindow 入口点事件窗口（按事件时间排序，超过保留时长后淘汰）
// 为规则提供事件时间维度的聚合（计数、最近事件）
type EventWindow struct {
	retention time.Duration
	events    []timedEvent
	maxSeen   time.Time
}

func newEventWindow(retention time.Duration) *EventWindow {
	return &EventWindow{retention: retention}
}

// add 插入事件并淘汰过期记录；事件时间无法解析时按最近观测时间处理
func (w *EventWindow) add(ev Event) {
	at := ev.EventTime()
	if at.IsZero() {
		at = w.maxSeen
		if at.IsZero() {
			at = time.Now()
		}
	}
	if at.After(w.maxSeen) {
		w.maxSeen = at
	}

	w.events = append(w.events, timedEvent{key: ev.EventKey(), at: at, value: ev})
	// 事件可能乱序到达，按事件时间维护排序
	sort.SliceStable(w.events, func(a, b int) bool {
		return w.events[a].at.Before(w.events[b].at)
	})

	cutoff := w.maxSeen.Add(-w.retention)
	idx := 0
	for idx < len(w.events) && w.events[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		w.events = w.events[idx:]
	}
}

// Count 窗口内全部事件数
func (w *EventWindow) Count() int {
	return len(w.events)
}

// CountSince 最近 millis 毫秒内（按事件时间）的事件数
func (w *EventWindow) CountSince(millis int64) int {
	cutoff := w.maxSeen.Add(-time.Duration(millis) * time.Millisecond)
	n := 0
	for _, e := range w.events {
		if !e.at.Before(cutoff) {
			n++
		}
	}
	return n
}

// CountKeySince 指定键最近 millis 毫秒内的事件数
func (w *EventWindow) CountKeySince(key string, millis int64) int {
	cutoff := w.maxSeen.Add(-time.Duration(millis) * time.Millisecond)
	n := 0
	for _, e := range w.events {
		if e.key == key && !e.at.Before(cutoff) {
			n++
		}
	}
	return n
}

// LastKey 指定键的最近一个事件，未命中返回 nil
func (w *EventWindow) LastKey(key string) any {
	for idx := len(w.events) - 1; idx >= 0; idx-- {
		if w.events[idx].key == key {
			return w.events[idx].value
		}
	}
	return nil
}
