package flowtable

import (
	"Go2FlowFeatures/internal/model"
	"time"
)

// Table maps canonical flow keys to their accumulators for one run.
//
// It has exactly one writer (the run loop) and takes no locks. Flows are
// remembered in first-seen order so extraction and export are deterministic.
type Table struct {
	flows    map[model.FlowKey]*model.Flow
	order    []model.FlowKey
	finished []model.FlowRecord
}

// New creates an empty flow table.
func New() *Table {
	return &Table{
		flows: make(map[model.FlowKey]*model.Flow),
	}
}

// LookupOrCreate returns the active flow for key, creating it when the key is
// seen for the first time. A new flow starts with the packet that created it:
// StartTime = LastTime = ts, one packet and length bytes.
func (t *Table) LookupOrCreate(key model.FlowKey, ts time.Time, length int) (*model.Flow, bool) {
	if flow, ok := t.flows[key]; ok {
		return flow, false
	}
	flow := &model.Flow{
		StartTime:   ts,
		LastTime:    ts,
		PacketCount: 1,
		ByteCount:   uint64(max(length, 0)),
	}
	t.flows[key] = flow
	t.order = append(t.order, key)
	return flow, true
}

// Update folds one more packet into an existing flow. LastTime never moves
// backwards, so out-of-order timestamps cannot shrink a flow.
func (t *Table) Update(flow *model.Flow, ts time.Time, length int) {
	if ts.After(flow.LastTime) {
		flow.LastTime = ts
	}
	flow.PacketCount++
	flow.ByteCount += uint64(max(length, 0))
}

// Observe folds a packet into its flow, creating the flow if needed.
// It reports whether a new flow was created.
func (t *Table) Observe(key model.FlowKey, ts time.Time, length int) bool {
	flow, created := t.LookupOrCreate(key, ts, length)
	if !created {
		t.Update(flow, ts, length)
	}
	return created
}

// Get returns a copy of the active flow for key.
func (t *Table) Get(key model.FlowKey) (model.Flow, bool) {
	if flow, ok := t.flows[key]; ok {
		return *flow, true
	}
	return model.Flow{}, false
}

// Active returns the number of flows that can still receive packets.
func (t *Table) Active() int {
	return len(t.flows)
}

// Len returns the number of flows that will be extracted: retired and active.
func (t *Table) Len() int {
	return len(t.finished) + len(t.flows)
}

// Each calls fn for every flow, retired flows first in retirement order,
// then active flows in first-seen order. fn receives a copy.
func (t *Table) Each(fn func(key model.FlowKey, flow model.Flow)) {
	for _, rec := range t.finished {
		fn(rec.Key, rec.Flow)
	}
	for _, key := range t.order {
		fn(key, *t.flows[key])
	}
}

// Records returns a detached copy of every flow in Each order.
func (t *Table) Records() []model.FlowRecord {
	records := make([]model.FlowRecord, 0, t.Len())
	t.Each(func(key model.FlowKey, flow model.Flow) {
		records = append(records, model.FlowRecord{Key: key, Flow: flow})
	})
	return records
}

// ExpireIdle retires active flows whose last packet is older than timeout
// relative to now. Retired flows are kept for export; a later packet with
// the same key opens a new flow. It returns the number of flows retired.
func (t *Table) ExpireIdle(now time.Time, timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	kept := t.order[:0]
	expired := 0
	for _, key := range t.order {
		flow := t.flows[key]
		if now.Sub(flow.LastTime) > timeout {
			t.finished = append(t.finished, model.FlowRecord{Key: key, Flow: *flow})
			delete(t.flows, key)
			expired++
			continue
		}
		kept = append(kept, key)
	}
	// Clear the tail so dropped keys can be collected.
	for i := len(kept); i < len(t.order); i++ {
		t.order[i] = model.FlowKey{}
	}
	t.order = kept
	return expired
}
