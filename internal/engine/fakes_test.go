package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sells-group/eva-cli/internal/model"
	"github.com/sells-group/eva-cli/internal/trends"
)

func ptr[T any](v T) *T { return &v }

var (
	testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	testDay = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return testNow }

// highCandidate scores 0.96, HIGH, with a strong spread.
func highCandidate(brand string) model.Candidate {
	return model.Candidate{
		Day: testDay, Tag: "running", Brand: brand,
		DeltaPct: ptr(3.0), MsgCount: ptr(25), SourceCount: ptr(4), PlatformCount: ptr(2),
		ActionIntentRate: ptr(0.55), EvalIntentRate: ptr(0.1), MemeRisk: ptr(0.05),
	}
}

// borderlineHighCandidate scores 0.6721, HIGH, and is warm on spread.
func borderlineHighCandidate(brand string) model.Candidate {
	return model.Candidate{
		Day: testDay, Tag: "running", Brand: brand,
		DeltaPct: ptr(1.0), MsgCount: ptr(10), SourceCount: ptr(3), PlatformCount: ptr(1),
		ActionIntentRate: ptr(0.2), MemeRisk: ptr(0.05),
	}
}

// watchlistCandidate scores 0.5379, WATCHLIST, and is warm on intent.
func watchlistCandidate(brand string) model.Candidate {
	return model.Candidate{
		Day: testDay, Tag: "running", Brand: brand,
		DeltaPct: ptr(1.0), MsgCount: ptr(10), SourceCount: ptr(2), PlatformCount: ptr(1),
		ActionIntentRate: ptr(0.2), MemeRisk: ptr(0.5),
	}
}

// memeCandidate fails the suppression gate but is warm on spread.
func memeCandidate(brand string) model.Candidate {
	c := highCandidate(brand)
	c.MemeRisk = ptr(0.70)
	return c
}

type eventKey struct {
	typ   model.EventType
	tag   string
	brand string
	day   string
}

// memStore is an in-memory engine.Store with injectable failures.
type memStore struct {
	mu         sync.Mutex
	candidates []model.Candidate
	listErr    error
	failUpsert map[string]bool
	failEvents bool
	failAudit  bool

	records map[string]model.ConfidenceRecord
	events  map[eventKey]model.SignalEvent
	order   []model.SignalEvent
	audits  []model.TrendsValidation
	since   time.Time
}

func newMemStore(cs ...model.Candidate) *memStore {
	return &memStore{
		candidates: cs,
		failUpsert: map[string]bool{},
		records:    map[string]model.ConfidenceRecord{},
		events:     map[eventKey]model.SignalEvent{},
	}
}

func (m *memStore) ListCandidates(_ context.Context, since time.Time) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = since
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Candidate
	for _, c := range m.candidates {
		if !c.Day.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) UpsertConfidence(_ context.Context, rec model.ConfidenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert[rec.Brand] {
		return errors.New("connection reset")
	}
	m.records[rec.Day.Format(model.DayLayout)+"/"+rec.Tag+"/"+rec.Brand+"/"+rec.ScoringVersion] = rec
	return nil
}

func (m *memStore) InsertEvent(_ context.Context, ev model.SignalEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEvents {
		return false, errors.New("events table locked")
	}
	k := eventKey{ev.Type, ev.Tag, ev.Brand, ev.Day.Format(model.DayLayout)}
	if _, ok := m.events[k]; ok {
		return false, nil
	}
	m.events[k] = ev
	m.order = append(m.order, ev)
	return true, nil
}

func (m *memStore) InsertTrendsValidation(_ context.Context, v model.TrendsValidation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAudit {
		return errors.New("audit table missing")
	}
	m.audits = append(m.audits, v)
	return nil
}

func (m *memStore) record(brand string) (model.ConfidenceRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.Brand == brand {
			return r, true
		}
	}
	return model.ConfidenceRecord{}, false
}

func (m *memStore) event(typ model.EventType, brand string) (model.SignalEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, ev := range m.events {
		if k.typ == typ && k.brand == brand {
			return ev, true
		}
	}
	return model.SignalEvent{}, false
}

// fakeValidator returns canned results per brand.
type fakeValidator struct {
	mu      sync.Mutex
	results map[string]trends.Result
	calls   []string
	panicOn string
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeValidator) Validate(_ context.Context, brand string) trends.Result {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if brand == f.panicOn {
		panic("validator exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, brand)
	if r, ok := f.results[brand]; ok {
		return r
	}
	return trends.Result{Direction: trends.DirectionStable, QueryTerm: brand, Timeframe: trends.DefaultTimeframe}
}

func (f *fakeValidator) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
