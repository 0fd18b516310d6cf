// Copyright 2025 CyberSentinel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vansh-Raja/cybersentinel-dlp/actions"
	"github.com/Vansh-Raja/cybersentinel-dlp/classify"
	"github.com/Vansh-Raja/cybersentinel-dlp/policy"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

const blockCardPolicy = `
policy:
  id: cc-exfil-001
  name: Credit Card Exfil
  enabled: true
  priority: 100
  severity: critical
rules:
  - id: rule-001
    name: Block card numbers
    conditions:
      - field: classification.type
        operator: equals
        value: credit_card
    actions:
      - type: block
      - type: alert
`

// recordingSink captures persisted events for assertions
type recordingSink struct {
	mu     sync.Mutex
	events []*types.Event
}

func (s *recordingSink) AppendEvent(_ context.Context, ev *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// staticGeo resolves every IP to a fixed country
type staticGeo struct{ country string }

func (g staticGeo) Country(string) (string, bool) { return g.country, true }

func newTestPipeline(t *testing.T, cfg Config, opts ...Option) *Pipeline {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cards.yaml"), []byte(blockCardPolicy), 0o644))

	log := logger.New("test")
	catalog := policy.NewCatalog(dir, log)
	require.NoError(t, catalog.Load())

	classifier := classify.NewClassifier(0.5)
	for _, d := range classify.StockDetectors() {
		classifier.Register(d)
	}

	executor := actions.NewExecutor(log)
	return New(cfg, log, catalog, classifier, executor, opts...)
}

func cardEvent() *types.Event {
	return &types.Event{
		EventID:   "evt-pipe-1",
		Timestamp: time.Date(2025, 6, 16, 14, 30, 0, 0, time.UTC), // Monday, working hours
		Type:      types.EventTypeNetwork,
		Severity:  types.SeverityMedium,
		Agent:     types.AgentInfo{ID: "agent-1", Hostname: "WS-Finance-03"},
		Network:   types.NetworkInfo{DestinationIP: "203.0.113.50"},
		Content:   "wire transfer card 4111 1111 1111 1111 approved",
	}
}

func TestProcessEndToEnd(t *testing.T) {
	sink := &recordingSink{}
	p := newTestPipeline(t, Config{}, WithStore(sink))

	ev, err := p.Process(context.Background(), cardEvent())
	require.NoError(t, err)

	// classification found the card
	require.NotEmpty(t, ev.Classification)
	assert.Equal(t, "credit_card", ev.Classification[0].Type)

	// the policy matched and the block action fired
	require.Len(t, ev.PolicyMatches, 1)
	assert.Equal(t, "cc-exfil-001", ev.PolicyMatches[0].PolicyID)
	assert.True(t, ev.Blocked)

	require.NotNil(t, ev.ActionsExecuted)
	assert.Equal(t, 2, ev.ActionsExecuted.Total)
	assert.Equal(t, 2, ev.ActionsExecuted.Succeeded)

	// enrichment landed
	assert.Equal(t, "monday", ev.DayOfWeek)
	assert.Equal(t, 14, ev.HourOfDay)
	assert.False(t, ev.OffHours)

	// normalization lowercased the hostname
	assert.Equal(t, "ws-finance-03", ev.Agent.Hostname)

	assert.Equal(t, 1, sink.count())
}

func TestProcessCleanContent(t *testing.T) {
	p := newTestPipeline(t, Config{})

	ev := cardEvent()
	ev.Content = "quarterly report attached, nothing sensitive here"

	out, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, out.Classification)
	assert.Empty(t, out.PolicyMatches)
	assert.False(t, out.Blocked)
}

func TestValidateDefaults(t *testing.T) {
	p := newTestPipeline(t, Config{})

	ev := &types.Event{
		Type:    types.EventTypeClipboard,
		Agent:   types.AgentInfo{ID: "agent-1"},
		Content: "hello",
	}

	out, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.NotEmpty(t, out.EventID)
	assert.False(t, out.Timestamp.IsZero())
	assert.Equal(t, types.SeverityInfo, out.Severity)
}

func TestValidateRejects(t *testing.T) {
	p := newTestPipeline(t, Config{})

	cases := []struct {
		name string
		ev   *types.Event
	}{
		{"missing agent id", &types.Event{Type: types.EventTypeFile}},
		{"unknown event type", &types.Event{Type: "carrier_pigeon", Agent: types.AgentInfo{ID: "a"}}},
		{"unknown severity", &types.Event{Type: types.EventTypeFile, Severity: "catastrophic", Agent: types.AgentInfo{ID: "a"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), tc.ev)
			assert.Error(t, err)
		})
	}
}

func TestValidateRejectsOversizedContent(t *testing.T) {
	p := newTestPipeline(t, Config{MaxContentSize: 16})

	ev := cardEvent()
	ev.Content = "0123456789abcdef-overflow-overflow"

	_, err := p.Process(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")

	// At the limit the event passes
	ev = cardEvent()
	ev.Content = "0123456789abcdef"
	_, err = p.Process(context.Background(), ev)
	assert.NoError(t, err)
}

func TestNormalizeTruncatesOversizedFields(t *testing.T) {
	p := newTestPipeline(t, Config{MaxFieldSize: 8})

	ev := cardEvent()
	ev.Content = ""
	ev.File.Name = "quarterly-customer-export.xlsx"

	out, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.Equal(t, "quarterl", out.File.Name)
}

func TestEnrichOffHours(t *testing.T) {
	p := newTestPipeline(t, Config{})

	cases := []struct {
		name     string
		ts       time.Time
		offHours bool
	}{
		{"weekday morning", time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC), false},
		{"weekday early", time.Date(2025, 6, 16, 6, 30, 0, 0, time.UTC), true},
		{"weekday evening", time.Date(2025, 6, 16, 18, 0, 0, 0, time.UTC), true},
		{"saturday noon", time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC), true},
		{"sunday noon", time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := cardEvent()
			ev.Content = ""
			ev.Timestamp = tc.ts

			out, err := p.Process(context.Background(), ev)
			require.NoError(t, err)
			assert.Equal(t, tc.offHours, out.OffHours)
		})
	}
}

func TestEnrichGeo(t *testing.T) {
	p := newTestPipeline(t, Config{}, WithGeo(staticGeo{country: "RU"}))

	ev := cardEvent()
	ev.Content = ""

	out, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "RU", out.Network.DestinationCountry)
}

func TestEnrichGeoKeepsExistingCountry(t *testing.T) {
	p := newTestPipeline(t, Config{}, WithGeo(staticGeo{country: "RU"}))

	ev := cardEvent()
	ev.Content = ""
	ev.Network.DestinationCountry = "DE"

	out, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "DE", out.Network.DestinationCountry)
}

func TestSubmitQueueFull(t *testing.T) {
	// no workers started, so the queue never drains
	p := newTestPipeline(t, Config{QueueSize: 2})

	require.NoError(t, p.Submit(cardEvent()))
	require.NoError(t, p.Submit(cardEvent()))
	assert.ErrorIs(t, p.Submit(cardEvent()), ErrQueueFull)
	assert.Equal(t, 2, p.QueueDepth())
}

func TestWorkersDrainQueue(t *testing.T) {
	sink := &recordingSink{}
	p := newTestPipeline(t, Config{Workers: 2, QueueSize: 64}, WithStore(sink))

	p.Start(context.Background())
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(cardEvent()))
	}
	p.Stop()

	assert.Equal(t, 20, sink.count())
	assert.Zero(t, p.QueueDepth())
}

func TestSubmitAfterStop(t *testing.T) {
	p := newTestPipeline(t, Config{})
	p.Start(context.Background())
	p.Stop()

	assert.Error(t, p.Submit(cardEvent()))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
	assert.Equal(t, DefaultMaxContentSize, cfg.MaxContentSize)
	assert.Equal(t, DefaultMaxFieldSize, cfg.MaxFieldSize)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.ActTimeout)
}
