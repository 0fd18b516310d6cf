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

package siem

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// fakeConnector is a scriptable in-memory connector for registry tests
type fakeConnector struct {
	name       string
	connectErr error
	sendErr    error
	panicOn    string
	connected  atomic.Bool
	sent       atomic.Int64
}

func (f *fakeConnector) Name() string { return f.name }
func (f *fakeConnector) Type() Type   { return TypeELK }

func (f *fakeConnector) Connect(context.Context) error {
	if f.panicOn == "Connect" {
		panic("connector exploded")
	}
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected.Store(true)
	return nil
}

func (f *fakeConnector) Disconnect(context.Context) error {
	f.connected.Store(false)
	return nil
}

func (f *fakeConnector) Connected() bool { return f.connected.Load() }

func (f *fakeConnector) SendEvent(context.Context, map[string]interface{}) error {
	if f.panicOn == "SendEvent" {
		panic("connector exploded")
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent.Add(1)
	return nil
}

func (f *fakeConnector) SendBatch(_ context.Context, docs []map[string]interface{}) (*BatchResult, error) {
	if f.panicOn == "SendBatch" {
		panic("connector exploded")
	}
	if f.sendErr != nil {
		return &BatchResult{Failed: len(docs), Errors: []string{f.sendErr.Error()}}, f.sendErr
	}
	f.sent.Add(int64(len(docs)))
	return &BatchResult{Sent: len(docs)}, nil
}

func (f *fakeConnector) QueryEvents(context.Context, string, time.Time, time.Time, int) ([]map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeConnector) CreateAlert(context.Context, string, string, types.Severity, string) (*AlertResult, error) {
	return &AlertResult{Created: true}, nil
}

func (f *fakeConnector) HealthCheck(context.Context) *HealthStatus {
	if f.panicOn == "HealthCheck" {
		panic("connector exploded")
	}
	return &HealthStatus{Healthy: f.connected.Load(), Timestamp: time.Now().UTC()}
}

func registryEvent() *types.Event {
	return &types.Event{
		EventID:   "evt-reg-1",
		Timestamp: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
		Type:      types.EventTypeNetwork,
		Severity:  types.SeverityHigh,
		Agent:     types.AgentInfo{ID: "agent-1", Hostname: "ws-01"},
	}
}

func TestServiceRegisterIdempotent(t *testing.T) {
	svc := NewService(logger.New("test"))

	first := &fakeConnector{name: "elk-prod"}
	second := &fakeConnector{name: "elk-prod"}
	svc.Register(first)
	svc.Register(second)

	got, ok := svc.Get("elk-prod")
	require.True(t, ok)
	assert.Same(t, Connector(second), got)
	assert.Equal(t, []string{"elk-prod"}, svc.Names())
}

func TestServiceUnregisterDisconnects(t *testing.T) {
	svc := NewService(logger.New("test"))
	c := &fakeConnector{name: "elk-prod"}
	svc.Register(c)
	svc.ConnectAll(context.Background())
	require.True(t, c.Connected())

	svc.Unregister("elk-prod")

	_, ok := svc.Get("elk-prod")
	assert.False(t, ok)
	assert.Empty(t, svc.Names())
	assert.Empty(t, svc.ActiveNames())
	assert.False(t, c.Connected(), "unregister must release the transport")
}

func TestConnectAllDefinesActiveSet(t *testing.T) {
	svc := NewService(logger.New("test"))
	svc.Register(&fakeConnector{name: "elk-prod"})
	svc.Register(&fakeConnector{name: "splunk-prod", connectErr: errors.New("bad token")})

	results := svc.ConnectAll(context.Background())

	assert.NoError(t, results["elk-prod"])
	assert.Error(t, results["splunk-prod"])
	assert.Equal(t, []string{"elk-prod"}, svc.ActiveNames())
}

func TestSendEventToAllSkipsInactive(t *testing.T) {
	svc := NewService(logger.New("test"))
	connected := &fakeConnector{name: "elk-prod"}
	never := &fakeConnector{name: "splunk-prod", connectErr: errors.New("unreachable")}
	svc.Register(connected)
	svc.Register(never)
	svc.ConnectAll(context.Background())

	results := svc.SendEventToAll(context.Background(), registryEvent())

	require.Len(t, results, 1, "never-connected connectors must not be dispatched")
	assert.True(t, results["elk-prod"])
	assert.Equal(t, int64(0), never.sent.Load())
}

func TestSendEventToAllPartialFailure(t *testing.T) {
	svc := NewService(logger.New("test"))
	healthy := &fakeConnector{name: "elk-prod"}
	broken := &fakeConnector{name: "splunk-prod", sendErr: errors.New("connection refused")}
	svc.Register(healthy)
	svc.Register(broken)
	svc.ConnectAll(context.Background())

	results := svc.SendEventToAll(context.Background(), registryEvent())

	assert.True(t, results["elk-prod"])
	assert.False(t, results["splunk-prod"])
	assert.Equal(t, int64(1), healthy.sent.Load())
}

func TestSendEventToAllPanicIsolated(t *testing.T) {
	svc := NewService(logger.New("test"))
	healthy := &fakeConnector{name: "elk-prod"}
	svc.Register(healthy)
	svc.Register(&fakeConnector{name: "splunk-prod", panicOn: "SendEvent"})
	svc.ConnectAll(context.Background())

	results := svc.SendEventToAll(context.Background(), registryEvent())

	assert.True(t, results["elk-prod"])
	assert.False(t, results["splunk-prod"])
	assert.Equal(t, int64(1), healthy.sent.Load())
}

func TestSendBatchToAll(t *testing.T) {
	svc := NewService(logger.New("test"))
	svc.Register(&fakeConnector{name: "elk-prod"})
	svc.Register(&fakeConnector{name: "splunk-prod", sendErr: errors.New("timeout")})
	svc.ConnectAll(context.Background())

	events := []*types.Event{registryEvent(), registryEvent(), registryEvent()}
	results := svc.SendBatchToAll(context.Background(), events)

	require.Len(t, results, 2)
	assert.Equal(t, 3, results["elk-prod"].Sent)
	assert.Equal(t, 3, results["splunk-prod"].Failed)
	assert.NotEmpty(t, results["splunk-prod"].Errors)
}

func TestSendBatchToAllPanicReportsAllFailed(t *testing.T) {
	svc := NewService(logger.New("test"))
	svc.Register(&fakeConnector{name: "elk-prod", panicOn: "SendBatch"})
	svc.ConnectAll(context.Background())

	results := svc.SendBatchToAll(context.Background(), []*types.Event{registryEvent(), registryEvent()})

	require.Contains(t, results, "elk-prod")
	assert.Equal(t, 2, results["elk-prod"].Failed)
}

func TestConnectAll(t *testing.T) {
	svc := NewService(logger.New("test"))
	healthy := &fakeConnector{name: "elk-prod"}
	svc.Register(healthy)
	svc.Register(&fakeConnector{name: "splunk-prod", panicOn: "Connect"})

	results := svc.ConnectAll(context.Background())

	assert.NoError(t, results["elk-prod"])
	assert.Error(t, results["splunk-prod"])
	assert.True(t, healthy.Connected())
	assert.Equal(t, []string{"elk-prod"}, svc.ActiveNames())
}

func TestHealthCheckAll(t *testing.T) {
	svc := NewService(logger.New("test"))
	up := &fakeConnector{name: "elk-prod"}
	up.connected.Store(true)
	svc.Register(up)
	svc.Register(&fakeConnector{name: "splunk-prod", panicOn: "HealthCheck"})

	results := svc.HealthCheckAll(context.Background())

	require.Len(t, results, 2)
	assert.True(t, results["elk-prod"].Healthy)
	assert.False(t, results["splunk-prod"].Healthy)
}

func TestHealthCheckFailureDeactivates(t *testing.T) {
	svc := NewService(logger.New("test"))
	flaky := &fakeConnector{name: "elk-prod"}
	svc.Register(flaky)
	svc.ConnectAll(context.Background())
	require.Equal(t, []string{"elk-prod"}, svc.ActiveNames())

	// The sink drops the connection after the initial connect
	flaky.connected.Store(false)
	results := svc.HealthCheckAll(context.Background())
	require.False(t, results["elk-prod"].Healthy)

	assert.Empty(t, svc.ActiveNames(), "unhealthy connector must leave the delivery set")
	assert.Empty(t, svc.SendEventToAll(context.Background(), registryEvent()))
}

func TestDisconnectAll(t *testing.T) {
	svc := NewService(logger.New("test"))
	c := &fakeConnector{name: "elk-prod"}
	c.connected.Store(true)
	svc.Register(c)

	svc.DisconnectAll(context.Background())
	assert.False(t, c.Connected())
}
