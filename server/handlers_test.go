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

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vansh-Raja/cybersentinel-dlp/actions"
	"github.com/Vansh-Raja/cybersentinel-dlp/classify"
	"github.com/Vansh-Raja/cybersentinel-dlp/pipeline"
	"github.com/Vansh-Raja/cybersentinel-dlp/policy"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/siem"
)

const testPolicy = `
policy:
  id: cc-block-001
  name: Block Credit Cards
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
`

type testServer struct {
	srv       *Server
	catalog   *policy.Catalog
	policyDir string
}

func newTestServer(t *testing.T, cfg pipeline.Config) *testServer {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cards.yaml"), []byte(testPolicy), 0o644))

	log := logger.New("test")
	catalog := policy.NewCatalog(dir, log)
	require.NoError(t, catalog.Load())

	classifier := classify.NewClassifier(0.5)
	for _, d := range classify.StockDetectors() {
		classifier.Register(d)
	}

	pipe := pipeline.New(cfg, log, catalog, classifier, actions.NewExecutor(log))
	return &testServer{
		srv:       NewServer(log, pipe, catalog, siem.NewService(log)),
		catalog:   catalog,
		policyDir: dir,
	}
}

func eventBody(t *testing.T, content string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event_id":   "evt-http-1",
		"timestamp":  time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC),
		"event_type": "network",
		"severity":   "medium",
		"agent":      map[string]string{"id": "agent-1", "hostname": "ws-01"},
		"content":    content,
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestIngestSync(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("POST", "/api/v1/events?sync=true", eventBody(t, "card 4111 1111 1111 1111"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "evt-http-1", resp["event_id"])
	assert.Equal(t, true, resp["blocked"])
	assert.NotEmpty(t, resp["classification"])
	assert.NotEmpty(t, resp["policy_matches"])
}

func TestIngestSyncClean(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("POST", "/api/v1/events?sync=true", eventBody(t, "weekly status report"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["blocked"])
}

func TestIngestAsync(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("POST", "/api/v1/events", eventBody(t, "hello"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
}

func TestIngestInvalidJSON(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestSyncValidationFailure(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	body, err := json.Marshal(map[string]interface{}{"event_type": "network"})
	require.NoError(t, err)

	// no agent id
	req := httptest.NewRequest("POST", "/api/v1/events?sync=true", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestQueueFull(t *testing.T) {
	// queue of one, no workers draining it
	ts := newTestServer(t, pipeline.Config{QueueSize: 1})
	router := ts.srv.Router("")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/events", eventBody(t, "a")))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/events", eventBody(t, "b")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIngestBodyTooLarge(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("POST", "/api/v1/events", eventBody(t, strings.Repeat("x", maxRequestBody+1)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestBatchIngest(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	batch := map[string]interface{}{
		"events": []map[string]interface{}{
			{"event_type": "file", "agent": map[string]string{"id": "agent-1"}},
			{"event_type": "usb", "agent": map[string]string{"id": "agent-2"}},
		},
	}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/v1/events/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["accepted"])
	assert.Equal(t, float64(0), resp["rejected"])
}

func TestBatchEmpty(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("POST", "/api/v1/events/batch", strings.NewReader(`{"events":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPolicies(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("GET", "/api/v1/policies", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Policies []policy.Policy `json:"policies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Policies, 1)
	assert.Equal(t, "cc-block-001", resp.Policies[0].ID)
}

func TestListPoliciesReportsLoadErrors(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	require.NoError(t, os.WriteFile(filepath.Join(ts.policyDir, "bad.yaml"), []byte("policy: [broken"), 0o644))
	require.NoError(t, ts.catalog.Reload())

	req := httptest.NewRequest("GET", "/api/v1/policies", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Errors []struct {
			File  string `json:"file"`
			Error string `json:"error"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "bad.yaml", resp.Errors[0].File)
	assert.NotEmpty(t, resp.Errors[0].Error)
}

func TestReloadPolicies(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	second := strings.ReplaceAll(testPolicy, "cc-block-001", "cc-block-002")
	require.NoError(t, os.WriteFile(filepath.Join(ts.policyDir, "more.yaml"), []byte(second), 0o644))

	req := httptest.NewRequest("POST", "/api/v1/policies/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "reloaded", resp["status"])
	assert.Equal(t, float64(2), resp["policies"])
}

func TestSIEMConnectorsEmpty(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("GET", "/api/v1/siem/connectors", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp["connectors"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])

	components := resp["components"].(map[string]interface{})
	assert.Equal(t, float64(1), components["policies_loaded"])
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"soc@corp.example.com"}, splitList("soc@corp.example.com"))
	assert.Equal(t,
		[]string{"soc@corp.example.com", "security@corp.example.com"},
		splitList(" soc@corp.example.com , security@corp.example.com ,"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, pipeline.Config{})
	router := ts.srv.Router("")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cybersentinel_queue_depth")
}
