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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// elkTestServer fakes the Elasticsearch endpoints the connector uses
func elkTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *ELKConnector) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewELKConnector("elk-test", ELKConfig{
		URL:         srv.URL,
		IndexPrefix: "cybersentinel-dlp",
		VerifyCerts: true,
	}, logger.New("test"))
	return srv, c
}

func TestELKIndexFor(t *testing.T) {
	c := NewELKConnector("elk-test", ELKConfig{IndexPrefix: "cybersentinel-dlp"}, logger.New("test"))

	ts := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "cybersentinel-dlp-2025.06.15", c.indexFor(ts))

	// index routing is UTC even for zoned timestamps
	zoned := time.Date(2025, 6, 15, 23, 59, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "cybersentinel-dlp-2025.06.16", c.indexFor(zoned))
}

func TestELKConnect(t *testing.T) {
	var healthChecked, templateInstalled bool
	_, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/_cluster/health":
			healthChecked = true
			fmt.Fprint(w, `{"status":"green"}`)
		case r.Method == http.MethodPut && r.URL.Path == "/_index_template/cybersentinel-dlp":
			templateInstalled = true
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, body, "index_patterns")
			fmt.Fprint(w, `{"acknowledged":true}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, healthChecked)
	assert.True(t, templateInstalled)
	assert.True(t, c.Connected())
}

func TestELKConnectClusterDown(t *testing.T) {
	_, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, c.Connected())

	var ce *ConnectorError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Connect", ce.Operation)
}

func TestELKSendEvent(t *testing.T) {
	var gotPath string
	var gotDoc map[string]interface{}
	_, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"result":"created"}`)
	})

	doc := FormatEvent(&types.Event{
		EventID:   "evt-elk-1",
		Timestamp: time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
		Type:      types.EventTypeFile,
		Severity:  types.SeverityHigh,
		Agent:     types.AgentInfo{ID: "agent-1"},
	})

	require.NoError(t, c.SendEvent(context.Background(), doc))
	assert.Equal(t, "/cybersentinel-dlp-2025.06.15/_doc", gotPath)
	assert.Equal(t, "evt-elk-1", gotDoc["event_id"])
}

func TestELKSendEventAuthHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"result":"created"}`)
	}))
	defer srv.Close()

	withKey := NewELKConnector("elk-test", ELKConfig{URL: srv.URL, APIKey: "secret-key"}, logger.New("test"))
	require.NoError(t, withKey.SendEvent(context.Background(), map[string]interface{}{}))
	assert.Equal(t, "ApiKey secret-key", gotAuth)

	withBasic := NewELKConnector("elk-test", ELKConfig{URL: srv.URL, Username: "elastic", Password: "pw"}, logger.New("test"))
	require.NoError(t, withBasic.SendEvent(context.Background(), map[string]interface{}{}))
	assert.Contains(t, gotAuth, "Basic ")
}

func TestELKSendBatchChunking(t *testing.T) {
	var requests int
	var totalActions int
	_, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_bulk", r.URL.Path)
		require.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))
		requests++

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		scanner := bufio.NewScanner(bytes.NewReader(body))
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		lines := 0
		for scanner.Scan() {
			lines++
		}
		// one action line plus one source line per document
		require.Zero(t, lines%2)
		totalActions += lines / 2

		fmt.Fprint(w, `{"errors":false,"items":[]}`)
	})

	docs := make([]map[string]interface{}, 1203)
	for i := range docs {
		docs[i] = map[string]interface{}{
			"event_id":  fmt.Sprintf("evt-%d", i),
			"timestamp": "2025-06-15T10:00:00Z",
		}
	}

	result, err := c.SendBatch(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 3, requests)
	assert.Equal(t, 1203, totalActions)
	assert.Equal(t, 1203, result.Sent)
	assert.Zero(t, result.Failed)
}

func TestELKSendBatchActionLines(t *testing.T) {
	var firstLine map[string]map[string]string
	_, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		scanner := bufio.NewScanner(r.Body)
		require.True(t, scanner.Scan())
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &firstLine))
		fmt.Fprint(w, `{"errors":false,"items":[]}`)
	})

	docs := []map[string]interface{}{{"event_id": "evt-1", "timestamp": "2025-06-15T10:00:00Z"}}
	_, err := c.SendBatch(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, "cybersentinel-dlp-2025.06.15", firstLine["index"]["_index"])
}

func TestELKSendBatchPartialErrors(t *testing.T) {
	_, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":true,"items":[
			{"index":{"status":201}},
			{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad field"}}},
			{"index":{"status":201}}
		]}`)
	})

	docs := []map[string]interface{}{
		{"event_id": "evt-1"}, {"event_id": "evt-2"}, {"event_id": "evt-3"},
	}
	result, err := c.SendBatch(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Errors, "bad field")
}

func TestELKSendBatchTransportFailure(t *testing.T) {
	srv, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	docs := []map[string]interface{}{{"event_id": "evt-1"}, {"event_id": "evt-2"}}
	result, err := c.SendBatch(context.Background(), docs)
	require.Error(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Sent)
}

func TestELKQueryEvents(t *testing.T) {
	var gotBody map[string]interface{}
	_, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cybersentinel-dlp-*/_search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"hits":{"hits":[
			{"_source":{"event_id":"evt-1"}},
			{"_source":{"event_id":"evt-2"}}
		]}}`)
	})

	from := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	out, err := c.QueryEvents(context.Background(), `dlp.blocked:true`, from, to, 50)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "evt-1", out[0]["event_id"])
	assert.Equal(t, float64(50), gotBody["size"])
}

func TestELKCreateAlert(t *testing.T) {
	var gotPath string
	var gotWatch map[string]interface{}
	_, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotWatch))
		fmt.Fprint(w, `{"_id":"x","created":true}`)
	})

	res, err := c.CreateAlert(context.Background(), "Blocked Card Exfil", "card data leaving the network",
		types.SeverityCritical, `dlp.classification_type:credit_card AND dlp.blocked:true`)
	require.NoError(t, err)
	assert.Equal(t, "/_watcher/watch/cybersentinel-blocked-card-exfil", gotPath)
	assert.True(t, res.Created)
	assert.Equal(t, "cybersentinel-blocked-card-exfil", res.ID)
	assert.Contains(t, gotWatch, "trigger")
	assert.Contains(t, gotWatch, "condition")
}

func TestELKHealthCheck(t *testing.T) {
	cases := []struct {
		cluster string
		healthy bool
	}{
		{"green", true},
		{"yellow", true},
		{"red", false},
	}

	for _, tc := range cases {
		t.Run(tc.cluster, func(t *testing.T) {
			_, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"status":%q}`, tc.cluster)
			})

			status := c.HealthCheck(context.Background())
			assert.Equal(t, tc.healthy, status.Healthy)
			assert.Equal(t, tc.cluster, status.Details["cluster_status"])
		})
	}
}

func TestELKHealthCheckUnreachable(t *testing.T) {
	srv, c := elkTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	status := c.HealthCheck(context.Background())
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.Error)
}

func TestSanitizeID(t *testing.T) {
	assert.Equal(t, "blocked-card-exfil", sanitizeID("Blocked Card Exfil"))
	assert.Equal(t, "ssn_alert-2", sanitizeID("SSN_Alert #2!"))
}
