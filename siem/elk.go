// Copyright 2025 CyberSentinel
// SPDX-License-Identifier: Apache-2.0
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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

const (
	// elkBulkChunkSize bounds how many documents go into one _bulk request
	elkBulkChunkSize = 500
	// elkDefaultTimeout bounds individual Elasticsearch calls
	elkDefaultTimeout = 10 * time.Second
)

// ELKConfig configures an Elasticsearch/Kibana connector
type ELKConfig struct {
	// URL is the Elasticsearch base URL, e.g. https://es.internal:9200
	URL string
	// Username/Password enable basic auth; APIKey takes precedence
	Username string
	Password string
	APIKey   string
	// IndexPrefix prefixes the daily indices; default "cybersentinel-dlp"
	IndexPrefix string
	// VerifyCerts disables TLS verification when false (lab deployments)
	VerifyCerts bool
	// Timeout bounds each HTTP call; 0 selects elkDefaultTimeout
	Timeout time.Duration
}

// ELKConnector delivers incidents to Elasticsearch using daily indices
// ({prefix}-YYYY.MM.DD) and the bulk API, and installs Watcher rules for
// alerting.
type ELKConnector struct {
	name      string
	cfg       ELKConfig
	client    *http.Client
	log       *logger.Logger
	connected atomic.Bool
}

// NewELKConnector creates an ELK connector. Call Connect before sending.
func NewELKConnector(name string, cfg ELKConfig, log *logger.Logger) *ELKConnector {
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = "cybersentinel-dlp"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = elkDefaultTimeout
	}

	transport := http.DefaultTransport
	if !cfg.VerifyCerts {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &ELKConnector{
		name: name,
		cfg:  cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		log: log,
	}
}

// Name returns the registered connector name
func (c *ELKConnector) Name() string { return c.name }

// Type returns TypeELK
func (c *ELKConnector) Type() Type { return TypeELK }

// Connected reports whether Connect has succeeded
func (c *ELKConnector) Connected() bool { return c.connected.Load() }

// indexFor returns the daily index name for a document timestamp
func (c *ELKConnector) indexFor(t time.Time) string {
	return fmt.Sprintf("%s-%s", c.cfg.IndexPrefix, t.UTC().Format("2006.01.02"))
}

// Connect verifies cluster reachability and installs the index template
func (c *ELKConnector) Connect(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/_cluster/health", nil)
	if err != nil {
		return NewConnectorError(c.name, "Connect", "cluster unreachable", err)
	}
	if status >= 300 {
		return NewConnectorError(c.name, "Connect", fmt.Sprintf("cluster health returned %d: %s", status, truncate(body)), nil)
	}

	if err := c.installIndexTemplate(ctx); err != nil {
		return err
	}

	c.connected.Store(true)
	c.log.Info("", "", "ELK connector connected", map[string]interface{}{
		"connector": c.name,
		"url":       c.cfg.URL,
		"prefix":    c.cfg.IndexPrefix,
	})
	return nil
}

// Disconnect marks the connector disconnected. HTTP connections are pooled
// by the client and released on idle.
func (c *ELKConnector) Disconnect(context.Context) error {
	c.connected.Store(false)
	c.client.CloseIdleConnections()
	return nil
}

// installIndexTemplate maps the incident document fields so Kibana
// dashboards get proper ip/date/keyword typing.
func (c *ELKConnector) installIndexTemplate(ctx context.Context) error {
	template := map[string]interface{}{
		"index_patterns": []string{c.cfg.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   1,
				"number_of_replicas": 1,
			},
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"timestamp":  map[string]string{"type": "date"},
					"event_id":   map[string]string{"type": "keyword"},
					"event_type": map[string]string{"type": "keyword"},
					"source":     map[string]string{"type": "keyword"},
					"severity":   map[string]string{"type": "keyword"},
					"agent": map[string]interface{}{
						"properties": map[string]interface{}{
							"id":       map[string]string{"type": "keyword"},
							"hostname": map[string]string{"type": "keyword"},
							"ip":       map[string]string{"type": "ip"},
						},
					},
					"network": map[string]interface{}{
						"properties": map[string]interface{}{
							"source_ip":           map[string]string{"type": "ip"},
							"destination_ip":      map[string]string{"type": "ip"},
							"destination_country": map[string]string{"type": "keyword"},
						},
					},
					"file": map[string]interface{}{
						"properties": map[string]interface{}{
							"name": map[string]string{"type": "keyword"},
							"size": map[string]string{"type": "long"},
							"hash": map[string]string{"type": "keyword"},
						},
					},
					"dlp": map[string]interface{}{
						"properties": map[string]interface{}{
							"classification_type": map[string]string{"type": "keyword"},
							"confidence":          map[string]string{"type": "float"},
							"blocked":             map[string]string{"type": "boolean"},
							"policy_id":           map[string]string{"type": "keyword"},
							"rule_id":             map[string]string{"type": "keyword"},
						},
					},
				},
			},
		},
	}

	path := "/_index_template/" + c.cfg.IndexPrefix
	status, body, err := c.do(ctx, http.MethodPut, path, template)
	if err != nil {
		return NewConnectorError(c.name, "Connect", "index template install failed", err)
	}
	if status >= 300 {
		return NewConnectorError(c.name, "Connect", fmt.Sprintf("index template returned %d: %s", status, truncate(body)), nil)
	}
	return nil
}

// SendEvent indexes one document into the daily index
func (c *ELKConnector) SendEvent(ctx context.Context, doc map[string]interface{}) error {
	index := c.indexFor(docTime(doc))
	status, body, err := c.do(ctx, http.MethodPost, "/"+index+"/_doc", doc)
	if err != nil {
		return NewConnectorError(c.name, "SendEvent", "index request failed", err)
	}
	if status >= 300 {
		return NewConnectorError(c.name, "SendEvent", fmt.Sprintf("index returned %d: %s", status, truncate(body)), nil)
	}
	return nil
}

// bulkResponse is the subset of the _bulk response we parse
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// SendBatch delivers documents via the bulk API in chunks
func (c *ELKConnector) SendBatch(ctx context.Context, docs []map[string]interface{}) (*BatchResult, error) {
	result := &BatchResult{}

	for start := 0; start < len(docs); start += elkBulkChunkSize {
		end := start + elkBulkChunkSize
		if end > len(docs) {
			end = len(docs)
		}
		chunk := docs[start:end]

		var buf bytes.Buffer
		for _, doc := range chunk {
			action, _ := json.Marshal(map[string]interface{}{
				"index": map[string]string{"_index": c.indexFor(docTime(doc))},
			})
			source, err := json.Marshal(doc)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("marshal: %v", err))
				continue
			}
			buf.Write(action)
			buf.WriteByte('\n')
			buf.Write(source)
			buf.WriteByte('\n')
		}

		status, body, err := c.doRaw(ctx, http.MethodPost, "/_bulk", buf.Bytes(), "application/x-ndjson")
		if err != nil {
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if status >= 300 {
			result.Failed += len(chunk)
			result.Errors = append(result.Errors, fmt.Sprintf("bulk returned %d: %s", status, truncate(body)))
			continue
		}

		var parsed bulkResponse
		if err := json.Unmarshal(body, &parsed); err != nil || !parsed.Errors {
			// No per-item errors (or unparsable success body): whole chunk sent
			result.Sent += len(chunk)
			continue
		}
		for _, item := range parsed.Items {
			failed := false
			for _, op := range item {
				if op.Status >= 300 {
					failed = true
					if op.Error != nil {
						result.Errors = append(result.Errors, op.Error.Reason)
					}
				}
			}
			if failed {
				result.Failed++
			} else {
				result.Sent++
			}
		}
	}

	if result.Failed > 0 && result.Sent == 0 {
		return result, NewConnectorError(c.name, "SendBatch", "all documents failed", nil)
	}
	return result, nil
}

// QueryEvents searches the daily indices with a query_string query
func (c *ELKConnector) QueryEvents(ctx context.Context, query string, from, to time.Time, limit int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 100
	}

	body := map[string]interface{}{
		"size": limit,
		"sort": []map[string]interface{}{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{"query_string": map[string]interface{}{"query": query}},
				},
				"filter": []map[string]interface{}{
					{"range": map[string]interface{}{
						"timestamp": map[string]string{
							"gte": from.UTC().Format(time.RFC3339),
							"lte": to.UTC().Format(time.RFC3339),
						},
					}},
				},
			},
		},
	}

	path := "/" + c.cfg.IndexPrefix + "-*/_search"
	status, respBody, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, NewConnectorError(c.name, "QueryEvents", "search failed", err)
	}
	if status >= 300 {
		return nil, NewConnectorError(c.name, "QueryEvents", fmt.Sprintf("search returned %d: %s", status, truncate(respBody)), nil)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewConnectorError(c.name, "QueryEvents", "unparsable search response", err)
	}

	out := make([]map[string]interface{}, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

// CreateAlert installs a Watcher rule that fires when the query matches
// new incidents.
func (c *ELKConnector) CreateAlert(ctx context.Context, name, description string, severity types.Severity, query string) (*AlertResult, error) {
	watchID := "cybersentinel-" + sanitizeID(name)

	watch := map[string]interface{}{
		"trigger": map[string]interface{}{
			"schedule": map[string]string{"interval": "1m"},
		},
		"input": map[string]interface{}{
			"search": map[string]interface{}{
				"request": map[string]interface{}{
					"indices": []string{c.cfg.IndexPrefix + "-*"},
					"body": map[string]interface{}{
						"query": map[string]interface{}{
							"bool": map[string]interface{}{
								"must": []map[string]interface{}{
									{"query_string": map[string]interface{}{"query": query}},
								},
								"filter": []map[string]interface{}{
									{"range": map[string]interface{}{
										"timestamp": map[string]string{"gte": "now-1m"},
									}},
								},
							},
						},
					},
				},
			},
		},
		"condition": map[string]interface{}{
			"compare": map[string]interface{}{
				"ctx.payload.hits.total": map[string]interface{}{"gt": 0},
			},
		},
		"actions": map[string]interface{}{
			"log_incident": map[string]interface{}{
				"logging": map[string]interface{}{
					"text": fmt.Sprintf("[%s] %s: {{ctx.payload.hits.total}} matching incidents", severity, description),
				},
			},
		},
		"metadata": map[string]interface{}{
			"name":     name,
			"severity": string(severity),
			"source":   EventSource,
		},
	}

	status, body, err := c.do(ctx, http.MethodPut, "/_watcher/watch/"+watchID, watch)
	if err != nil {
		return nil, NewConnectorError(c.name, "CreateAlert", "watcher install failed", err)
	}
	if status >= 300 {
		return nil, NewConnectorError(c.name, "CreateAlert", fmt.Sprintf("watcher returned %d: %s", status, truncate(body)), nil)
	}

	return &AlertResult{
		ID:      watchID,
		Name:    name,
		Created: true,
		Details: map[string]string{"interval": "1m"},
	}, nil
}

// HealthCheck probes cluster health; yellow still counts as healthy
func (c *ELKConnector) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	result := &HealthStatus{Timestamp: start.UTC()}

	status, body, err := c.do(ctx, http.MethodGet, "/_cluster/health", nil)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if status >= 300 {
		result.Error = fmt.Sprintf("cluster health returned %d", status)
		return result
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		result.Error = "unparsable health response"
		return result
	}

	result.Details = map[string]string{"cluster_status": parsed.Status}
	result.Healthy = parsed.Status == "green" || parsed.Status == "yellow"
	if !result.Healthy {
		result.Error = "cluster status " + parsed.Status
	}
	return result
}

// do sends a JSON request and returns status and body
func (c *ELKConnector) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
	}
	return c.doRaw(ctx, method, path, payload, "application/json")
}

// doRaw sends a request with a preserialized body
func (c *ELKConnector) doRaw(ctx context.Context, method, path string, payload []byte, contentType string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	switch {
	case c.cfg.APIKey != "":
		req.Header.Set("Authorization", "ApiKey "+c.cfg.APIKey)
	case c.cfg.Username != "":
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// docTime extracts the document timestamp for index routing, falling back
// to now for documents without one.
func docTime(doc map[string]interface{}) time.Time {
	if raw, ok := doc["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t
		}
	}
	return time.Now()
}

// sanitizeID lowercases and strips characters unsafe for watch IDs
func sanitizeID(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return b.String()
}

// truncate bounds response bodies embedded in error messages
func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
