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
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

const (
	// splunkHECPath is the HTTP Event Collector endpoint
	splunkHECPath = "/services/collector/event"
	// splunkHECHealthPath reports collector availability without a send
	splunkHECHealthPath = "/services/collector/health"
	// splunkBatchChunkSize bounds how many events go into one HEC request
	splunkBatchChunkSize = 500
	// splunkDefaultTimeout bounds individual Splunk calls
	splunkDefaultTimeout = 10 * time.Second
)

// SplunkConfig configures a Splunk connector. HEC settings drive event
// delivery; the management settings are only needed for search and
// saved-search alerts.
type SplunkConfig struct {
	// HECURL is the collector base URL, e.g. https://splunk.internal:8088
	HECURL string
	// HECToken authenticates event delivery
	HECToken string
	// Index, Source, SourceType and Host stamp every delivered event
	Index      string
	Source     string
	SourceType string
	Host       string
	// ManagementURL is the REST API base, e.g. https://splunk.internal:8089
	ManagementURL string
	Username      string
	Password      string
	// VerifyCerts disables TLS verification when false
	VerifyCerts bool
	// Timeout bounds each HTTP call; 0 selects splunkDefaultTimeout
	Timeout time.Duration
}

// SplunkConnector delivers incidents to Splunk over the HTTP Event
// Collector and manages saved-search alerts over the management API.
type SplunkConnector struct {
	name      string
	cfg       SplunkConfig
	client    *http.Client
	log       *logger.Logger
	connected atomic.Bool

	// sessionKey caches the management API login; refreshed on demand
	sessionKey atomic.Value
}

// NewSplunkConnector creates a Splunk connector. Call Connect before
// sending.
func NewSplunkConnector(name string, cfg SplunkConfig, log *logger.Logger) *SplunkConnector {
	if cfg.Source == "" {
		cfg.Source = EventSource
	}
	if cfg.SourceType == "" {
		cfg.SourceType = "_json"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = splunkDefaultTimeout
	}

	transport := http.DefaultTransport
	if !cfg.VerifyCerts {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &SplunkConnector{
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
func (c *SplunkConnector) Name() string { return c.name }

// Type returns TypeSplunk
func (c *SplunkConnector) Type() Type { return TypeSplunk }

// Connected reports whether Connect has succeeded
func (c *SplunkConnector) Connected() bool { return c.connected.Load() }

// Connect verifies the HEC endpoint is reachable and accepting events
func (c *SplunkConnector) Connect(ctx context.Context) error {
	status := c.HealthCheck(ctx)
	if !status.Healthy {
		return NewConnectorError(c.name, "Connect", "HEC unavailable: "+status.Error, nil)
	}

	c.connected.Store(true)
	c.log.Info("", "", "Splunk connector connected", map[string]interface{}{
		"connector": c.name,
		"hec_url":   c.cfg.HECURL,
		"index":     c.cfg.Index,
	})
	return nil
}

// Disconnect marks the connector disconnected and drops the cached
// management session.
func (c *SplunkConnector) Disconnect(context.Context) error {
	c.connected.Store(false)
	c.sessionKey.Store("")
	c.client.CloseIdleConnections()
	return nil
}

// hecEnvelope wraps one incident document in the HEC event format
func (c *SplunkConnector) hecEnvelope(doc map[string]interface{}) map[string]interface{} {
	envelope := map[string]interface{}{
		"time":       docTime(doc).Unix(),
		"source":     c.cfg.Source,
		"sourcetype": c.cfg.SourceType,
		"event":      doc,
	}
	if c.cfg.Host != "" {
		envelope["host"] = c.cfg.Host
	}
	if c.cfg.Index != "" {
		envelope["index"] = c.cfg.Index
	}
	return envelope
}

// SendEvent delivers one document over HEC
func (c *SplunkConnector) SendEvent(ctx context.Context, doc map[string]interface{}) error {
	payload, err := json.Marshal(c.hecEnvelope(doc))
	if err != nil {
		return NewConnectorError(c.name, "SendEvent", "marshal failed", err)
	}

	status, body, err := c.hecPost(ctx, splunkHECPath, payload)
	if err != nil {
		return NewConnectorError(c.name, "SendEvent", "HEC request failed", err)
	}
	if status >= 300 {
		return NewConnectorError(c.name, "SendEvent", fmt.Sprintf("HEC returned %d: %s", status, truncate(body)), nil)
	}
	return nil
}

// SendBatch concatenates HEC envelopes into newline-delimited chunks.
// HEC accepts and acknowledges a chunk as a unit, so failures are
// reported per chunk.
func (c *SplunkConnector) SendBatch(ctx context.Context, docs []map[string]interface{}) (*BatchResult, error) {
	result := &BatchResult{}

	for start := 0; start < len(docs); start += splunkBatchChunkSize {
		end := start + splunkBatchChunkSize
		if end > len(docs) {
			end = len(docs)
		}
		chunk := docs[start:end]

		var buf bytes.Buffer
		count := 0
		for _, doc := range chunk {
			payload, err := json.Marshal(c.hecEnvelope(doc))
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("marshal: %v", err))
				continue
			}
			buf.Write(payload)
			buf.WriteByte('\n')
			count++
		}
		if count == 0 {
			continue
		}

		status, body, err := c.hecPost(ctx, splunkHECPath, buf.Bytes())
		if err != nil {
			result.Failed += count
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if status >= 300 {
			result.Failed += count
			result.Errors = append(result.Errors, fmt.Sprintf("HEC returned %d: %s", status, truncate(body)))
			continue
		}
		result.Sent += count
	}

	if result.Failed > 0 && result.Sent == 0 {
		return result, NewConnectorError(c.name, "SendBatch", "all events failed", nil)
	}
	return result, nil
}

// QueryEvents runs a blocking oneshot search over the management API
func (c *SplunkConnector) QueryEvents(ctx context.Context, query string, from, to time.Time, limit int) ([]map[string]interface{}, error) {
	if c.cfg.ManagementURL == "" {
		return nil, NewConnectorError(c.name, "QueryEvents", "management API not configured", nil)
	}
	if limit <= 0 {
		limit = 100
	}

	search := query
	if !strings.HasPrefix(strings.TrimSpace(search), "search") {
		search = "search " + search
	}

	form := url.Values{
		"search":        {search},
		"exec_mode":     {"oneshot"},
		"earliest_time": {from.UTC().Format(time.RFC3339)},
		"latest_time":   {to.UTC().Format(time.RFC3339)},
		"count":         {fmt.Sprintf("%d", limit)},
		"output_mode":   {"json"},
	}

	status, body, err := c.managementPost(ctx, "/services/search/jobs", form)
	if err != nil {
		return nil, NewConnectorError(c.name, "QueryEvents", "search failed", err)
	}
	if status >= 300 {
		return nil, NewConnectorError(c.name, "QueryEvents", fmt.Sprintf("search returned %d: %s", status, truncate(body)), nil)
	}

	var parsed struct {
		Results []map[string]interface{} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewConnectorError(c.name, "QueryEvents", "unparsable search response", err)
	}
	return parsed.Results, nil
}

// CreateAlert installs a saved search that fires on matching incidents
func (c *SplunkConnector) CreateAlert(ctx context.Context, name, description string, severity types.Severity, query string) (*AlertResult, error) {
	if c.cfg.ManagementURL == "" {
		return nil, NewConnectorError(c.name, "CreateAlert", "management API not configured", nil)
	}

	search := query
	if !strings.HasPrefix(strings.TrimSpace(search), "search") {
		search = "search " + search
	}

	form := url.Values{
		"name":                        {name},
		"search":                      {search},
		"description":                 {description},
		"is_scheduled":                {"1"},
		"cron_schedule":               {"* * * * *"},
		"alert_type":                  {"number of events"},
		"alert_comparator":            {"greater than"},
		"alert_threshold":             {"0"},
		"alert.severity":              {splunkAlertSeverity(severity)},
		"actions":                     {"email"},
		"dispatch.earliest_time":      {"-1m"},
		"dispatch.latest_time":        {"now"},
		"alert.suppress":              {"0"},
		"alert.track":                 {"1"},
		"request.ui_dispatch_app":     {"search"},
		"request.ui_dispatch_view":    {"search"},
		"displayview":                 {""},
	}

	status, body, err := c.managementPost(ctx, "/services/saved/searches", form)
	if err != nil {
		return nil, NewConnectorError(c.name, "CreateAlert", "saved search failed", err)
	}
	if status >= 300 {
		return nil, NewConnectorError(c.name, "CreateAlert", fmt.Sprintf("saved search returned %d: %s", status, truncate(body)), nil)
	}

	return &AlertResult{
		ID:      name,
		Name:    name,
		Created: true,
		Details: map[string]string{"cron_schedule": "* * * * *"},
	}, nil
}

// HealthCheck probes the HEC health endpoint
func (c *SplunkConnector) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	result := &HealthStatus{Timestamp: start.UTC()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.HECURL+splunkHECHealthPath, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Authorization", "Splunk "+c.cfg.HECToken)

	resp, err := c.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("HEC health returned %d", resp.StatusCode)
		return result
	}

	result.Healthy = true
	result.Details = map[string]string{"hec": "available"}
	return result
}

// hecPost sends a payload to the event collector with token auth
func (c *SplunkConnector) hecPost(ctx context.Context, path string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.HECURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Splunk "+c.cfg.HECToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// managementPost sends a form to the management API, logging in for a
// session key on first use and retrying once on auth expiry.
func (c *SplunkConnector) managementPost(ctx context.Context, path string, form url.Values) (int, []byte, error) {
	key, err := c.session(ctx, false)
	if err != nil {
		return 0, nil, err
	}

	status, body, err := c.managementDo(ctx, path, form, key)
	if err != nil {
		return status, body, err
	}
	if status == http.StatusUnauthorized {
		key, err = c.session(ctx, true)
		if err != nil {
			return 0, nil, err
		}
		return c.managementDo(ctx, path, form, key)
	}
	return status, body, nil
}

func (c *SplunkConnector) managementDo(ctx context.Context, path string, form url.Values, sessionKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ManagementURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Splunk "+sessionKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// session returns the cached management session key, logging in when the
// cache is empty or refresh is forced.
func (c *SplunkConnector) session(ctx context.Context, refresh bool) (string, error) {
	if !refresh {
		if key, ok := c.sessionKey.Load().(string); ok && key != "" {
			return key, nil
		}
	}

	form := url.Values{
		"username": {c.cfg.Username},
		"password": {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ManagementURL+"/services/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("login returned %d: %s", resp.StatusCode, truncate(body))
	}

	var parsed struct {
		XMLName    xml.Name `xml:"response"`
		SessionKey string   `xml:"sessionKey"`
	}
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unparsable login response: %w", err)
	}
	if parsed.SessionKey == "" {
		return "", fmt.Errorf("login response missing session key")
	}

	c.sessionKey.Store(parsed.SessionKey)
	return parsed.SessionKey, nil
}

// splunkAlertSeverity maps incident severity onto Splunk's 1-6 scale
func splunkAlertSeverity(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "6"
	case types.SeverityHigh:
		return "5"
	case types.SeverityMedium:
		return "4"
	case types.SeverityLow:
		return "3"
	default:
		return "2"
	}
}
