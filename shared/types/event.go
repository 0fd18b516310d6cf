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

package types

import (
	"time"
)

// Severity represents the severity of an event or policy
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid returns true if the Severity is a known value
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank returns a numeric rank for severity comparison (info=0 .. critical=4)
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return -1
	}
}

// Escalate returns the next severity level up. Critical stays critical.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityInfo:
		return SeverityLow
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh, SeverityCritical:
		return SeverityCritical
	default:
		return s
	}
}

// EventType represents the channel an event was captured on
type EventType string

const (
	EventTypeFile       EventType = "file"
	EventTypeClipboard  EventType = "clipboard"
	EventTypeUSB        EventType = "usb"
	EventTypeNetwork    EventType = "network"
	EventTypePrint      EventType = "print"
	EventTypeScreenshot EventType = "screenshot"
	EventTypeOther      EventType = "other"
)

// IsValid returns true if the EventType is a known value
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeFile, EventTypeClipboard, EventTypeUSB, EventTypeNetwork,
		EventTypePrint, EventTypeScreenshot, EventTypeOther:
		return true
	default:
		return false
	}
}

// AgentInfo identifies the endpoint agent that reported an event
type AgentInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	IP       string `json:"ip,omitempty"`
	OS       string `json:"os,omitempty"`
}

// UserInfo identifies the user associated with an event
type UserInfo struct {
	Username string `json:"username,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Email    string `json:"email,omitempty"`
}

// NetworkInfo carries the network context of an event
type NetworkInfo struct {
	SourceIP           string `json:"source_ip,omitempty"`
	DestinationIP      string `json:"destination_ip,omitempty"`
	DestinationHost    string `json:"destination_host,omitempty"`
	DestinationCountry string `json:"destination_country,omitempty"`
}

// FileInfo carries the file context of an event
type FileInfo struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
	Size int64  `json:"size,omitempty"`
	Hash string `json:"hash,omitempty"`
	Type string `json:"type,omitempty"`
}

// ClassificationHit is a single sensitive-data detection within event content
type ClassificationHit struct {
	Type       string  `json:"type"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence"`
	PatternID  string  `json:"pattern_id,omitempty"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

// ActionSpec is a policy action declaration. Params is free-form and
// interpreted by the handler for the given action type.
type ActionSpec struct {
	Type   string                 `json:"type" yaml:"type"`
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// PolicyMatch records a policy rule that matched an event
type PolicyMatch struct {
	PolicyID   string       `json:"policy_id"`
	PolicyName string       `json:"policy_name"`
	RuleID     string       `json:"rule_id"`
	Severity   Severity     `json:"severity"`
	MatchedAt  time.Time    `json:"matched_at"`
	Actions    []ActionSpec `json:"actions,omitempty"`
}

// ActionResult records the outcome of a single executed action
type ActionResult struct {
	ActionType string    `json:"action_type"`
	Success    bool      `json:"success"`
	DurationMS float64   `json:"duration_ms"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// ExecutionSummary aggregates the results of all actions run for an event
type ExecutionSummary struct {
	EventID   string         `json:"event_id"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Blocked   bool           `json:"blocked"`
	Results   []ActionResult `json:"results,omitempty"`
}

// Event is a DLP event reported by an endpoint agent, plus the state the
// pipeline derives while processing it.
type Event struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"event_type"`
	Severity  Severity  `json:"severity"`

	Agent   AgentInfo   `json:"agent"`
	User    UserInfo    `json:"user,omitzero"`
	Network NetworkInfo `json:"network,omitzero"`
	File    FileInfo    `json:"file,omitzero"`

	Content  string                 `json:"content,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Derived by the pipeline
	DayOfWeek string `json:"day_of_week,omitempty"`
	HourOfDay int    `json:"hour_of_day"`
	OffHours  bool   `json:"off_hours"`
	Truncated bool   `json:"truncated,omitempty"`

	Classification  []ClassificationHit `json:"classification,omitempty"`
	PolicyMatches   []PolicyMatch       `json:"policy_matches,omitempty"`
	ActionsExecuted *ExecutionSummary   `json:"actions_executed,omitempty"`
	Blocked         bool                `json:"blocked"`
}

// SetMeta writes a metadata key, allocating the map on first use
func (e *Event) SetMeta(key string, value interface{}) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
}

// Fields returns the nested map view of the event used by the policy rule
// evaluator for dotted-path field resolution. Classification hits appear as
// an array of maps so conditions like "classification.type" match when any
// hit satisfies the operator.
func (e *Event) Fields() map[string]interface{} {
	hits := make([]interface{}, 0, len(e.Classification))
	for _, h := range e.Classification {
		hits = append(hits, map[string]interface{}{
			"type":       h.Type,
			"label":      h.Label,
			"confidence": h.Confidence,
			"pattern_id": h.PatternID,
			"start":      h.Start,
			"end":        h.End,
		})
	}

	m := map[string]interface{}{
		"event_id":  e.EventID,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"event": map[string]interface{}{
			"type":        string(e.Type),
			"severity":    string(e.Severity),
			"day_of_week": e.DayOfWeek,
			"hour_of_day": e.HourOfDay,
			"off_hours":   e.OffHours,
		},
		"agent": map[string]interface{}{
			"id":       e.Agent.ID,
			"name":     e.Agent.Name,
			"hostname": e.Agent.Hostname,
			"ip":       e.Agent.IP,
			"os":       e.Agent.OS,
		},
		"user": map[string]interface{}{
			"username": e.User.Username,
			"domain":   e.User.Domain,
			"email":    e.User.Email,
		},
		"network": map[string]interface{}{
			"source_ip":           e.Network.SourceIP,
			"destination_ip":      e.Network.DestinationIP,
			"destination_host":    e.Network.DestinationHost,
			"destination_country": e.Network.DestinationCountry,
		},
		"file": map[string]interface{}{
			"name": e.File.Name,
			"path": e.File.Path,
			"size": e.File.Size,
			"hash": e.File.Hash,
			"type": e.File.Type,
		},
		"content":        e.Content,
		"blocked":        e.Blocked,
		"classification": hits,
	}

	if e.Metadata != nil {
		m["metadata"] = e.Metadata
	}

	return m
}
