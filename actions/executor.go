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

package actions

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Vansh-Raja/cybersentinel-dlp/classify"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// DefaultWebhookTimeout bounds outbound webhook calls
const DefaultWebhookTimeout = 5 * time.Second

// SIEMSender forwards an event to all registered SIEM connectors. Satisfied
// by siem.Service.
type SIEMSender interface {
	SendEventToAll(ctx context.Context, ev *types.Event) map[string]bool
}

// AuditSink durably records action executions. Satisfied by the Postgres
// event store.
type AuditSink interface {
	RecordAction(ctx context.Context, ev *types.Event, action string, details map[string]interface{}) error
}

// QuarantineStore isolates event content for later investigation. Satisfied
// by storage.FileQuarantine.
type QuarantineStore interface {
	Quarantine(ctx context.Context, ev *types.Event, reason string) (string, error)
}

// Notifier dispatches notifications on a named channel. Satisfied by
// Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, channel string, ev *types.Event, params map[string]interface{}) error
}

// Executor runs policy actions against events. Action failures are
// isolated: one failing handler never prevents the remaining actions from
// running, and the failure is recorded in the ExecutionSummary.
type Executor struct {
	log        *logger.Logger
	siem       SIEMSender
	audit      AuditSink
	quarantine QuarantineStore
	notifier   Notifier
	dedup      Deduper
	httpClient *http.Client
	encKey     []byte
	encKeyID   string
}

// Option configures an Executor
type Option func(*Executor)

// WithSIEM wires the SIEM fan-out used by escalate and notify(siem)
func WithSIEM(s SIEMSender) Option {
	return func(x *Executor) { x.siem = s }
}

// WithAuditSink wires the durable audit record sink
func WithAuditSink(a AuditSink) Option {
	return func(x *Executor) { x.audit = a }
}

// WithQuarantine wires the quarantine store
func WithQuarantine(q QuarantineStore) Option {
	return func(x *Executor) { x.quarantine = q }
}

// WithNotifier wires the notification dispatcher
func WithNotifier(n Notifier) Option {
	return func(x *Executor) { x.notifier = n }
}

// WithDeduper replaces the default in-memory deduper
func WithDeduper(d Deduper) Option {
	return func(x *Executor) { x.dedup = d }
}

// WithHTTPClient replaces the webhook HTTP client (tests)
func WithHTTPClient(c *http.Client) Option {
	return func(x *Executor) { x.httpClient = c }
}

// WithEncryptionKey sets the AES-256 key used by the encrypt action. The
// key must be 32 bytes; keyID is recorded on encrypted events so content
// can be recovered.
func WithEncryptionKey(key []byte, keyID string) Option {
	return func(x *Executor) {
		x.encKey = key
		x.encKeyID = keyID
	}
}

// NewExecutor creates an Executor. Without options it logs alerts, dedups
// in memory, and reports unavailable integrations as action failures.
func NewExecutor(log *logger.Logger, opts ...Option) *Executor {
	x := &Executor{
		log:        log,
		dedup:      NewMemoryDeduper(0),
		httpClient: &http.Client{Timeout: DefaultWebhookTimeout},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute runs every action of every matched rule, in match order then
// declared action order, and returns the aggregate summary. The summary is
// also attached to the event.
func (x *Executor) Execute(ctx context.Context, ev *types.Event, matches []types.PolicyMatch) *types.ExecutionSummary {
	summary := &types.ExecutionSummary{EventID: ev.EventID}

	for _, match := range matches {
		for _, action := range match.Actions {
			result := x.runOne(ctx, ev, &match, &action)
			summary.Results = append(summary.Results, result)
			summary.Total++
			if result.Success {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
		}
	}

	summary.Blocked = ev.Blocked
	ev.ActionsExecuted = summary
	return summary
}

// runOne executes a single action with panic isolation and dedup
func (x *Executor) runOne(ctx context.Context, ev *types.Event, match *types.PolicyMatch, action *types.ActionSpec) (result types.ActionResult) {
	start := time.Now()
	result = types.ActionResult{
		ActionType: action.Type,
		ExecutedAt: start.UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("action panicked: %v", r)
			x.log.Error(ev.Agent.ID, ev.EventID, "Action handler panicked", map[string]interface{}{
				"action": action.Type,
				"panic":  fmt.Sprintf("%v", r),
			})
		}
		result.DurationMS = float64(time.Since(start).Microseconds()) / 1000.0
	}()

	if sideEffecting[action.Type] {
		dup, err := x.dedup.Seen(ctx, DedupKey(ev.EventID, match.RuleID, action.Type))
		if err != nil {
			// Dedup backend failure: run the action rather than drop it
			x.log.Warn(ev.Agent.ID, ev.EventID, "Dedup check failed, executing anyway", map[string]interface{}{
				"action": action.Type,
				"error":  err.Error(),
			})
		} else if dup {
			result.Success = true
			result.Message = "duplicate suppressed"
			return result
		}
	}

	msg, err := x.dispatch(ctx, ev, match, action)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		x.log.Error(ev.Agent.ID, ev.EventID, "Action failed", map[string]interface{}{
			"action":    action.Type,
			"policy_id": match.PolicyID,
			"rule_id":   match.RuleID,
			"error":     err.Error(),
		})
		return result
	}

	result.Success = true
	result.Message = msg
	return result
}

// dispatch routes an action to its handler
func (x *Executor) dispatch(ctx context.Context, ev *types.Event, match *types.PolicyMatch, action *types.ActionSpec) (string, error) {
	switch action.Type {
	case ActionBlock:
		return x.doBlock(ev)
	case ActionAlert:
		return x.doAlert(ev, match, action.Params)
	case ActionNotify:
		return x.doNotify(ctx, ev, action.Params)
	case ActionRedact:
		return x.doRedact(ev, action.Params)
	case ActionQuarantine:
		return x.doQuarantine(ctx, ev, match)
	case ActionEncrypt:
		return x.doEncrypt(ev)
	case ActionDelete:
		return x.doDelete(ev)
	case ActionAudit:
		return x.doAudit(ctx, ev, match)
	case ActionWebhook:
		return x.doWebhook(ctx, ev, match, action.Params)
	case ActionEscalate:
		return x.doEscalate(ctx, ev, action.Params)
	case ActionTag:
		return x.doTag(ev, action.Params)
	case ActionFlagForReview:
		return x.doFlagForReview(ev)
	case ActionIncident:
		return x.doCreateIncident(ctx, ev, match)
	case ActionPreserve:
		return x.doPreserve(ctx, ev, match)
	case ActionTrack:
		return "tracked", nil
	default:
		return "", fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (x *Executor) doBlock(ev *types.Event) (string, error) {
	ev.Blocked = true
	return "event blocked", nil
}

func (x *Executor) doAlert(ev *types.Event, match *types.PolicyMatch, params map[string]interface{}) (string, error) {
	fields := map[string]interface{}{
		"policy_id":   match.PolicyID,
		"policy_name": match.PolicyName,
		"rule_id":     match.RuleID,
		"severity":    string(match.Severity),
	}
	for k, v := range params {
		fields[k] = v
	}
	x.log.Warn(ev.Agent.ID, ev.EventID, "DLP policy alert", fields)
	return "alert raised", nil
}

func (x *Executor) doNotify(ctx context.Context, ev *types.Event, params map[string]interface{}) (string, error) {
	channel, _ := params["channel"].(string)
	if channel == "" {
		return "", fmt.Errorf("notify: channel param is required")
	}
	if channel == ChannelSIEM {
		if x.siem == nil {
			return "", fmt.Errorf("notify: no SIEM service configured")
		}
		results := x.siem.SendEventToAll(ctx, ev)
		for name, ok := range results {
			if !ok {
				return "", fmt.Errorf("notify: SIEM delivery to %s failed", name)
			}
		}
		return fmt.Sprintf("notified %d SIEM connectors", len(results)), nil
	}
	if x.notifier == nil {
		return "", fmt.Errorf("notify: no notifier configured")
	}
	if err := x.notifier.Notify(ctx, channel, ev, params); err != nil {
		return "", fmt.Errorf("notify via %s: %w", channel, err)
	}
	return fmt.Sprintf("notified via %s", channel), nil
}

func (x *Executor) doRedact(ev *types.Event, params map[string]interface{}) (string, error) {
	if len(ev.Classification) == 0 {
		return "nothing to redact", nil
	}
	modeStr, _ := params["mode"].(string)
	mode := classify.ParseRedactionMode(modeStr)
	ev.Content = classify.Redact(ev.Content, ev.Classification, mode)
	ev.SetMeta("redacted", true)
	ev.SetMeta("redaction_mode", string(mode))
	return fmt.Sprintf("redacted %d spans (%s)", len(ev.Classification), mode), nil
}

func (x *Executor) doQuarantine(ctx context.Context, ev *types.Event, match *types.PolicyMatch) (string, error) {
	if x.quarantine == nil {
		return "", fmt.Errorf("quarantine: no quarantine store configured")
	}
	path, err := x.quarantine.Quarantine(ctx, ev, "policy "+match.PolicyID)
	if err != nil {
		return "", fmt.Errorf("quarantine: %w", err)
	}
	ev.SetMeta("quarantine_path", path)
	return "quarantined to " + path, nil
}

func (x *Executor) doEncrypt(ev *types.Event) (string, error) {
	if len(x.encKey) != 32 {
		return "", fmt.Errorf("encrypt: no AES-256 key configured")
	}
	if ev.Content == "" {
		return "no content to encrypt", nil
	}

	block, err := aes.NewCipher(x.encKey)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(ev.Content), nil)
	ev.Content = base64.StdEncoding.EncodeToString(sealed)
	ev.SetMeta("encrypted", true)
	ev.SetMeta("encryption_key_id", x.encKeyID)
	return "content encrypted", nil
}

func (x *Executor) doDelete(ev *types.Event) (string, error) {
	// Server-side the source file is out of reach; record the deletion
	// instruction for the agent to act on at next checkin.
	ev.SetMeta("delete_requested", true)
	return "deletion requested", nil
}

func (x *Executor) doAudit(ctx context.Context, ev *types.Event, match *types.PolicyMatch) (string, error) {
	if x.audit == nil {
		return "", fmt.Errorf("audit: no audit sink configured")
	}
	err := x.audit.RecordAction(ctx, ev, ActionAudit, map[string]interface{}{
		"policy_id": match.PolicyID,
		"rule_id":   match.RuleID,
		"severity":  string(match.Severity),
	})
	if err != nil {
		return "", fmt.Errorf("audit: %w", err)
	}
	return "audit record written", nil
}

// webhookPayload is the JSON body posted by the webhook action
type webhookPayload struct {
	EventID    string   `json:"event_id"`
	Timestamp  string   `json:"timestamp"`
	AgentID    string   `json:"agent_id"`
	PolicyID   string   `json:"policy_id"`
	PolicyName string   `json:"policy_name"`
	RuleID     string   `json:"rule_id"`
	Severity   string   `json:"severity"`
	Blocked    bool     `json:"blocked"`
	Types      []string `json:"classification_types,omitempty"`
}

func (x *Executor) doWebhook(ctx context.Context, ev *types.Event, match *types.PolicyMatch, params map[string]interface{}) (string, error) {
	url, _ := params["url"].(string)
	if url == "" {
		return "", fmt.Errorf("webhook: url param is required")
	}

	payload := webhookPayload{
		EventID:    ev.EventID,
		Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339),
		AgentID:    ev.Agent.ID,
		PolicyID:   match.PolicyID,
		PolicyName: match.PolicyName,
		RuleID:     match.RuleID,
		Severity:   string(match.Severity),
		Blocked:    ev.Blocked,
	}
	for _, hit := range ev.Classification {
		payload.Types = append(payload.Types, hit.Type)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("webhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook: %s returned %d", url, resp.StatusCode)
	}
	return fmt.Sprintf("webhook delivered (%d)", resp.StatusCode), nil
}

func (x *Executor) doEscalate(ctx context.Context, ev *types.Event, params map[string]interface{}) (string, error) {
	before := ev.Severity
	if target, ok := params["severity"].(string); ok && types.Severity(target).IsValid() {
		if types.Severity(target).Rank() > ev.Severity.Rank() {
			ev.Severity = types.Severity(target)
		}
	} else {
		ev.Severity = ev.Severity.Escalate()
	}
	ev.SetMeta("escalated_from", string(before))

	// Re-emit at the new severity so downstream alerting reacts
	if x.siem != nil {
		x.siem.SendEventToAll(ctx, ev)
	}
	return fmt.Sprintf("severity %s -> %s", before, ev.Severity), nil
}

func (x *Executor) doTag(ev *types.Event, params map[string]interface{}) (string, error) {
	raw, ok := params["tags"].([]interface{})
	if !ok || len(raw) == 0 {
		return "", fmt.Errorf("tag: tags param must be a non-empty list")
	}

	var existing []string
	if cur, ok := ev.Metadata["tags"].([]string); ok {
		existing = cur
	}
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			existing = append(existing, s)
		}
	}
	ev.SetMeta("tags", existing)
	return fmt.Sprintf("tagged (%d tags)", len(existing)), nil
}

func (x *Executor) doFlagForReview(ev *types.Event) (string, error) {
	ev.SetMeta("review_required", true)
	return "flagged for review", nil
}

func (x *Executor) doCreateIncident(ctx context.Context, ev *types.Event, match *types.PolicyMatch) (string, error) {
	incidentID := uuid.NewString()
	ev.SetMeta("incident_id", incidentID)

	if x.audit != nil {
		if err := x.audit.RecordAction(ctx, ev, ActionIncident, map[string]interface{}{
			"incident_id": incidentID,
			"policy_id":   match.PolicyID,
			"rule_id":     match.RuleID,
		}); err != nil {
			return "", fmt.Errorf("create_incident: %w", err)
		}
	}
	return "incident " + incidentID, nil
}

func (x *Executor) doPreserve(ctx context.Context, ev *types.Event, match *types.PolicyMatch) (string, error) {
	ev.SetMeta("preserve", true)
	if x.audit != nil {
		if err := x.audit.RecordAction(ctx, ev, ActionPreserve, map[string]interface{}{
			"policy_id": match.PolicyID,
			"rule_id":   match.RuleID,
		}); err != nil {
			return "", fmt.Errorf("preserve: %w", err)
		}
	}
	return "preservation hold recorded", nil
}
