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
	"time"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// EventSource is the source tag stamped on every delivered incident
const EventSource = "cybersentinel_dlp"

// FormatEvent renders an event as the dlp_incident document delivered to
// SIEM platforms. Empty sub-objects are pruned so the document only
// carries populated context.
func FormatEvent(ev *types.Event) map[string]interface{} {
	doc := map[string]interface{}{
		"timestamp":  ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"event_id":   ev.EventID,
		"event_type": "dlp_incident",
		"source":     EventSource,
		"severity":   string(ev.Severity),
	}

	putNonEmpty(doc, "agent", map[string]interface{}{
		"id":       ev.Agent.ID,
		"name":     ev.Agent.Name,
		"hostname": ev.Agent.Hostname,
		"ip":       ev.Agent.IP,
		"os":       ev.Agent.OS,
	})
	putNonEmpty(doc, "user", map[string]interface{}{
		"username": ev.User.Username,
		"domain":   ev.User.Domain,
		"email":    ev.User.Email,
	})
	putNonEmpty(doc, "network", map[string]interface{}{
		"source_ip":           ev.Network.SourceIP,
		"destination_ip":      ev.Network.DestinationIP,
		"destination_host":    ev.Network.DestinationHost,
		"destination_country": ev.Network.DestinationCountry,
	})
	putNonEmpty(doc, "file", map[string]interface{}{
		"name": ev.File.Name,
		"path": ev.File.Path,
		"size": ev.File.Size,
		"hash": ev.File.Hash,
		"type": ev.File.Type,
	})

	doc["dlp"] = dlpBlock(ev)

	if summary := ev.ActionsExecuted; summary != nil && len(summary.Results) > 0 {
		executed := make([]string, 0, len(summary.Results))
		for _, r := range summary.Results {
			if r.Success {
				executed = append(executed, r.ActionType)
			}
		}
		if len(executed) > 0 {
			doc["actions"] = executed
		}
	}

	if len(ev.Metadata) > 0 {
		doc["metadata"] = ev.Metadata
	}

	return doc
}

// dlpBlock summarizes classification and policy verdict. The top hit is
// the highest-confidence classification; the first policy match names the
// policy and rule.
func dlpBlock(ev *types.Event) map[string]interface{} {
	block := map[string]interface{}{
		"blocked": ev.Blocked,
	}

	var top *types.ClassificationHit
	for i := range ev.Classification {
		if top == nil || ev.Classification[i].Confidence > top.Confidence {
			top = &ev.Classification[i]
		}
	}
	if top != nil {
		block["classification_type"] = top.Type
		block["confidence"] = top.Confidence
	}

	if len(ev.PolicyMatches) > 0 {
		first := ev.PolicyMatches[0]
		block["policy_id"] = first.PolicyID
		block["policy_name"] = first.PolicyName
		block["rule_id"] = first.RuleID
	}

	return block
}

// putNonEmpty adds the sub-object only when it has at least one non-zero
// value, dropping the zero-valued keys.
func putNonEmpty(doc map[string]interface{}, key string, sub map[string]interface{}) {
	pruned := make(map[string]interface{}, len(sub))
	for k, v := range sub {
		switch t := v.(type) {
		case string:
			if t != "" {
				pruned[k] = t
			}
		case int64:
			if t != 0 {
				pruned[k] = t
			}
		default:
			if v != nil {
				pruned[k] = v
			}
		}
	}
	if len(pruned) > 0 {
		doc[key] = pruned
	}
}
