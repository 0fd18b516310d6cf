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

/*
Package actions executes the response actions attached to matched policy
rules.

# Execution model

Executor.Execute runs every action of every match, in match order then
declared order, and returns an ExecutionSummary. Handlers are isolated:
a failing or panicking handler is recorded as a failed ActionResult and
execution continues with the next action. The block verdict is final once
set; later failures never unblock an event.

# Action types

block, alert, notify (email / slack / webhook / siem), redact, quarantine,
encrypt (AES-256-GCM), delete, audit, webhook, escalate, tag,
flag_for_review, create_incident, preserve, and track.

# Idempotence

Side-effecting actions (notify, webhook, audit, create_incident,
quarantine, escalate) derive a dedup key from the event ID, rule ID and
action type. A replayed event reports those actions as succeeded with a
"duplicate suppressed" message instead of repeating their effects. The
Deduper is Redis-backed in production and in-process when Redis is not
configured.
*/
package actions
