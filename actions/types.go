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

// Action types executable by the Executor
const (
	ActionBlock         = "block"
	ActionAlert         = "alert"
	ActionNotify        = "notify"
	ActionRedact        = "redact"
	ActionQuarantine    = "quarantine"
	ActionEncrypt       = "encrypt"
	ActionDelete        = "delete"
	ActionAudit         = "audit"
	ActionWebhook       = "webhook"
	ActionEscalate      = "escalate"
	ActionTag           = "tag"
	ActionFlagForReview = "flag_for_review"
	ActionIncident      = "create_incident"
	ActionPreserve      = "preserve"
	ActionTrack         = "track"
)

// Notification channels for the notify action
const (
	ChannelEmail   = "email"
	ChannelSlack   = "slack"
	ChannelWebhook = "webhook"
	ChannelSIEM    = "siem"
)

// sideEffecting lists action types whose external effects must not repeat
// when the same event and rule are processed again (agent retries,
// re-submissions). Handlers for these consult the Deduper first.
var sideEffecting = map[string]bool{
	ActionNotify:     true,
	ActionWebhook:    true,
	ActionAudit:      true,
	ActionIncident:   true,
	ActionQuarantine: true,
	ActionEscalate:   true,
}
