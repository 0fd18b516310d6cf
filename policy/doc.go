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
Package policy implements the YAML policy catalog and the rule evaluator.

# Catalog

Policies live one per file in a directory:

	policy:
	  id: pci-cardholder-data
	  name: PCI Cardholder Data
	  enabled: true
	  priority: 100
	  severity: critical
	  stop_on_match: true
	rules:
	  - id: block-exfil
	    conditions:
	      - field: classification.type
	        operator: equals
	        value: credit_card
	      - field: event.type
	        operator: in
	        value: [network, usb]
	    actions:
	      - type: block
	      - type: alert

The Catalog publishes immutable Snapshots behind an atomic pointer. A
reload builds a complete new snapshot and swaps it only on success, so
in-flight evaluations always see a consistent catalog and a broken edit
never takes down enforcement. Invalid files are skipped and recorded;
the rest of the catalog still loads.

A fsnotify Watcher on the policy directory debounces file events and
triggers reloads, so policy edits take effect without a restart.

# Evaluation

Evaluate scans enabled policies in priority order (ascending, ties by
ID). Conditions within a rule are AND-ed; every matching rule in a
policy produces a match; stop_on_match on a matched policy ends the
scan. A rule with no conditions always matches.

Condition fields are dotted paths resolved against Event.Fields(). A path
that traverses an array matches when any element satisfies the operator.
Unresolvable paths only interact with exists / not_exists. Fifteen
operators are supported; numeric comparisons coerce int and float, and
regex patterns are compiled once at catalog load.
*/
package policy
