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

package policy

import (
	"fmt"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// Supported condition operators
const (
	OpEquals         = "equals"
	OpNotEquals      = "not_equals"
	OpContains       = "contains"
	OpNotContains    = "not_contains"
	OpIn             = "in"
	OpNotIn          = "not_in"
	OpGreaterThan    = "greater_than"
	OpLessThan       = "less_than"
	OpGreaterOrEqual = "greater_or_equal"
	OpLessOrEqual    = "less_or_equal"
	OpRegex          = "regex"
	OpExists         = "exists"
	OpNotExists      = "not_exists"
	OpStartsWith     = "starts_with"
	OpEndsWith       = "ends_with"
)

var knownOperators = map[string]bool{
	OpEquals: true, OpNotEquals: true,
	OpContains: true, OpNotContains: true,
	OpIn: true, OpNotIn: true,
	OpGreaterThan: true, OpLessThan: true,
	OpGreaterOrEqual: true, OpLessOrEqual: true,
	OpRegex: true, OpExists: true, OpNotExists: true,
	OpStartsWith: true, OpEndsWith: true,
}

// Condition is a single predicate over an event field. Field is a dotted
// path into the event field map (e.g. "classification.type").
type Condition struct {
	Field    string      `yaml:"field" json:"field"`
	Operator string      `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value,omitempty" json:"value,omitempty"`
}

// Rule is a conjunction of conditions with the actions to run on match
type Rule struct {
	ID         string             `yaml:"id" json:"id"`
	Name       string             `yaml:"name,omitempty" json:"name,omitempty"`
	Conditions []Condition        `yaml:"conditions" json:"conditions"`
	Actions    []types.ActionSpec `yaml:"actions" json:"actions"`
}

// Policy is a named, prioritized set of rules loaded from one YAML file.
// Lower priority values are evaluated first.
type Policy struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Enabled     bool           `json:"enabled"`
	Priority    int            `json:"priority"`
	Severity    types.Severity `json:"severity"`
	StopOnMatch bool           `json:"stop_on_match"`
	Rules       []Rule         `json:"rules"`
}

// policyHeader is the policy section of the on-disk document
type policyHeader struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Enabled     bool           `yaml:"enabled"`
	Priority    int            `yaml:"priority"`
	Severity    types.Severity `yaml:"severity"`
	StopOnMatch bool           `yaml:"stop_on_match"`
}

// policyFile is the on-disk document: a policy header beside its rule list
type policyFile struct {
	Policy policyHeader `yaml:"policy"`
	Rules  []Rule       `yaml:"rules"`
}

// policy assembles the in-memory Policy from the parsed document
func (f *policyFile) policy() *Policy {
	return &Policy{
		ID:          f.Policy.ID,
		Name:        f.Policy.Name,
		Description: f.Policy.Description,
		Enabled:     f.Policy.Enabled,
		Priority:    f.Policy.Priority,
		Severity:    f.Policy.Severity,
		StopOnMatch: f.Policy.StopOnMatch,
		Rules:       f.Rules,
	}
}

// regexKey builds the compiled-pattern cache key for a regex condition
func regexKey(policyID, ruleID string, condIndex int) string {
	return fmt.Sprintf("%s:%s:%d", policyID, ruleID, condIndex)
}
