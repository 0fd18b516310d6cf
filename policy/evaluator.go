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
	"regexp"
	"strings"
	"time"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// Evaluate runs the event against every enabled policy in the snapshot.
// Policies are scanned in priority order and every matching rule
// contributes a match; a matching policy with stop_on_match set ends the
// scan. A condition never errors: type mismatches and unresolvable fields
// simply do not match.
func Evaluate(snap *Snapshot, ev *types.Event) []types.PolicyMatch {
	if snap == nil {
		return nil
	}

	fields := ev.Fields()
	var matches []types.PolicyMatch

	for _, pol := range snap.Policies {
		if !pol.Enabled {
			continue
		}

		matched := false
		for _, rule := range pol.Rules {
			if !ruleMatches(snap, &pol, &rule, fields) {
				continue
			}
			matches = append(matches, types.PolicyMatch{
				PolicyID:   pol.ID,
				PolicyName: pol.Name,
				RuleID:     rule.ID,
				Severity:   pol.Severity,
				MatchedAt:  time.Now().UTC(),
				Actions:    rule.Actions,
			})
			matched = true
		}

		if matched && pol.StopOnMatch {
			break
		}
	}

	return matches
}

// ruleMatches reports whether every condition of the rule holds
func ruleMatches(snap *Snapshot, pol *Policy, rule *Rule, fields map[string]interface{}) bool {
	for i, cond := range rule.Conditions {
		if !condMatches(snap, regexKey(pol.ID, rule.ID, i), &cond, fields) {
			return false
		}
	}
	return true
}

// condMatches evaluates one condition. When the resolved field is an array
// the condition holds if any element satisfies the operator.
func condMatches(snap *Snapshot, rxKey string, cond *Condition, fields map[string]interface{}) bool {
	vals, ok := resolveField(fields, cond.Field)

	switch cond.Operator {
	case OpExists:
		return ok
	case OpNotExists:
		return !ok
	}
	if !ok {
		return false
	}

	for _, v := range vals {
		if applyOperator(snap, rxKey, cond.Operator, v, cond.Value) {
			return true
		}
	}
	return false
}

// resolveField walks a dotted path through nested maps. Arrays along the
// path fan out: every element that resolves contributes a candidate value.
// Returns false when nothing on the path resolves.
func resolveField(root map[string]interface{}, path string) ([]interface{}, bool) {
	if path == "" {
		return nil, false
	}

	current := []interface{}{root}
	for _, part := range strings.Split(path, ".") {
		var next []interface{}
		for _, c := range current {
			switch t := c.(type) {
			case map[string]interface{}:
				if v, found := t[part]; found {
					next = append(next, v)
				}
			case []interface{}:
				for _, el := range t {
					if m, isMap := el.(map[string]interface{}); isMap {
						if v, found := m[part]; found {
							next = append(next, v)
						}
					}
				}
			}
		}
		if len(next) == 0 {
			return nil, false
		}
		current = next
	}

	// Flatten terminal arrays so operators see scalar candidates
	var out []interface{}
	for _, c := range current {
		if arr, isArr := c.([]interface{}); isArr {
			out = append(out, arr...)
		} else {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// applyOperator evaluates one operator against a single resolved value
func applyOperator(snap *Snapshot, rxKey, op string, fieldVal, condVal interface{}) bool {
	switch op {
	case OpEquals:
		return looseEqual(fieldVal, condVal)
	case OpNotEquals:
		return !looseEqual(fieldVal, condVal)
	case OpContains:
		return strings.Contains(asString(fieldVal), asString(condVal))
	case OpNotContains:
		return !strings.Contains(asString(fieldVal), asString(condVal))
	case OpIn:
		list, ok := condVal.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if looseEqual(fieldVal, item) {
				return true
			}
		}
		return false
	case OpNotIn:
		list, ok := condVal.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if looseEqual(fieldVal, item) {
				return false
			}
		}
		return true
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		a, aok := asFloat(fieldVal)
		b, bok := asFloat(condVal)
		if !aok || !bok {
			return false
		}
		switch op {
		case OpGreaterThan:
			return a > b
		case OpGreaterOrEqual:
			return a >= b
		case OpLessThan:
			return a < b
		default:
			return a <= b
		}
	case OpRegex:
		rx := snapshotRegexp(snap, rxKey, condVal)
		if rx == nil {
			return false
		}
		return rx.MatchString(asString(fieldVal))
	case OpStartsWith:
		return strings.HasPrefix(asString(fieldVal), asString(condVal))
	case OpEndsWith:
		return strings.HasSuffix(asString(fieldVal), asString(condVal))
	default:
		return false
	}
}

// snapshotRegexp looks up a precompiled pattern, compiling lazily when the
// snapshot has no entry (direct evaluator use outside catalog loading).
func snapshotRegexp(snap *Snapshot, key string, condVal interface{}) *regexp.Regexp {
	if snap != nil {
		if rx := snap.Regexp(key); rx != nil {
			return rx
		}
	}
	pattern, ok := condVal.(string)
	if !ok {
		return nil
	}
	rx, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return rx
}

// looseEqual compares with numeric coercion: 100 equals 100.0 regardless
// of the YAML or JSON source type. Everything else compares as strings of
// the same underlying kind.
func looseEqual(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	if ab, aok := a.(bool); aok {
		bb, bok := b.(bool)
		return bok && ab == bb
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == nil && b == nil
}

// asFloat coerces the numeric types YAML and JSON decoding produce
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// asString renders a resolved value for the string operators
func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
