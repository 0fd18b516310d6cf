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
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
)

// LoadError records a policy file that failed to load
type LoadError struct {
	File string `json:"file"`
	Err  string `json:"error"`
}

// Snapshot is an immutable view of the loaded policy catalog. Evaluations
// hold the snapshot they started with, so a concurrent reload never changes
// results mid-flight.
type Snapshot struct {
	Policies []Policy
	LoadedAt time.Time
	Errors   []LoadError

	regexes map[string]*regexp.Regexp
}

// Regexp returns the compiled pattern for a regex condition, keyed
// policyID:ruleID:condIndex. Nil when the key is unknown.
func (s *Snapshot) Regexp(key string) *regexp.Regexp {
	return s.regexes[key]
}

// Catalog loads the YAML policy directory and publishes atomic snapshots
type Catalog struct {
	dir  string
	log  *logger.Logger
	snap atomic.Pointer[Snapshot]
}

// NewCatalog creates a Catalog for the given policy directory. Call Load
// before serving.
func NewCatalog(dir string, log *logger.Logger) *Catalog {
	return &Catalog{dir: dir, log: log}
}

// Dir returns the policy directory the catalog reads from
func (c *Catalog) Dir() string {
	return c.dir
}

// Snapshot returns the current catalog snapshot. Never nil after a
// successful Load.
func (c *Catalog) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Load builds the initial snapshot. Fails only when the directory itself
// is unreadable; individual bad files are skipped and recorded.
func (c *Catalog) Load() error {
	snap, err := c.build()
	if err != nil {
		return err
	}
	c.snap.Store(snap)
	c.log.Info("", "", "Policy catalog loaded", map[string]interface{}{
		"dir":      c.dir,
		"policies": len(snap.Policies),
		"errors":   len(snap.Errors),
	})
	return nil
}

// Reload builds a fresh snapshot and swaps it in. On directory read
// failure the previous snapshot stays active.
func (c *Catalog) Reload() error {
	snap, err := c.build()
	if err != nil {
		c.log.Error("", "", "Policy reload failed, keeping previous snapshot", map[string]interface{}{
			"dir":   c.dir,
			"error": err.Error(),
		})
		return err
	}
	c.snap.Store(snap)
	c.log.Info("", "", "Policy catalog reloaded", map[string]interface{}{
		"policies": len(snap.Policies),
		"errors":   len(snap.Errors),
	})
	return nil
}

// build reads every YAML file in the policy directory into a new snapshot
func (c *Catalog) build() (*Snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory %s: %w", c.dir, err)
	}

	snap := &Snapshot{
		LoadedAt: time.Now().UTC(),
		regexes:  make(map[string]*regexp.Regexp),
	}
	seen := make(map[string]string) // policy ID -> file

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		path := filepath.Join(c.dir, name)
		pol, err := c.loadFile(path, snap, seen)
		if err != nil {
			snap.Errors = append(snap.Errors, LoadError{File: name, Err: err.Error()})
			c.log.Warn("", "", "Skipping invalid policy file", map[string]interface{}{
				"file":  name,
				"error": err.Error(),
			})
			continue
		}
		seen[pol.ID] = name
		snap.Policies = append(snap.Policies, *pol)
	}

	// Lower priority evaluates first, ties broken by ID for a stable order
	sort.Slice(snap.Policies, func(i, j int) bool {
		if snap.Policies[i].Priority != snap.Policies[j].Priority {
			return snap.Policies[i].Priority < snap.Policies[j].Priority
		}
		return snap.Policies[i].ID < snap.Policies[j].ID
	})

	return snap, nil
}

// loadFile parses and validates one policy file, compiling its regex
// conditions into the snapshot cache.
func (c *Catalog) loadFile(path string, snap *Snapshot, seen map[string]string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var doc policyFile
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	pol := doc.policy()

	if err := validate(pol); err != nil {
		return nil, err
	}
	if prev, ok := seen[pol.ID]; ok {
		return nil, fmt.Errorf("duplicate policy id %q (already defined in %s)", pol.ID, prev)
	}

	// Compile regex conditions up front so evaluation never pays
	// compilation cost and bad patterns fail the file at load time.
	for _, rule := range pol.Rules {
		for i, cond := range rule.Conditions {
			if cond.Operator != OpRegex {
				continue
			}
			pattern, ok := cond.Value.(string)
			if !ok {
				return nil, fmt.Errorf("rule %s condition %d: regex value must be a string", rule.ID, i)
			}
			rx, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s condition %d: invalid regex: %w", rule.ID, i, err)
			}
			snap.regexes[regexKey(pol.ID, rule.ID, i)] = rx
		}
	}

	return pol, nil
}

// envVarRegex matches ${VAR_NAME} references. Bare $VAR is not expanded
// so regex condition values keep their anchors.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR_NAME} and ${VAR_NAME:-default} references
// in policy YAML. Undefined variables without a default become empty.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// validate checks structural requirements on a parsed policy
func validate(p *Policy) error {
	if p.ID == "" {
		return fmt.Errorf("policy id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("policy %s: name is required", p.ID)
	}
	if p.Severity != "" && !p.Severity.IsValid() {
		return fmt.Errorf("policy %s: invalid severity %q", p.ID, p.Severity)
	}

	ruleIDs := make(map[string]bool)
	for _, r := range p.Rules {
		if r.ID == "" {
			return fmt.Errorf("policy %s: rule id is required", p.ID)
		}
		if ruleIDs[r.ID] {
			return fmt.Errorf("policy %s: duplicate rule id %q", p.ID, r.ID)
		}
		ruleIDs[r.ID] = true

		// An empty condition list is valid and matches every event
		for i, cond := range r.Conditions {
			if cond.Field == "" {
				return fmt.Errorf("policy %s rule %s condition %d: field is required", p.ID, r.ID, i)
			}
			if !knownOperators[cond.Operator] {
				return fmt.Errorf("policy %s rule %s condition %d: unknown operator %q", p.ID, r.ID, i, cond.Operator)
			}
			switch cond.Operator {
			case OpIn, OpNotIn:
				if _, ok := cond.Value.([]interface{}); !ok {
					return fmt.Errorf("policy %s rule %s condition %d: %s value must be a list", p.ID, r.ID, i, cond.Operator)
				}
			case OpExists, OpNotExists:
				// Value unused
			default:
				if cond.Value == nil {
					return fmt.Errorf("policy %s rule %s condition %d: value is required for %s", p.ID, r.ID, i, cond.Operator)
				}
			}
		}
		for j, a := range r.Actions {
			if a.Type == "" {
				return fmt.Errorf("policy %s rule %s action %d: type is required", p.ID, r.ID, j)
			}
		}
	}
	return nil
}
