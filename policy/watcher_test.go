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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
)

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "p.yaml", validPolicy)

	cat := NewCatalog(dir, logger.New("test"))
	require.NoError(t, cat.Load())
	require.Len(t, cat.Snapshot().Policies, 1)

	w, err := WatchCatalog(cat, 50*time.Millisecond, logger.New("test"))
	require.NoError(t, err)
	defer w.Close()

	writePolicy(t, dir, "second.yaml", `
policy:
  id: test-002
  name: Second Policy
  enabled: true
  priority: 1
rules:
  - id: r1
    conditions:
      - {field: event.type, operator: equals, value: usb}
    actions: [{type: track}]
`)

	assert.Eventually(t, func() bool {
		return len(cat.Snapshot().Policies) == 2
	}, 3*time.Second, 25*time.Millisecond, "watcher should reload after a new policy file appears")
}

func TestWatcher_IgnoresNonPolicyFiles(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "p.yaml", validPolicy)

	cat := NewCatalog(dir, logger.New("test"))
	require.NoError(t, cat.Load())
	before := cat.Snapshot()

	w, err := WatchCatalog(cat, 50*time.Millisecond, logger.New("test"))
	require.NoError(t, err)
	defer w.Close()

	writePolicy(t, dir, "README.md", "documentation, not a policy")

	time.Sleep(300 * time.Millisecond)
	assert.Same(t, before, cat.Snapshot(), "non-policy files must not trigger a reload")
}

func TestIsPolicyFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"policies/cards.yaml", true},
		{"policies/cards.yml", true},
		{"policies/CARDS.YAML", true},
		{"policies/cards.json", false},
		{"policies/.yaml.swp", false},
		{"policies/notes.txt", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isPolicyFile(tt.path), tt.path)
	}
}
