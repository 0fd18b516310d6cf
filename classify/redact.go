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

package classify

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// RedactionMode selects how matched spans are rewritten
type RedactionMode string

const (
	// RedactFull replaces the span with a bare [REDACTED] marker
	RedactFull RedactionMode = "full"
	// RedactPartial masks all but the last four characters
	RedactPartial RedactionMode = "partial"
	// MaskExceptLast4 is an alias spelling of partial masking
	MaskExceptLast4 RedactionMode = "mask_except_last4"
	// MaskExceptFirst4 masks all but the first four characters
	MaskExceptFirst4 RedactionMode = "mask_except_first4"
	// RedactHash replaces the span with a truncated SHA-256 digest marker
	RedactHash RedactionMode = "hash"
)

// ParseRedactionMode maps a policy parameter string to a RedactionMode,
// falling back to full redaction for unknown values.
func ParseRedactionMode(s string) RedactionMode {
	switch RedactionMode(strings.ToLower(strings.TrimSpace(s))) {
	case RedactPartial:
		return RedactPartial
	case MaskExceptLast4:
		return MaskExceptLast4
	case MaskExceptFirst4:
		return MaskExceptFirst4
	case RedactHash:
		return RedactHash
	default:
		return RedactFull
	}
}

// Redact rewrites the matched spans in content according to mode. Spans are
// applied in descending start order so earlier offsets stay valid while
// later ones are rewritten. Overlapping spans are rewritten once; the span
// processed first (the later one in content order) wins.
func Redact(content string, hits []types.ClassificationHit, mode RedactionMode) string {
	if len(hits) == 0 || content == "" {
		return content
	}

	spans := make([]types.ClassificationHit, len(hits))
	copy(spans, hits)
	sort.Slice(spans, func(i, j int) bool {
		return spans[i].Start > spans[j].Start
	})

	out := content
	lastStart := len(content) + 1
	for _, h := range spans {
		if h.Start < 0 || h.End > len(content) || h.Start >= h.End {
			continue
		}
		// Skip spans that run into an already-rewritten region
		if h.End > lastStart {
			continue
		}
		out = out[:h.Start] + rewrite(content[h.Start:h.End], mode) + out[h.End:]
		lastStart = h.Start
	}
	return out
}

// rewrite produces the replacement text for a single matched span
func rewrite(match string, mode RedactionMode) string {
	switch mode {
	case RedactPartial, MaskExceptLast4:
		if len(match) <= 4 {
			return strings.Repeat("*", len(match))
		}
		return strings.Repeat("*", len(match)-4) + match[len(match)-4:]
	case MaskExceptFirst4:
		if len(match) <= 4 {
			return strings.Repeat("*", len(match))
		}
		return match[:4] + strings.Repeat("*", len(match)-4)
	case RedactHash:
		sum := sha256.Sum256([]byte(match))
		return fmt.Sprintf("[REDACTED:%x]", sum[:6])
	default:
		return "[REDACTED]"
	}
}
