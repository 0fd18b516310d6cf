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
	"regexp"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// Detector finds sensitive data spans in event content. Implementations
// must be safe for concurrent use.
type Detector interface {
	// ID returns the stable pattern identifier for hits this detector emits
	ID() string
	// Detect returns all hits found in content. Spans are byte offsets.
	Detect(content string) []types.ClassificationHit
}

// RegexDetector is a Detector driven by a single compiled regular
// expression with a fixed confidence. Most stock detectors are built on it;
// detectors that need validation beyond the pattern (Luhn, context windows)
// wrap it or implement Detector directly.
type RegexDetector struct {
	PatternID  string
	Type       string
	Label      string
	Pattern    *regexp.Regexp
	Confidence float64
}

// ID returns the pattern identifier
func (d *RegexDetector) ID() string {
	return d.PatternID
}

// Detect returns one hit per non-overlapping pattern match
func (d *RegexDetector) Detect(content string) []types.ClassificationHit {
	idxs := d.Pattern.FindAllStringIndex(content, -1)
	if len(idxs) == 0 {
		return nil
	}

	hits := make([]types.ClassificationHit, 0, len(idxs))
	for _, span := range idxs {
		hits = append(hits, types.ClassificationHit{
			Type:       d.Type,
			Label:      d.Label,
			Confidence: d.Confidence,
			PatternID:  d.PatternID,
			Start:      span[0],
			End:        span[1],
		})
	}
	return hits
}
