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
	"sort"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// DefaultMinConfidence is the confidence floor applied when none is configured
const DefaultMinConfidence = 0.5

// Classifier runs a detector set over event content and produces a merged,
// ordered list of classification hits.
type Classifier struct {
	detectors     []Detector
	minConfidence float64
}

// NewClassifier creates a Classifier with the stock detector set. A
// minConfidence of 0 selects DefaultMinConfidence.
func NewClassifier(minConfidence float64) *Classifier {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Classifier{
		detectors:     StockDetectors(),
		minConfidence: minConfidence,
	}
}

// Register adds a detector to the set. Not safe to call concurrently with
// Classify; register detectors during startup.
func (c *Classifier) Register(d Detector) {
	c.detectors = append(c.detectors, d)
}

// Classify runs all detectors over content, drops hits below the confidence
// floor, merges overlapping same-type spans (keeping the higher confidence
// when spans overlap by more than half), and returns hits ordered by span
// start.
func (c *Classifier) Classify(content string) []types.ClassificationHit {
	if content == "" {
		return nil
	}

	var all []types.ClassificationHit
	for _, d := range c.detectors {
		for _, hit := range d.Detect(content) {
			if hit.Confidence >= c.minConfidence {
				all = append(all, hit)
			}
		}
	}

	merged := mergeOverlaps(all)

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Start != merged[j].Start {
			return merged[i].Start < merged[j].Start
		}
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}

// mergeOverlaps collapses same-type hits whose spans overlap by more than
// 50% of the shorter span, keeping the higher-confidence hit.
func mergeOverlaps(hits []types.ClassificationHit) []types.ClassificationHit {
	if len(hits) <= 1 {
		return hits
	}

	// Highest confidence first so a kept hit always wins against later
	// overlapping ones.
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Confidence > hits[j].Confidence
	})

	var kept []types.ClassificationHit
	for _, h := range hits {
		dup := false
		for _, k := range kept {
			if k.Type == h.Type && overlapsMajority(k, h) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, h)
		}
	}
	return kept
}

// overlapsMajority reports whether two spans overlap by more than half of
// the shorter span.
func overlapsMajority(a, b types.ClassificationHit) bool {
	lo := a.Start
	if b.Start > lo {
		lo = b.Start
	}
	hi := a.End
	if b.End < hi {
		hi = b.End
	}
	if hi <= lo {
		return false
	}
	overlap := hi - lo

	shorter := a.End - a.Start
	if l := b.End - b.Start; l < shorter {
		shorter = l
	}
	if shorter <= 0 {
		return false
	}
	return float64(overlap) > float64(shorter)*0.5
}
