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
	"strings"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// Classification type names emitted by the stock detectors
const (
	TypeCreditCard = "credit_card"
	TypeSSN        = "ssn"
	TypeEmail      = "email"
	TypePhone      = "phone"
	TypeAPIKey     = "api_key"
	TypePassword   = "password"
)

var (
	// Candidate runs of 13-19 digits, allowing single space or dash separators
	creditCardCandidate = regexp.MustCompile(`\b\d(?:[ -]?\d){11,18}\b`)

	ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	phonePattern = regexp.MustCompile(`(?:\+\d{1,3}[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)

	// AWS access key IDs, Stripe secret keys, generic labeled secrets
	apiKeyPattern = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b|\bsk_(?:live|test)_[A-Za-z0-9]{16,}\b|\b(?i:api[_-]?key|secret[_-]?key|access[_-]?token)["']?\s*[:=]\s*["']?[A-Za-z0-9\-_]{20,}`)

	passwordPattern = regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)\b\s*[:=]\s*\S+`)

	ssnContextPattern = regexp.MustCompile(`(?i)ssn|social\s+security|tax\s*id`)
)

// creditCardDetector finds card numbers: candidate digit runs of 13-19
// digits that pass the Luhn checksum.
type creditCardDetector struct{}

func (creditCardDetector) ID() string { return "pii-credit-card" }

func (creditCardDetector) Detect(content string) []types.ClassificationHit {
	var hits []types.ClassificationHit
	for _, span := range creditCardCandidate.FindAllStringIndex(content, -1) {
		digits := stripSeparators(content[span[0]:span[1]])
		if len(digits) < 13 || len(digits) > 19 {
			continue
		}
		if !luhnValid(digits) {
			continue
		}
		hits = append(hits, types.ClassificationHit{
			Type:       TypeCreditCard,
			Label:      "Credit Card Number",
			Confidence: 0.95,
			PatternID:  "pii-credit-card",
			Start:      span[0],
			End:        span[1],
		})
	}
	return hits
}

// stripSeparators removes spaces and dashes from a card candidate
func stripSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// luhnValid reports whether digits passes the Luhn checksum
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ssnDetector finds US Social Security numbers in AAA-GG-SSSS form.
// Confidence is 0.9 when labeled context (ssn, social security, tax id)
// appears within 32 characters of the match, 0.75 otherwise.
type ssnDetector struct{}

func (ssnDetector) ID() string { return "pii-ssn" }

func (ssnDetector) Detect(content string) []types.ClassificationHit {
	var hits []types.ClassificationHit
	for _, span := range ssnPattern.FindAllStringIndex(content, -1) {
		m := content[span[0]:span[1]]
		area := m[0:3]
		group := m[4:6]
		serial := m[7:11]
		// Never-issued ranges
		if area == "000" || area == "666" || area[0] == '9' {
			continue
		}
		if group == "00" || serial == "0000" {
			continue
		}

		confidence := 0.75
		lo := span[0] - 32
		if lo < 0 {
			lo = 0
		}
		hi := span[1] + 32
		if hi > len(content) {
			hi = len(content)
		}
		if ssnContextPattern.MatchString(content[lo:hi]) {
			confidence = 0.9
		}

		hits = append(hits, types.ClassificationHit{
			Type:       TypeSSN,
			Label:      "Social Security Number",
			Confidence: confidence,
			PatternID:  "pii-ssn",
			Start:      span[0],
			End:        span[1],
		})
	}
	return hits
}

// StockDetectors returns the built-in detector set
func StockDetectors() []Detector {
	return []Detector{
		creditCardDetector{},
		ssnDetector{},
		&RegexDetector{
			PatternID:  "pii-email",
			Type:       TypeEmail,
			Label:      "Email Address",
			Pattern:    emailPattern,
			Confidence: 0.98,
		},
		&RegexDetector{
			PatternID:  "pii-phone",
			Type:       TypePhone,
			Label:      "Phone Number",
			Pattern:    phonePattern,
			Confidence: 0.85,
		},
		&RegexDetector{
			PatternID:  "cred-api-key",
			Type:       TypeAPIKey,
			Label:      "API Key",
			Pattern:    apiKeyPattern,
			Confidence: 0.9,
		},
		&RegexDetector{
			PatternID:  "cred-password",
			Type:       TypePassword,
			Label:      "Password In Content",
			Pattern:    passwordPattern,
			Confidence: 0.8,
		},
	}
}
