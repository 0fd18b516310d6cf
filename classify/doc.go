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
Package classify implements the sensitive-data detection stage of the DLP
pipeline.

# Detectors

A Detector scans event content and reports hits with byte-offset spans and
a confidence score. The stock set covers:

  - Credit card numbers (Luhn-validated, 0.95)
  - US Social Security numbers (0.9 with labeled context, 0.75 without)
  - Email addresses (0.98)
  - Phone numbers (0.85)
  - API keys and tokens (AWS, Stripe, labeled secrets, 0.9)
  - Passwords appearing in content (0.8)

Custom detectors implement the Detector interface and are added with
Classifier.Register during startup.

# Classification

Classifier.Classify runs every detector, drops hits below the configured
confidence floor, merges overlapping same-type spans keeping the higher
confidence, and returns hits ordered by span start.

# Redaction

Redact rewrites matched spans in one of five modes: full, partial,
mask_except_last4, mask_except_first4, or hash. Spans are rewritten from
the end of the content backwards so recorded offsets stay valid.
*/
package classify
