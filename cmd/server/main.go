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

// Package main is the entry point for the CyberSentinel DLP backend.
//
// The backend ingests events from endpoint agents, classifies their
// content for sensitive data, evaluates policies, executes response
// actions and forwards incidents to SIEM platforms.
//
// Usage:
//
//	./server
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	POLICY_DIR - policy YAML directory (default: ./policies)
//	AGENT_JWT_SECRET - agent token secret (auth disabled when unset)
//	DATABASE_URL - PostgreSQL connection string (optional)
//	REDIS_URL - Redis URL for action dedup (optional)
//	ELK_URL, SPLUNK_HEC_URL - SIEM connectors (optional)
package main

import (
	"github.com/Vansh-Raja/cybersentinel-dlp/server"
)

func main() {
	server.Run()
}
