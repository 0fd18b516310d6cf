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

package siem

import (
	"context"
	"fmt"
	"time"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// Type identifies a SIEM platform
type Type string

const (
	TypeELK    Type = "elk"
	TypeSplunk Type = "splunk"
)

// BatchResult reports the outcome of a batch send
type BatchResult struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// HealthStatus reports connector health
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error,omitempty"`
}

// AlertResult reports a created alerting rule on the SIEM side
type AlertResult struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Created bool              `json:"created"`
	Details map[string]string `json:"details,omitempty"`
}

// Connector is a SIEM platform integration. All implementations must be
// safe for concurrent use; the registry fans out to every connector in
// parallel.
type Connector interface {
	// Name returns the registered connector name
	Name() string
	// Type returns the SIEM platform type
	Type() Type

	// Connect establishes and verifies connectivity
	Connect(ctx context.Context) error
	// Disconnect releases resources
	Disconnect(ctx context.Context) error
	// Connected reports whether Connect has succeeded
	Connected() bool

	// SendEvent delivers one formatted incident document
	SendEvent(ctx context.Context, doc map[string]interface{}) error
	// SendBatch delivers many documents, reporting per-document failures
	SendBatch(ctx context.Context, docs []map[string]interface{}) (*BatchResult, error)

	// QueryEvents searches previously delivered incidents
	QueryEvents(ctx context.Context, query string, from, to time.Time, limit int) ([]map[string]interface{}, error)
	// CreateAlert installs an alerting rule on the SIEM platform
	CreateAlert(ctx context.Context, name, description string, severity types.Severity, query string) (*AlertResult, error)

	// HealthCheck probes the platform and reports status
	HealthCheck(ctx context.Context) *HealthStatus
}

// ConnectorError provides consistent error context for SIEM operations
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

// Error implements the error interface
func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s.%s: %s (cause: %v)", e.ConnectorName, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s.%s: %s", e.ConnectorName, e.Operation, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As
func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}
