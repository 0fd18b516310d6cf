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

package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// quarantineRecord is the on-disk envelope for an isolated event
type quarantineRecord struct {
	EventID       string       `json:"event_id"`
	Reason        string       `json:"reason"`
	QuarantinedAt time.Time    `json:"quarantined_at"`
	Event         *types.Event `json:"event"`
}

// FileQuarantine isolates event content into per-event files under a
// quarantine directory. Files are written 0600; when a 32-byte key is
// configured the record is sealed with AES-256-GCM, nonce prefixed.
type FileQuarantine struct {
	dir string
	key []byte
	log *logger.Logger
}

// NewFileQuarantine creates the quarantine directory if needed. key must
// be nil (plaintext records) or 32 bytes.
func NewFileQuarantine(dir string, key []byte, log *logger.Logger) (*FileQuarantine, error) {
	if key != nil && len(key) != 32 {
		return nil, fmt.Errorf("quarantine: key must be 32 bytes, got %d", len(key))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("quarantine: create dir: %w", err)
	}
	return &FileQuarantine{dir: dir, key: key, log: log}, nil
}

// Quarantine writes the event to an isolated file and returns its path
func (q *FileQuarantine) Quarantine(_ context.Context, ev *types.Event, reason string) (string, error) {
	record := quarantineRecord{
		EventID:       ev.EventID,
		Reason:        reason,
		QuarantinedAt: time.Now().UTC(),
		Event:         ev,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("quarantine: marshal: %w", err)
	}

	if q.key != nil {
		payload, err = q.seal(payload)
		if err != nil {
			return "", err
		}
	}

	name := fmt.Sprintf("%s-%d.quar", sanitizeFilename(ev.EventID), time.Now().UnixNano())
	path := filepath.Join(q.dir, name)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", fmt.Errorf("quarantine: write: %w", err)
	}

	q.log.Info(ev.Agent.ID, ev.EventID, "event quarantined", map[string]interface{}{
		"path":      path,
		"reason":    reason,
		"encrypted": q.key != nil,
	})
	return path, nil
}

// Restore reads a quarantined record back, decrypting when sealed
func (q *FileQuarantine) Restore(path string) (*types.Event, string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("quarantine: read: %w", err)
	}

	if q.key != nil {
		payload, err = q.open(payload)
		if err != nil {
			return nil, "", err
		}
	}

	var record quarantineRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, "", fmt.Errorf("quarantine: unmarshal: %w", err)
	}
	return record.Event, record.Reason, nil
}

func (q *FileQuarantine) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(q.key)
	if err != nil {
		return nil, fmt.Errorf("quarantine: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("quarantine: gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("quarantine: nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (q *FileQuarantine) open(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(q.key)
	if err != nil {
		return nil, fmt.Errorf("quarantine: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("quarantine: gcm: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("quarantine: sealed record too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("quarantine: decrypt: %w", err)
	}
	return plaintext, nil
}

// sanitizeFilename keeps event IDs from escaping the quarantine dir
func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "event"
	}
	return b.String()
}
