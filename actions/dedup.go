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

package actions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultDedupTTL bounds how long an executed action suppresses replays
const DefaultDedupTTL = 24 * time.Hour

// Deduper tracks executed side-effecting actions so replayed events do not
// repeat their external effects. Seen marks the key and reports whether it
// was already present.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// DedupKey derives the idempotence key for one action execution
func DedupKey(eventID, ruleID, actionType string) string {
	sum := sha256.Sum256([]byte(eventID + "|" + ruleID + "|" + actionType))
	return "dlp:action:" + hex.EncodeToString(sum[:])
}

// RedisDeduper stores dedup keys in Redis so suppression survives restarts
// and is shared across server instances.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a RedisDeduper. A ttl of 0 selects
// DefaultDedupTTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Seen sets the key if absent and reports whether it already existed
func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	set, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !set, nil
}

// MemoryDeduper is the in-process fallback used when Redis is not
// configured. Expired entries are dropped lazily on access.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewMemoryDeduper creates a MemoryDeduper. A ttl of 0 selects
// DefaultDedupTTL.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Seen marks the key and reports whether it was already present
func (d *MemoryDeduper) Seen(_ context.Context, key string) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if expiry, ok := d.seen[key]; ok && now.Before(expiry) {
		return true, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return false, nil
}
