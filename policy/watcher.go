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
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
)

// DefaultDebounce is the quiet period before a filesystem change triggers
// a catalog reload. Editors and config management tools produce bursts of
// events for a single save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the catalog when policy files change on disk
type Watcher struct {
	fsw      *fsnotify.Watcher
	catalog  *Catalog
	log      *logger.Logger
	debounce time.Duration
	done     chan struct{}
}

// WatchCatalog starts watching the catalog's directory. A debounce of 0
// selects DefaultDebounce. Close the returned Watcher on shutdown.
func WatchCatalog(catalog *Catalog, debounce time.Duration, log *logger.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(catalog.Dir()); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		catalog:  catalog,
		log:      log,
		debounce: debounce,
		done:     make(chan struct{}),
	}
	go w.loop()

	log.Info("", "", "Watching policy directory for changes", map[string]interface{}{
		"dir": catalog.Dir(),
	})
	return w, nil
}

// Close stops the watcher
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isPolicyFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.catalog.Reload(); err != nil {
				w.log.Error("", "", "Policy reload after file change failed", map[string]interface{}{
					"error": err.Error(),
				})
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("", "", "Policy watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

func isPolicyFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}
