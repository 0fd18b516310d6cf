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
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

var deliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cybersentinel_siem_deliveries_total",
		Help: "SIEM delivery attempts by connector and status",
	},
	[]string{"connector", "status"},
)

func init() {
	prometheus.MustRegister(deliveriesTotal)
}

// Service is the SIEM connector registry. Sends fan out concurrently to
// the active set, the connectors whose last Connect succeeded; one
// failing connector never affects delivery to the others.
type Service struct {
	mu         sync.RWMutex
	connectors map[string]Connector
	active     map[string]bool
	log        *logger.Logger
}

// NewService creates an empty registry
func NewService(log *logger.Logger) *Service {
	return &Service{
		connectors: make(map[string]Connector),
		active:     make(map[string]bool),
		log:        log,
	}
}

// Register adds a connector under its name. Registration is idempotent:
// registering the same name again replaces the previous connector. A new
// registration starts inactive until ConnectAll succeeds for it.
func (s *Service) Register(c Connector) {
	s.mu.Lock()
	_, replaced := s.connectors[c.Name()]
	s.connectors[c.Name()] = c
	delete(s.active, c.Name())
	s.mu.Unlock()

	s.log.Info("", "", "SIEM connector registered", map[string]interface{}{
		"connector": c.Name(),
		"type":      string(c.Type()),
		"replaced":  replaced,
	})
}

// Unregister disconnects a connector and drops it from the registry
func (s *Service) Unregister(name string) {
	s.mu.Lock()
	c, ok := s.connectors[name]
	delete(s.connectors, name)
	delete(s.active, name)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := s.guarded(name, "Disconnect", func() error {
		return c.Disconnect(context.Background())
	}); err != nil {
		s.log.Warn("", "", "SIEM disconnect failed", map[string]interface{}{
			"connector": name,
			"error":     err.Error(),
		})
	}
}

// Get returns a connector by name
func (s *Service) Get(name string) (Connector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connectors[name]
	return c, ok
}

// Names returns the registered connector names, sorted
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.connectors))
	for name := range s.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snapshot copies the connector set so fan-out never holds the lock
func (s *Service) snapshot() []Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Connector, 0, len(s.connectors))
	for _, c := range s.connectors {
		out = append(out, c)
	}
	return out
}

// activeSnapshot copies the active connector set, the delivery targets
func (s *Service) activeSnapshot() []Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Connector, 0, len(s.active))
	for name := range s.active {
		if c, ok := s.connectors[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// setActive records whether a connector belongs to the active set
func (s *Service) setActive(name string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connectors[name]; !ok {
		return
	}
	if active {
		s.active[name] = true
	} else {
		delete(s.active, name)
	}
}

// ActiveNames returns the active connector names, sorted
func (s *Service) ActiveNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.active))
	for name := range s.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnectAll connects every registered connector concurrently and returns
// the per-connector error (nil on success). The connectors that connected
// successfully become the active set.
func (s *Service) ConnectAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range s.snapshot() {
		wg.Add(1)
		go func(c Connector) {
			defer wg.Done()
			err := s.guarded(c.Name(), "Connect", func() error {
				return c.Connect(ctx)
			})
			s.setActive(c.Name(), err == nil)
			mu.Lock()
			results[c.Name()] = err
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// SendEventToAll formats the event once and delivers it to every active
// connector concurrently. The result map reports per-connector success.
func (s *Service) SendEventToAll(ctx context.Context, ev *types.Event) map[string]bool {
	doc := FormatEvent(ev)

	results := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range s.activeSnapshot() {
		wg.Add(1)
		go func(c Connector) {
			defer wg.Done()
			err := s.guarded(c.Name(), "SendEvent", func() error {
				return c.SendEvent(ctx, doc)
			})
			if err != nil {
				deliveriesTotal.WithLabelValues(c.Name(), "error").Inc()
				s.log.Error(ev.Agent.ID, ev.EventID, "SIEM delivery failed", map[string]interface{}{
					"connector": c.Name(),
					"error":     err.Error(),
				})
			} else {
				deliveriesTotal.WithLabelValues(c.Name(), "ok").Inc()
			}
			mu.Lock()
			results[c.Name()] = err == nil
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// SendBatchToAll delivers a batch of events to every active connector
// concurrently, reporting per-connector batch results.
func (s *Service) SendBatchToAll(ctx context.Context, events []*types.Event) map[string]*BatchResult {
	docs := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		docs = append(docs, FormatEvent(ev))
	}

	results := make(map[string]*BatchResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range s.activeSnapshot() {
		wg.Add(1)
		go func(c Connector) {
			defer wg.Done()

			var batch *BatchResult
			err := s.guarded(c.Name(), "SendBatch", func() error {
				var sendErr error
				batch, sendErr = c.SendBatch(ctx, docs)
				return sendErr
			})
			if err != nil || batch == nil {
				msg := "send failed"
				if err != nil {
					msg = err.Error()
				}
				batch = &BatchResult{Failed: len(docs), Errors: []string{msg}}
			}

			mu.Lock()
			results[c.Name()] = batch
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// HealthCheckAll probes every connector concurrently. A failed probe
// transitions the connector out of the active set; a healthy probe never
// activates a connector that has not connected.
func (s *Service) HealthCheckAll(ctx context.Context) map[string]*HealthStatus {
	results := make(map[string]*HealthStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range s.snapshot() {
		wg.Add(1)
		go func(c Connector) {
			defer wg.Done()

			var status *HealthStatus
			err := s.guarded(c.Name(), "HealthCheck", func() error {
				status = c.HealthCheck(ctx)
				return nil
			})
			if err != nil || status == nil {
				status = &HealthStatus{Healthy: false, Error: "health check panicked"}
			}
			if !status.Healthy {
				s.setActive(c.Name(), false)
				s.log.Warn("", "", "SIEM connector unhealthy, removed from delivery set", map[string]interface{}{
					"connector": c.Name(),
					"error":     status.Error,
				})
			}

			mu.Lock()
			results[c.Name()] = status
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// DisconnectAll disconnects every connector and empties the active set;
// used on shutdown.
func (s *Service) DisconnectAll(ctx context.Context) {
	s.mu.Lock()
	s.active = make(map[string]bool)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range s.snapshot() {
		wg.Add(1)
		go func(c Connector) {
			defer wg.Done()
			err := s.guarded(c.Name(), "Disconnect", func() error {
				return c.Disconnect(ctx)
			})
			if err != nil {
				s.log.Warn("", "", "SIEM disconnect failed", map[string]interface{}{
					"connector": c.Name(),
					"error":     err.Error(),
				})
			}
		}(c)
	}
	wg.Wait()
}

// guarded runs op, converting a connector panic into an error so one
// misbehaving connector cannot take down the fan-out.
func (s *Service) guarded(name, operation string, op func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewConnectorError(name, operation, fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return op()
}
