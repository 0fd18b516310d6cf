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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vansh-Raja/cybersentinel-dlp/actions"
	"github.com/Vansh-Raja/cybersentinel-dlp/classify"
	"github.com/Vansh-Raja/cybersentinel-dlp/policy"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
	"github.com/Vansh-Raja/cybersentinel-dlp/siem"
)

// ErrQueueFull is returned by Submit when the ingress queue is at
// capacity; callers translate it into backpressure toward the agent.
var ErrQueueFull = errors.New("pipeline: ingress queue full")

const (
	// DefaultQueueSize bounds the ingress queue
	DefaultQueueSize = 1024
	// DefaultMaxContentSize caps event content; larger payloads fail
	// validation and are dropped
	DefaultMaxContentSize = 1 << 20
	// DefaultMaxFieldSize caps free-text fields during normalization
	DefaultMaxFieldSize = 1024

	defaultValidateBudget  = 50 * time.Millisecond
	defaultNormalizeBudget = 50 * time.Millisecond
	defaultEnrichBudget    = 50 * time.Millisecond
	defaultClassifyBudget  = 200 * time.Millisecond
	defaultEvaluateBudget  = 100 * time.Millisecond
	defaultActTimeout      = 5 * time.Second
)

// Config tunes the pipeline. The zero value selects the defaults.
type Config struct {
	// Workers is the number of concurrent event processors; 0 selects
	// runtime.NumCPU()
	Workers int
	// QueueSize bounds the ingress queue; 0 selects DefaultQueueSize
	QueueSize int
	// MaxContentSize caps event content in bytes; oversized events are
	// rejected at validation. 0 selects DefaultMaxContentSize.
	MaxContentSize int
	// MaxFieldSize caps free-text fields in bytes; oversized values are
	// truncated with the event marked. 0 selects DefaultMaxFieldSize.
	MaxFieldSize int

	// Per-stage latency budgets. Exceeding a budget logs a warning; it
	// never aborts the stage. ActTimeout is enforced as a hard context
	// deadline since actions perform external I/O.
	ValidateBudget  time.Duration
	NormalizeBudget time.Duration
	EnrichBudget    time.Duration
	ClassifyBudget  time.Duration
	EvaluateBudget  time.Duration
	ActTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxContentSize <= 0 {
		c.MaxContentSize = DefaultMaxContentSize
	}
	if c.MaxFieldSize <= 0 {
		c.MaxFieldSize = DefaultMaxFieldSize
	}
	if c.ValidateBudget <= 0 {
		c.ValidateBudget = defaultValidateBudget
	}
	if c.NormalizeBudget <= 0 {
		c.NormalizeBudget = defaultNormalizeBudget
	}
	if c.EnrichBudget <= 0 {
		c.EnrichBudget = defaultEnrichBudget
	}
	if c.ClassifyBudget <= 0 {
		c.ClassifyBudget = defaultClassifyBudget
	}
	if c.EvaluateBudget <= 0 {
		c.EvaluateBudget = defaultEvaluateBudget
	}
	if c.ActTimeout <= 0 {
		c.ActTimeout = defaultActTimeout
	}
	return c
}

// GeoProvider resolves an IP address to an ISO country code
type GeoProvider interface {
	Country(ip string) (string, bool)
}

// EventSink persists processed events
type EventSink interface {
	AppendEvent(ctx context.Context, ev *types.Event) error
}

// Pipeline runs events through the six processing stages: validate,
// normalize, enrich, classify, evaluate, act. Submit queues an event for
// asynchronous processing by the worker pool; Process runs one event
// synchronously for callers that need the verdict inline.
type Pipeline struct {
	cfg        Config
	log        *logger.Logger
	classifier *classify.Classifier
	catalog    *policy.Catalog
	executor   *actions.Executor

	siem  *siem.Service
	store EventSink
	geo   GeoProvider

	queue chan *types.Event
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
}

// Option configures optional pipeline dependencies
type Option func(*Pipeline)

// WithSIEM enables SIEM delivery for events with policy matches
func WithSIEM(svc *siem.Service) Option {
	return func(p *Pipeline) { p.siem = svc }
}

// WithStore enables event persistence after processing
func WithStore(sink EventSink) Option {
	return func(p *Pipeline) { p.store = sink }
}

// WithGeo enables destination-country enrichment for network events
func WithGeo(geo GeoProvider) Option {
	return func(p *Pipeline) { p.geo = geo }
}

// New creates a pipeline. Call Start to launch the worker pool.
func New(cfg Config, log *logger.Logger, catalog *policy.Catalog, classifier *classify.Classifier, executor *actions.Executor, opts ...Option) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:        cfg,
		log:        log,
		classifier: classifier,
		catalog:    catalog,
		executor:   executor,
		queue:      make(chan *types.Event, cfg.QueueSize),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker pool. Workers drain the queue until Stop.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
		p.log.Info("", "", "pipeline started", map[string]interface{}{
			"workers":    p.cfg.Workers,
			"queue_size": p.cfg.QueueSize,
		})
	})
}

// Stop closes the queue and waits for in-flight events to finish
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
		close(p.queue)
		p.wg.Wait()
		p.log.Info("", "", "pipeline stopped", nil)
	})
}

// Submit queues an event for asynchronous processing. Returns
// ErrQueueFull when the queue is at capacity; the event is not dropped
// silently.
func (p *Pipeline) Submit(ev *types.Event) error {
	select {
	case <-p.stopped:
		return errors.New("pipeline: stopped")
	default:
	}

	select {
	case p.queue <- ev:
		queueDepth.Inc()
		eventsTotal.WithLabelValues("accepted").Inc()
		return nil
	default:
		eventsTotal.WithLabelValues("rejected").Inc()
		return ErrQueueFull
	}
}

// QueueDepth reports how many events are waiting in the ingress queue
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for ev := range p.queue {
		queueDepth.Dec()
		if _, err := p.Process(ctx, ev); err != nil {
			p.log.Error(ev.Agent.ID, ev.EventID, "event processing failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// Process runs one event through all six stages and returns the
// processed event. The event is mutated in place; the returned pointer
// is the same event for caller convenience.
func (p *Pipeline) Process(ctx context.Context, ev *types.Event) (*types.Event, error) {
	if err := p.timed("validate", p.cfg.ValidateBudget, ev, func() error {
		return p.validate(ev)
	}); err != nil {
		eventsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	p.timed("normalize", p.cfg.NormalizeBudget, ev, func() error {
		p.normalize(ev)
		return nil
	})
	p.timed("enrich", p.cfg.EnrichBudget, ev, func() error {
		p.enrich(ev)
		return nil
	})
	p.timed("classify", p.cfg.ClassifyBudget, ev, func() error {
		p.classifyStage(ev)
		return nil
	})
	p.timed("evaluate", p.cfg.EvaluateBudget, ev, func() error {
		p.evaluate(ev)
		return nil
	})
	p.timed("act", p.cfg.ActTimeout, ev, func() error {
		p.act(ctx, ev)
		return nil
	})

	eventsTotal.WithLabelValues("processed").Inc()
	if ev.Blocked {
		eventsBlocked.Inc()
	}

	if p.store != nil {
		// Persistence failure is logged, never bubbled: the verdict has
		// already been enforced and delivered.
		if err := p.store.AppendEvent(ctx, ev); err != nil {
			p.log.Error(ev.Agent.ID, ev.EventID, "event persistence failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return ev, nil
}

// timed runs a stage, records its latency and warns when it overruns
// its budget.
func (p *Pipeline) timed(stage string, budget time.Duration, ev *types.Event, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if elapsed > budget {
		p.log.Warn(ev.Agent.ID, ev.EventID, "stage budget exceeded", map[string]interface{}{
			"stage":   stage,
			"elapsed": elapsed.String(),
			"budget":  budget.String(),
		})
	}
	return err
}

// validate fills defaulted fields and rejects malformed events
func (p *Pipeline) validate(ev *types.Event) error {
	if ev.Agent.ID == "" {
		return fmt.Errorf("validate: missing agent id")
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if !ev.Type.IsValid() {
		return fmt.Errorf("validate: unknown event type %q", ev.Type)
	}
	if ev.Severity == "" {
		ev.Severity = types.SeverityInfo
	}
	if !ev.Severity.IsValid() {
		return fmt.Errorf("validate: unknown severity %q", ev.Severity)
	}

	if len(ev.Content) > p.cfg.MaxContentSize {
		return fmt.Errorf("validate: content size %d exceeds limit %d", len(ev.Content), p.cfg.MaxContentSize)
	}
	return nil
}

// normalize canonicalizes field formats so policy conditions compare
// predictably.
func (p *Pipeline) normalize(ev *types.Event) {
	ev.Timestamp = ev.Timestamp.UTC()

	ev.Agent.Hostname = strings.ToLower(strings.TrimSpace(ev.Agent.Hostname))
	ev.User.Username = strings.ToLower(strings.TrimSpace(ev.User.Username))
	ev.User.Email = strings.ToLower(strings.TrimSpace(ev.User.Email))
	ev.User.Domain = strings.ToLower(strings.TrimSpace(ev.User.Domain))
	ev.Network.DestinationHost = strings.ToLower(strings.TrimSpace(ev.Network.DestinationHost))
	ev.File.Type = strings.ToLower(strings.TrimSpace(ev.File.Type))

	// Free-text fields are capped; oversized values are cut with a marker
	ev.File.Name = p.truncateField(ev, ev.File.Name)
	ev.File.Path = p.truncateField(ev, ev.File.Path)
	ev.Network.DestinationHost = p.truncateField(ev, ev.Network.DestinationHost)
}

// truncateField caps one text field at MaxFieldSize, marking the event
// truncated when it cuts anything.
func (p *Pipeline) truncateField(ev *types.Event, v string) string {
	if len(v) <= p.cfg.MaxFieldSize {
		return v
	}
	ev.Truncated = true
	return v[:p.cfg.MaxFieldSize]
}

// enrich derives the temporal and geographic context policies key on
func (p *Pipeline) enrich(ev *types.Event) {
	ts := ev.Timestamp
	ev.DayOfWeek = strings.ToLower(ts.Weekday().String())
	ev.HourOfDay = ts.Hour()

	weekend := ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday
	ev.OffHours = weekend || ev.HourOfDay < 8 || ev.HourOfDay >= 18

	if p.geo != nil && ev.Network.DestinationIP != "" && ev.Network.DestinationCountry == "" {
		if country, ok := p.geo.Country(ev.Network.DestinationIP); ok {
			ev.Network.DestinationCountry = country
		}
	}
}

// classifyStage scans event content for sensitive data
func (p *Pipeline) classifyStage(ev *types.Event) {
	if ev.Content == "" {
		return
	}
	ev.Classification = p.classifier.Classify(ev.Content)
	for _, hit := range ev.Classification {
		classificationHits.WithLabelValues(hit.Type).Inc()
	}
}

// evaluate matches the event against the current policy snapshot
func (p *Pipeline) evaluate(ev *types.Event) {
	ev.PolicyMatches = policy.Evaluate(p.catalog.Snapshot(), ev)
}

// act executes matched policy actions and delivers the incident to SIEM
// platforms. Action execution gets its own deadline since handlers call
// external systems.
func (p *Pipeline) act(ctx context.Context, ev *types.Event) {
	actCtx, cancel := context.WithTimeout(ctx, p.cfg.ActTimeout)
	defer cancel()

	p.executor.Execute(actCtx, ev, ev.PolicyMatches)

	if p.siem != nil && len(ev.PolicyMatches) > 0 {
		p.siem.SendEventToAll(actCtx, ev)
	}
}
