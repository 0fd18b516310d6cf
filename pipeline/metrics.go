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

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cybersentinel_events_total",
			Help: "Events by outcome (accepted, rejected, processed, failed)",
		},
		[]string{"status"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cybersentinel_stage_duration_seconds",
			Help:    "Per-stage processing latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	classificationHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cybersentinel_classification_hits_total",
			Help: "Sensitive-data detections by classification type",
		},
		[]string{"type"},
	)

	eventsBlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cybersentinel_events_blocked_total",
			Help: "Events blocked by policy actions",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cybersentinel_queue_depth",
			Help: "Events waiting in the ingress queue",
		},
	)
)

func init() {
	prometheus.MustRegister(
		eventsTotal,
		stageDuration,
		classificationHits,
		eventsBlocked,
		queueDepth,
	)
}
