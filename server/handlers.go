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

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Vansh-Raja/cybersentinel-dlp/pipeline"
	"github.com/Vansh-Raja/cybersentinel-dlp/policy"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
	"github.com/Vansh-Raja/cybersentinel-dlp/siem"
)

// maxRequestBody bounds ingest request bodies; event content itself is
// capped separately by the pipeline.
const maxRequestBody = 5 << 20

// Server carries the HTTP layer's dependencies
type Server struct {
	log     *logger.Logger
	pipe    *pipeline.Pipeline
	catalog *policy.Catalog
	siem    *siem.Service
}

// NewServer creates the HTTP layer over an assembled pipeline
func NewServer(log *logger.Logger, pipe *pipeline.Pipeline, catalog *policy.Catalog, siemSvc *siem.Service) *Server {
	return &Server{
		log:     log,
		pipe:    pipe,
		catalog: catalog,
		siem:    siemSvc,
	}
}

// Router builds the route table. When jwtSecret is non-empty every
// /api/v1 route requires a valid bearer token.
func (s *Server) Router(jwtSecret string) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	if jwtSecret != "" {
		api.Use(jwtMiddleware(jwtSecret, s.log))
	}

	api.HandleFunc("/events", s.ingestHandler).Methods("POST")
	api.HandleFunc("/events/batch", s.batchHandler).Methods("POST")

	api.HandleFunc("/policies", s.listPoliciesHandler).Methods("GET")
	api.HandleFunc("/policies/reload", s.reloadPoliciesHandler).Methods("POST")

	api.HandleFunc("/siem/connectors", s.siemConnectorsHandler).Methods("GET")
	api.HandleFunc("/siem/health", s.siemHealthHandler).Methods("GET")

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.catalog.Snapshot()
	health := map[string]interface{}{
		"status":    "healthy",
		"service":   "cybersentinel-dlp",
		"timestamp": time.Now().UTC(),
		"components": map[string]interface{}{
			"pipeline_queue_depth": s.pipe.QueueDepth(),
			"policies_loaded":      len(snap.Policies),
			"policy_load_errors":   len(snap.Errors),
			"siem_connectors":      len(s.siem.Names()),
		},
	}
	writeJSON(w, http.StatusOK, health)
}

// ingestHandler accepts a single event. Async by default; ?sync=true
// processes inline and returns the verdict.
func (s *Server) ingestHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var ev types.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid event payload: "+err.Error())
		return
	}

	if r.URL.Query().Get("sync") == "true" {
		processed, err := s.pipe.Process(r.Context(), &ev)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, verdictResponse(processed))
		return
	}

	if err := s.pipe.Submit(&ev); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "event queue full, retry later")
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "accepted",
		"event_id": ev.EventID,
	})
}

// batchHandler accepts {"events": [...]} and queues each event. Always
// async; the response reports per-batch accept/reject counts.
func (s *Server) batchHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req struct {
		Events []*types.Event `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid batch payload: "+err.Error())
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "batch contains no events")
		return
	}

	accepted, rejected := 0, 0
	for _, ev := range req.Events {
		if err := s.pipe.Submit(ev); err != nil {
			rejected++
		} else {
			accepted++
		}
	}

	status := http.StatusAccepted
	if accepted == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"accepted": accepted,
		"rejected": rejected,
	})
}

func (s *Server) listPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.catalog.Snapshot()

	loadErrors := make([]map[string]string, 0, len(snap.Errors))
	for _, le := range snap.Errors {
		loadErrors = append(loadErrors, map[string]string{
			"file":  le.File,
			"error": le.Err,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies":  snap.Policies,
		"loaded_at": snap.LoadedAt,
		"errors":    loadErrors,
	})
}

func (s *Server) reloadPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, "policy reload failed: "+err.Error())
		return
	}

	snap := s.catalog.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "reloaded",
		"policies":  len(snap.Policies),
		"errors":    len(snap.Errors),
		"loaded_at": snap.LoadedAt,
	})
}

func (s *Server) siemConnectorsHandler(w http.ResponseWriter, r *http.Request) {
	names := s.siem.Names()
	connectors := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		c, ok := s.siem.Get(name)
		if !ok {
			continue
		}
		connectors = append(connectors, map[string]interface{}{
			"name":      c.Name(),
			"type":      string(c.Type()),
			"connected": c.Connected(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"connectors": connectors})
}

func (s *Server) siemHealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.siem.HealthCheckAll(r.Context()))
}

// verdictResponse shapes the sync-ingest response
func verdictResponse(ev *types.Event) map[string]interface{} {
	resp := map[string]interface{}{
		"event_id": ev.EventID,
		"blocked":  ev.Blocked,
		"severity": string(ev.Severity),
	}
	if len(ev.Classification) > 0 {
		resp["classification"] = ev.Classification
	}
	if len(ev.PolicyMatches) > 0 {
		resp["policy_matches"] = ev.PolicyMatches
	}
	if ev.ActionsExecuted != nil {
		resp["actions"] = ev.ActionsExecuted
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
