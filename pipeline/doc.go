// Copyright 2025 CyberSentinel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pipeline runs DLP events through the processing stages:
// validate, normalize, enrich, classify, evaluate, act.
//
// Events arrive over Submit into a bounded ingress queue drained by a
// worker pool; a full queue rejects with ErrQueueFull so agents see
// backpressure instead of silent drops. Process runs a single event
// synchronously for ingest requests that want the verdict inline.
//
// Every stage is measured and compared against its latency budget.
// Only the act stage carries a hard deadline, since policy actions call
// external systems (SIEM, webhooks, notification channels); the earlier
// stages are pure CPU work.
package pipeline
