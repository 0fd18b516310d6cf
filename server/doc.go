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

// Package server is the HTTP surface of the DLP backend.
//
// Agents submit events to POST /api/v1/events; the default path queues
// into the pipeline and answers 202, while ?sync=true processes inline
// and returns the verdict (classification, policy matches, actions).
// A full queue answers 503 so agents back off instead of losing events.
//
// Operator endpoints expose the policy catalog (list, reload) and the
// SIEM connector registry (inventory, health). Agent authentication is
// JWT HS256 via AGENT_JWT_SECRET and is disabled when the secret is
// unset, which keeps local development friction-free.
//
// Run wires the whole backend from environment variables and blocks
// until SIGINT/SIGTERM.
package server
