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

// Package storage persists processed events, action audit records and
// quarantined content.
//
// EventStore keeps events in Postgres as JSONB documents with promoted
// columns for the common filters (agent, severity, blocked, time range).
// FileQuarantine isolates event content into 0600 files, sealed with
// AES-256-GCM when a key is configured.
package storage
