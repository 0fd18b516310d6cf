// Copyright 2025 CyberSentinel
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

/*
Package logger provides structured JSON logging for CyberSentinel DLP
components.

# Overview

The logger package provides structured logging that outputs JSON to stdout,
making logs easily consumable by the ELK stack, Splunk, or other log
aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (server, pipeline, siem, etc.)
  - Instance ID and container name (for distributed tracing)
  - Agent ID (the endpoint agent that reported the event)
  - Event ID (for incident correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("pipeline")

Log messages with agent and event context:

	log.Info("agent-123", "evt-456", "Event classified", map[string]interface{}{
	    "hits":     3,
	    "blocked":  true,
	})

Log errors with status codes:

	log.ErrorWithCode("agent-123", "evt-456", "SIEM delivery failed", 502, err, map[string]interface{}{
	    "connector": "elk-primary",
	})

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("agent-123", "evt-456", "Pipeline stage completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"pipeline","instance_id":"i-abc123","container":"dlp-xyz",
	 "agent_id":"agent-123","event_id":"evt-456",
	 "message":"Event classified","fields":{"hits":3}}

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
