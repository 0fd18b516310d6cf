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

// Package siem delivers DLP incidents to external SIEM platforms.
//
// Every incident is rendered once into a dlp_incident document
// (FormatEvent) and fanned out to all registered connectors. The
// Connector interface abstracts the platform; ELKConnector indexes into
// daily Elasticsearch indices over the bulk API, SplunkConnector sends
// over the HTTP Event Collector. The Service registry runs every
// connector concurrently and isolates failures, so a down SIEM never
// blocks delivery to the others or the event pipeline itself.
//
// Registration is idempotent: registering a connector under an existing
// name replaces the previous one, which lets operators rotate
// credentials without a restart.
package siem
