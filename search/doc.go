// Copyright 2025 Poiesic Systems
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


// Package search retrieves candidate places for a free-text query or a slot.
//
// The Searcher runs a multi-stage lookup:
//   - Intent detection picks a field weight profile (name, tags, summary, address)
//   - A ranked full-text query over synonym-expanded tokens when the store has a token index
//   - An ordered chain of keyword strategies when full-text search is unavailable or empty
//   - Per-slot lookups by expansion tags, categories and areas
//
// Geographic requests are prefiltered with a bounding box and confirmed with
// great-circle distance. Storage calls are guarded by a circuit breaker and a
// per-lookup timeout; any storage failure yields an empty candidate list.
// Results are cached briefly, keyed by the request and a coarse time bucket.
package search
