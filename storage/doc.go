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


// Package storage provides the storage abstraction layer for wayfinder.
//
// This package defines the repository interfaces the engine consumes, so the
// place corpus and session state can live in any backend. The engine only
// reads places; writing them is the job of upstream collaborators and the
// seeding tools.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - PlaceRepository: places plus tag, geo and ID-ordered scans
//   - FullTextIndex: optional ranked token search over place fields
//   - SessionRepository: session profiles and search signals
//   - CheckpointRepository: progress of resumable maintenance jobs
//
// The badger subpackage implements all four on BadgerDB; the mock subpackage
// provides in-memory versions with programmable failures.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	places, sessions, checkpoints, backend, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
