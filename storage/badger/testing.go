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


package badger

import "errors"

// NewMemoryRepositories opens an in-memory backend and the three
// repositories on top of it. Closing the backend releases everything.
func NewMemoryRepositories() (*PlaceRepository, *SessionRepository, *CheckpointRepository, *Backend, error) {
	backend, err := OpenBackend("", true, nil)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	places, perr := NewPlaceRepository(backend)
	sessions, serr := NewSessionRepository(backend)
	checkpoints, cerr := NewCheckpointRepository(backend)
	if err := errors.Join(perr, serr, cerr); err != nil {
		backend.Close()
		return nil, nil, nil, nil, err
	}
	return places, sessions, checkpoints, backend, nil
}
