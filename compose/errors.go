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

package compose

import "errors"

var (
	// ErrExtractorRequired is returned when no slot extractor is supplied.
	ErrExtractorRequired = errors.New("slot extractor is required")

	// ErrSearcherRequired is returned when no searcher is supplied.
	ErrSearcherRequired = errors.New("searcher is required")

	// ErrRegistryRequired is returned when no ontology registry is supplied.
	ErrRegistryRequired = errors.New("ontology registry is required")

	// ErrEncoderRequired is returned when no tag encoder is supplied.
	ErrEncoderRequired = errors.New("tag encoder is required")

	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid compose request")
)
