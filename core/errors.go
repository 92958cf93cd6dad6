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


package core

import "errors"

// Degradation taxonomy. Only ErrTimeout is ever returned to a caller of Compose;
// the others are logged and counted.
var (
	// ErrParseDegraded indicates slot extraction found nothing useful or failed internally.
	ErrParseDegraded = errors.New("query parse degraded")

	// ErrSearchUnavailable indicates the place store errored or returned nothing.
	ErrSearchUnavailable = errors.New("search unavailable")

	// ErrConfigMissing indicates ontology configuration failed to load and defaults are in use.
	ErrConfigMissing = errors.New("configuration missing")

	// ErrTimeout indicates the request deadline expired before composition finished.
	ErrTimeout = errors.New("request timed out")
)

// Domain validation errors
var (
	// ErrInvalidPlace indicates a Place failed validation.
	ErrInvalidPlace = errors.New("invalid place")

	// ErrInvalidSlot indicates a Slot failed validation.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrEmptyPlaceName indicates the place Name field is empty.
	ErrEmptyPlaceName = errors.New("place name cannot be empty")

	// ErrInvalidCoordinates indicates latitude or longitude is out of range.
	ErrInvalidCoordinates = errors.New("coordinates out of range")

	// ErrScoreOutOfRange indicates a signal score is outside [0,1].
	ErrScoreOutOfRange = errors.New("score must be within [0,1]")

	// ErrInvalidStatus indicates an unknown PlaceStatus.
	ErrInvalidStatus = errors.New("invalid place status")

	// ErrInvalidSlotType indicates an unknown SlotType.
	ErrInvalidSlotType = errors.New("invalid slot type")

	// ErrEmptyCanonical indicates the slot Canonical field is empty.
	ErrEmptyCanonical = errors.New("slot canonical cannot be empty")

	// ErrInvalidMode indicates an unknown ranking mode.
	ErrInvalidMode = errors.New("invalid mode")
)
