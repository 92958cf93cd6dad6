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

import (
	"fmt"
)

// ValidatePlace validates a Place according to domain rules.
//
// Validation rules:
//   - Name must not be empty
//   - Coordinates, when present, must be within WGS84 range
//   - Signal scores and noise level must be within [0,1]
//   - Status must be empty or a known PlaceStatus
//
// NOT validated (derived or assigned by storage):
//   - TagBits and TagBitsVersion
//   - ID (0 means "derive from content")
func ValidatePlace(place *Place) error {
	if place == nil {
		return fmt.Errorf("%w: place is nil", ErrInvalidPlace)
	}

	if place.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPlace, ErrEmptyPlaceName)
	}

	if place.Coords != nil && !ValidCoordinates(*place.Coords) {
		return fmt.Errorf("%w: %w", ErrInvalidPlace, ErrInvalidCoordinates)
	}

	switch place.Status {
	case "", PlaceStatusDraft, PlaceStatusEnriched, PlaceStatusPublished:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidPlace, ErrInvalidStatus, place.Status)
	}

	if err := validateSignals(&place.Signals); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlace, err)
	}

	return nil
}

// ValidateSlot validates a Slot according to domain rules.
func ValidateSlot(slot *Slot) error {
	if slot == nil {
		return fmt.Errorf("%w: slot is nil", ErrInvalidSlot)
	}
	if !slot.Type.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidSlot, ErrInvalidSlotType, slot.Type)
	}
	if slot.Canonical == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSlot, ErrEmptyCanonical)
	}
	if !inUnitRange(slot.Confidence) {
		return fmt.Errorf("%w: confidence %v: %w", ErrInvalidSlot, slot.Confidence, ErrScoreOutOfRange)
	}
	return nil
}

// ValidCoordinates reports whether p is a valid WGS84 coordinate.
func ValidCoordinates(p GeoPoint) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func validateSignals(s *Signals) error {
	scores := map[string]float64{
		"quality":       s.Quality,
		"novelty":       s.Novelty,
		"trend":         s.Trend,
		"interest":      s.Interest,
		"extraordinary": s.Extraordinary,
		"hq_experience": s.HighQualityExperience,
	}
	for name, v := range scores {
		if !inUnitRange(v) {
			return fmt.Errorf("%s %v: %w", name, v, ErrScoreOutOfRange)
		}
	}
	if s.NoiseLevel != nil && !inUnitRange(*s.NoiseLevel) {
		return fmt.Errorf("noise_level %v: %w", *s.NoiseLevel, ErrScoreOutOfRange)
	}
	return nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
