package core

import (
	"errors"
	"math"
	"testing"
)

func TestValidatePlace(t *testing.T) {
	noisy := 1.4

	tests := []struct {
		name    string
		place   *Place
		wantErr error
	}{
		{
			name:  "valid place",
			place: &Place{Name: "Sky Bar", Coords: &GeoPoint{Lat: 13.72, Lng: 100.51}, Status: PlaceStatusPublished},
		},
		{
			name:  "valid place without coordinates",
			place: &Place{Name: "Pop-up"},
		},
		{
			name:  "valid place with ID 0 and empty tags",
			place: &Place{Id: 0, Name: "Somewhere", Tags: ""},
		},
		{
			name:    "nil place",
			place:   nil,
			wantErr: ErrInvalidPlace,
		},
		{
			name:    "empty name",
			place:   &Place{Name: ""},
			wantErr: ErrEmptyPlaceName,
		},
		{
			name:    "latitude out of range",
			place:   &Place{Name: "North", Coords: &GeoPoint{Lat: 91, Lng: 0}},
			wantErr: ErrInvalidCoordinates,
		},
		{
			name:    "longitude out of range",
			place:   &Place{Name: "East", Coords: &GeoPoint{Lat: 0, Lng: 181}},
			wantErr: ErrInvalidCoordinates,
		},
		{
			name:    "unknown status",
			place:   &Place{Name: "Limbo", Status: "archived"},
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "quality out of range",
			place:   &Place{Name: "Too Good", Signals: Signals{Quality: 1.2}},
			wantErr: ErrScoreOutOfRange,
		},
		{
			name:    "NaN trend",
			place:   &Place{Name: "Unknown", Signals: Signals{Trend: math.NaN()}},
			wantErr: ErrScoreOutOfRange,
		},
		{
			name:    "noise out of range",
			place:   &Place{Name: "Loud", Signals: Signals{NoiseLevel: &noisy}},
			wantErr: ErrScoreOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlace(tt.place)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidatePlace() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Errorf("ValidatePlace() error = nil, want %v", tt.wantErr)
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePlace() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidPlace) {
				t.Errorf("ValidatePlace() error = %v, should wrap ErrInvalidPlace", err)
			}
		})
	}
}

func TestValidateSlot(t *testing.T) {
	tests := []struct {
		name    string
		slot    *Slot
		wantErr error
	}{
		{
			name: "valid slot",
			slot: &Slot{Type: SlotTypeExperience, Canonical: "rooftop", Confidence: 0.9},
		},
		{
			name:    "nil slot",
			slot:    nil,
			wantErr: ErrInvalidSlot,
		},
		{
			name:    "unknown type",
			slot:    &Slot{Type: "mood", Canonical: "happy", Confidence: 1},
			wantErr: ErrInvalidSlotType,
		},
		{
			name:    "empty canonical",
			slot:    &Slot{Type: SlotTypeDish, Confidence: 1},
			wantErr: ErrEmptyCanonical,
		},
		{
			name:    "confidence above one",
			slot:    &Slot{Type: SlotTypeDish, Canonical: "pad_thai", Confidence: 1.5},
			wantErr: ErrScoreOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSlot(tt.slot)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateSlot() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSlot() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
