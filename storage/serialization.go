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

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/poiesic/wayfinder/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("%w: %w: id needs 8 bytes, got %d", ErrSerializationFailed, ErrTruncatedData, len(data))
	}
	return core.ID(binary.BigEndian.Uint64(data)), nil
}

// MarshalPlace serializes a Place to bytes.
func MarshalPlace(place *core.Place) ([]byte, error) {
	return marshal(place)
}

// UnmarshalPlace deserializes a Place from bytes.
func UnmarshalPlace(data []byte) (*core.Place, error) {
	return unmarshal[core.Place](data)
}

// MarshalSessionProfile serializes a SessionProfile to bytes.
func MarshalSessionProfile(profile *core.SessionProfile) ([]byte, error) {
	return marshal(profile)
}

// UnmarshalSessionProfile deserializes a SessionProfile from bytes.
func UnmarshalSessionProfile(data []byte) (*core.SessionProfile, error) {
	return unmarshal[core.SessionProfile](data)
}

// MarshalSearchSignal serializes a SearchSignal to bytes.
func MarshalSearchSignal(signal *core.SearchSignal) ([]byte, error) {
	return marshal(signal)
}

// UnmarshalSearchSignal deserializes a SearchSignal from bytes.
func UnmarshalSearchSignal(data []byte) (*core.SearchSignal, error) {
	return unmarshal[core.SearchSignal](data)
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) ([]byte, error) {
	return marshal(checkpoint)
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	return unmarshal[core.Checkpoint](data)
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

func unmarshal[T any](data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &v, nil
}
