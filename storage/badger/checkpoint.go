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

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/storage"
)

// CheckpointRepository stores one progress marker per maintenance job,
// keyed by the job's processor type.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

func NewCheckpointRepository(backend *Backend) (*CheckpointRepository, error) {
	if backend == nil {
		return nil, storage.ErrBackendRequired
	}
	return &CheckpointRepository{backend: backend}, nil
}

// SaveCheckpoint overwrites the job's marker and stamps UpdatedAt.
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	checkpoint.UpdatedAt = time.Now().UTC()
	value, err := storage.MarshalCheckpoint(checkpoint)
	if err != nil {
		return err
	}
	return r.backend.update(func(tx *badger.Txn) error {
		return tx.Set(makeCheckpointKey(checkpoint.ProcessorType), value)
	})
}

// LoadCheckpoint returns nil, nil when the job has never saved progress.
func (r *CheckpointRepository) LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []byte
	err := r.backend.view(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCheckpointKey(processorType))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return storage.UnmarshalCheckpoint(raw)
}

// DeleteCheckpoint is a no-op for jobs without a marker.
func (r *CheckpointRepository) DeleteCheckpoint(ctx context.Context, processorType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.backend.update(func(tx *badger.Txn) error {
		return tx.Delete(makeCheckpointKey(processorType))
	})
}
