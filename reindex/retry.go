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

package reindex

import (
	"context"
	"log/slog"
	"time"
)

// maxRetryDelay caps the backoff between two attempts.
const maxRetryDelay = 30 * time.Second

// RetryWithBackoff calls op up to maxAttempts times, sleeping baseDelay after
// the first failure and twice as long after each following one. It stops
// early when ctx is done and otherwise returns op's last error.
func RetryWithBackoff(ctx context.Context, logger *slog.Logger, maxAttempts int, baseDelay time.Duration, op func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt, delay := 1, baseDelay; ; attempt, delay = attempt+1, min(delay*2, maxRetryDelay) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(ctx); err == nil {
			if attempt > 1 {
				logger.Debug("write recovered", "attempt", attempt)
			}
			return nil
		}
		if attempt == maxAttempts {
			return err
		}
		logger.Debug("write failed, backing off", "attempt", attempt, "delay", delay, "err", err)
		if ctxErr := sleep(ctx, delay); ctxErr != nil {
			return ctxErr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
