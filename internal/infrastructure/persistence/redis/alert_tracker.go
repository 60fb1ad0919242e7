package redis

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

// AlertTracker keeps alert fingerprints in one redis hash, so every replica of the
// service shares the same view of which conditions have already alerted.
type AlertTracker struct {
	client redis.UniversalClient
	key    string
}

// NewAlertTracker creates a tracker stored under TrackerKeyPrefix+name.
func NewAlertTracker(client redis.UniversalClient, name string) *AlertTracker {
	if name == "" {
		name = "default"
	}
	return &AlertTracker{client: client, key: constants.TrackerKeyPrefix + name}
}

// State implements service.AlertTracker.
func (t *AlertTracker) State(ctx context.Context, key service.TrackerKey) (string, bool, error) {
	fp, err := t.client.HGet(ctx, t.key, key.String()).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, errors.WrapError(err, constants.ErrCodeServerError, "failed to read alert tracker")
	}
	return fp, true, nil
}

// Commit implements service.AlertTracker. Sets and clears are applied in one
// MULTI/EXEC transaction.
func (t *AlertTracker) Commit(ctx context.Context, changes service.TrackerChanges) error {
	if changes.Empty() {
		return nil
	}

	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(changes.Cleared) > 0 {
			fields := make([]string, 0, len(changes.Cleared))
			for _, k := range changes.Cleared {
				fields = append(fields, k.String())
			}
			pipe.HDel(ctx, t.key, fields...)
		}
		if len(changes.Set) > 0 {
			values := make(map[string]interface{}, len(changes.Set))
			for k, fp := range changes.Set {
				values[k.String()] = fp
			}
			pipe.HSet(ctx, t.key, values)
		}
		return nil
	})
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to commit alert tracker")
	}
	return nil
}

// Reset drops all tracked state. The admin CLI calls it after thresholds change,
// so conditions that are still active alert again under the new rules.
func (t *AlertTracker) Reset(ctx context.Context) error {
	if err := t.client.Del(ctx, t.key).Err(); err != nil {
		return errors.WrapError(err, constants.ErrCodeServerError, "failed to reset alert tracker")
	}
	return nil
}

var _ service.AlertTracker = (*AlertTracker)(nil)
