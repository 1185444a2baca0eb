package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/flowmirror/pkg/lock"
)

const lockTTL = 30 * time.Second

// NewLocker returns an in-process lock for an empty url and a Redis lock for
// redis:// urls. The close function is never nil.
func NewLocker(ctx context.Context, logger *slog.Logger, url string) (lock.Locker, func() error, error) {
	switch {
	case url == "":
		return lock.NewLocal(), func() error { return nil }, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		locker, err := lock.NewRedis(ctx, logger, url, lockTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect lock backend: %w", err)
		}

		return locker, locker.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock url %q", url)
	}
}
