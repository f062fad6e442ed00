package cache

import (
	"context"
	"time"
)

// Passthrough выполняет функцию всегда; используется без Redis.
type Passthrough struct{}

// Once вызывает fn без дедупликации.
func (Passthrough) Once(_ context.Context, _ string, _ time.Duration, fn func() error) error {
	return fn()
}
