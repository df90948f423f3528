package ai

import (
	"context"
	"fmt"
	"time"

	"collab-realtime/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev runs where
// no provider key is configured. It echoes instead of calling a real model.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{}
}

func (a *NoopAIAdapter) Complete(ctx context.Context, model, query string) (string, error) {
	// Simulate slight processing time and respect ctx
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return fmt.Sprintf("noop answer for: %s", query), nil
}

func (a *NoopAIAdapter) CountTokens(_ context.Context, _ string, query string) (int, error) {
	return len(query) / 4, nil
}
