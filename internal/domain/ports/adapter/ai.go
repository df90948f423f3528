package adapter

import "context"

// AIServiceAdapter is the black-box compute engine behind job execution.
// The delivery subsystem never sees past this boundary.
type AIServiceAdapter interface {
	Complete(ctx context.Context, model, query string) (string, error)
	CountTokens(ctx context.Context, model, query string) (int, error)
}
