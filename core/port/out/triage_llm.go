package out

import "context"

// TextGenerator sends a prompt to a generative model and returns its raw text.
// Implementations return domain.ErrContentBlocked when the provider halts
// generation for safety or policy reasons.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}
