// Package llm defines the text-generation contract used to structure OCR
// output, together with its error taxonomy and retry policy.
package llm

import "context"

// Generator turns a prompt into model text. Implementations classify
// failures with ErrConnection, ErrTimeout, ErrModel or ErrAPI.
type Generator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// ModelVerifier checks that the backing service is reachable and the
// configured model is installed.
type ModelVerifier interface {
	VerifyModel(ctx context.Context) error
}
