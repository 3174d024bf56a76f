package telephony

import (
	"context"
	"fmt"
)

// UnconfiguredSynthesizer is the default Synthesizer until a TTS vendor is
// wired in: picking that vendor is explicitly out of scope (§1's
// Non-goals), so this fails loudly rather than silently choosing one.
// Deployments supply their own Synthesizer implementation to NewHandler.
type UnconfiguredSynthesizer struct{}

// Synthesize always fails; see UnconfiguredSynthesizer's doc comment.
func (UnconfiguredSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return nil, fmt.Errorf("telephony: no text-to-speech vendor configured")
}
