package ai

import (
	"github.com/pkoukk/tiktoken-go"

	"invest-research-backend/internal/domain/ports/adapter"
)

// countTokensLocal estimates prompt tokens with tiktoken. Close enough for
// precheck metrics; exact usage comes back from the provider after the call.
func countTokensLocal(model string, messages []adapter.Message) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	total := 0
	for _, m := range messages {
		// 4 covers the per-message framing tokens of the chat format.
		total += len(enc.Encode(m.Content, nil, nil)) + 4
	}
	return total, nil
}
