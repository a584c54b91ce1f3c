package llm

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func loadCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("Tokenizer unavailable, falling back to length estimate")
			return
		}
		codec = c
	})
	return codec
}

// CountTokens estimates the token count of text with the cl100k encoding.
// Falls back to one token per four bytes when the encoder cannot be loaded.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if c := loadCodec(); c != nil {
		if ids, _, err := c.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}

// estimateUsage fills in usage when the runtime reported none.
func estimateUsage(system string, msgs []Message, reply string) Usage {
	in := CountTokens(system)
	for _, m := range msgs {
		in += CountTokens(m.Content)
	}
	out := CountTokens(reply)
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out, Estimated: true}
}
