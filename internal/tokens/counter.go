// Package tokens counts prompt tokens so retrieved context fits the model budget.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/rs/zerolog/log"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

const encodingName = "cl100k_base"

// Counter counts tokens with tiktoken, or estimates them from characters
// when the encoding could not be loaded.
type Counter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	defaultCounter *Counter
	defaultOnce    sync.Once
)

// Default returns the shared counter. It never returns nil.
func Default() *Counter {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			log.Warn().Err(err).Msg("tiktoken unavailable, falling back to character estimate")
			defaultCounter = &Counter{}
			return
		}
		defaultCounter = &Counter{encoding: enc}
	})
	return defaultCounter
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c == nil || c.encoding == nil {
		return estimate(text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoding.Encode(text, nil, nil))
}

// Method reports which counting strategy is in use.
func (c *Counter) Method() string {
	if c == nil || c.encoding == nil {
		return "estimate"
	}
	return "tiktoken"
}

// estimate assumes roughly four characters per token.
func estimate(text string) int {
	n := len([]rune(text)) / 4
	if n < 1 {
		n = 1
	}
	return n
}
