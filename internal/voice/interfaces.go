package voice

import (
	"context"

	"github.com/ent0n29/saarthi/internal/backend"
	"github.com/ent0n29/saarthi/internal/cache"
)

// Pipeline is the remote surface the orchestrator drives, in call order.
type Pipeline interface {
	backend.Transcriber
	backend.GuidanceProvider
	backend.Synthesizer
}

// Connectivity is the shared online/offline flag.
type Connectivity interface {
	Online() bool
	SetOffline(reason string)
}

// ExchangeCache stores completed exchanges for offline replay.
type ExchangeCache interface {
	Insert(ctx context.Context, ex cache.Exchange)
	LoadAll(ctx context.Context) []cache.Exchange
	Summarize(limit int) string
	Capacity() int
}
