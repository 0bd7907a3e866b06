// Package cache keeps the last few completed exchanges so the client has
// something useful to show while the remote service is unreachable.
package cache

import (
	"time"

	"github.com/google/uuid"
)

// Exchange is one completed utterance/guidance round trip. JSON names match
// the slot format written by earlier clients.
type Exchange struct {
	ID        string    `json:"id,omitempty"`
	Utterance string    `json:"text"`
	Guidance  string    `json:"guidance"`
	Intent    string    `json:"intent"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"timestamp"`
}

func NewExchange(utterance, guidance, intent, language string) Exchange {
	return Exchange{
		ID:        uuid.NewString(),
		Utterance: utterance,
		Guidance:  guidance,
		Intent:    intent,
		Language:  language,
		CreatedAt: time.Now().UTC(),
	}
}
