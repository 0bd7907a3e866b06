// Package transcript renders the conversation: console output, an in-memory
// log, a websocket broadcaster and audio playback all sit behind Sink.
package transcript

import "time"

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Audio is a playable response clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// Sink is an append-only transcript target. Calls are fire-and-forget.
type Sink interface {
	AppendMessage(role Role, text, intent string)
	ReplaceLastUserMessage(text string)
	PlayAudio(audio Audio)
}

type Message struct {
	Seq    int       `json:"seq"`
	Role   Role      `json:"role"`
	Text   string    `json:"text"`
	Intent string    `json:"intent,omitempty"`
	At     time.Time `json:"at"`
}

// Fanout forwards every call to each sink in order.
type Fanout []Sink

func (f Fanout) AppendMessage(role Role, text, intent string) {
	for _, s := range f {
		s.AppendMessage(role, text, intent)
	}
}

func (f Fanout) ReplaceLastUserMessage(text string) {
	for _, s := range f {
		s.ReplaceLastUserMessage(text)
	}
}

func (f Fanout) PlayAudio(audio Audio) {
	for _, s := range f {
		s.PlayAudio(audio)
	}
}
