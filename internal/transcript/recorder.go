package transcript

import (
	"sync"
	"time"
)

const defaultRecorderLimit = 200

// Recorder keeps the most recent messages in memory for status surfaces.
type Recorder struct {
	mu       sync.RWMutex
	limit    int
	seq      int
	messages []Message
	played   []Audio
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = defaultRecorderLimit
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) AppendMessage(role Role, text, intent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.messages = append(r.messages, Message{
		Seq:    r.seq,
		Role:   role,
		Text:   text,
		Intent: intent,
		At:     time.Now().UTC(),
	})
	if over := len(r.messages) - r.limit; over > 0 {
		r.messages = append([]Message(nil), r.messages[over:]...)
	}
}

func (r *Recorder) ReplaceLastUserMessage(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Role == RoleUser {
			r.messages[i].Text = text
			return
		}
	}
}

func (r *Recorder) PlayAudio(audio Audio) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played = append(r.played, audio)
}

func (r *Recorder) Messages() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Message(nil), r.messages...)
}

func (r *Recorder) Played() []Audio {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Audio(nil), r.played...)
}
