package transcript

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/ent0n29/saarthi/internal/observability"
	"github.com/ent0n29/saarthi/internal/protocol"
)

const hubClientBuffer = 64

// Hub fans transcript events out to websocket subscribers. Each subscriber
// gets a buffered queue; events are dropped for a subscriber whose queue is full.
type Hub struct {
	metrics *observability.Metrics

	mu          sync.Mutex
	nextID      uint64
	clients     map[uint64]chan any
	seq         int
	lastUserSeq int
	lastStatus  *protocol.StatusEvent
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		metrics: metrics,
		clients: make(map[uint64]chan any),
	}
}

// Subscribe registers a subscriber. The latest status event, if any, is queued first.
func (h *Hub) Subscribe() (uint64, <-chan any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan any, hubClientBuffer)
	if h.lastStatus != nil {
		ch <- *h.lastStatus
	}
	h.clients[id] = ch
	h.metrics.AddTranscriptPeers(1)
	return id, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(ch)
	h.metrics.AddTranscriptPeers(-1)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) AppendMessage(role Role, text, intent string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	if role == RoleUser {
		h.lastUserSeq = h.seq
	}
	h.broadcastLocked(protocol.TranscriptMessage{
		Type:   protocol.TypeTranscriptMessage,
		Seq:    h.seq,
		Role:   string(role),
		Text:   text,
		Intent: intent,
		TSMs:   time.Now().UnixMilli(),
	})
}

func (h *Hub) ReplaceLastUserMessage(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastUserSeq == 0 {
		return
	}
	h.broadcastLocked(protocol.TranscriptReplace{
		Type: protocol.TypeTranscriptReplace,
		Seq:  h.lastUserSeq,
		Text: text,
	})
}

func (h *Hub) PlayAudio(audio Audio) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(protocol.AssistantAudio{
		Type:        protocol.TypeAssistantAudio,
		Format:      audio.ContentType,
		AudioBase64: base64.StdEncoding.EncodeToString(audio.Data),
	})
}

// PublishStatus broadcasts a status event and remembers it for late subscribers.
func (h *Hub) PublishStatus(online bool, captureState, language string) {
	evt := protocol.StatusEvent{
		Type:         protocol.TypeStatusEvent,
		Online:       online,
		CaptureState: captureState,
		Language:     language,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastStatus = &evt
	h.broadcastLocked(evt)
}

// Send queues msg for a single subscriber.
func (h *Hub) Send(id uint64, msg any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.clients[id]
	if !ok {
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			// Keep the pipeline non-blocking; slow clients miss events.
		}
	}
}
