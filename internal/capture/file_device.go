package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ent0n29/saarthi/internal/audio"
)

// FileDevice replays a PCM16 mono WAV file as if it were being recorded.
// With Realtime set, fragments are paced at playback speed.
type FileDevice struct {
	Path       string
	ChunkBytes int
	Realtime   bool
}

func NewFileDevice(path string) *FileDevice {
	return &FileDevice{Path: path, ChunkBytes: execChunkBytes}
}

func (d *FileDevice) Open(_ context.Context, _ int) (Stream, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	pcm, rate, err := audio.DecodeWAVPCM16LE(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, d.Path, err)
	}
	chunk := d.ChunkBytes
	if chunk <= 0 {
		chunk = execChunkBytes
	}
	chunk -= chunk % 2

	s := &fileStream{
		sampleRate: rate,
		frags:      make(chan []byte),
		stop:       make(chan struct{}),
	}
	var pace time.Duration
	if d.Realtime {
		pace = audio.PCMDuration(chunk, rate)
	}
	go s.run(pcm, chunk, pace)
	return s, nil
}

type fileStream struct {
	sampleRate int
	frags      chan []byte
	stop       chan struct{}
	stopOnce   sync.Once
}

func (s *fileStream) Fragments() <-chan []byte { return s.frags }
func (s *fileStream) SampleRate() int          { return s.sampleRate }

func (s *fileStream) run(pcm []byte, chunk int, pace time.Duration) {
	defer close(s.frags)
	for off := 0; off < len(pcm); off += chunk {
		end := off + chunk
		if end > len(pcm) {
			end = len(pcm)
		}
		select {
		case s.frags <- pcm[off:end]:
		case <-s.stop:
			return
		}
		if pace > 0 {
			select {
			case <-time.After(pace):
			case <-s.stop:
				return
			}
		}
	}
}

func (s *fileStream) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
