// Package audio handles the one wire format the client speaks: PCM16LE mono in a WAV container.
package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ContentTypeWAV is the declared encoding of every captured payload.
const ContentTypeWAV = "audio/wav"

const (
	numChannels   = 1
	bitsPerSample = 16
	formatPCM     = 1
	headerSize    = 44
)

var ErrInvalidWAV = errors.New("invalid wav")

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LEFile writes raw PCM16LE mono audio bytes as a WAV file.
func WriteWAVPCM16LEFile(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAVPCM16LETo(f, pcm, sampleRate); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm16 payload has odd length %d", len(pcm))
	}

	dataSize := uint32(len(pcm))
	w := bufio.NewWriter(out)

	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36) + dataSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(formatPCM),
		uint16(numChannels),
		uint32(sampleRate),
		uint32(sampleRate * numChannels * bitsPerSample / 8),
		uint16(numChannels * bitsPerSample / 8),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// DecodeWAVPCM16LE returns the raw sample bytes and sample rate of a PCM16 mono WAV.
// Chunks other than fmt and data are skipped.
func DecodeWAVPCM16LE(data []byte) ([]byte, int, error) {
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("%w: need at least 12 bytes, got %d", ErrInvalidWAV, len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return nil, 0, fmt.Errorf("%w: missing RIFF header", ErrInvalidWAV)
	}
	if string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: missing WAVE format", ErrInvalidWAV)
	}

	var (
		sampleRate int
		sawFmt     bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			if id == "data" {
				// Streaming recorders leave the size at 0xFFFFFFFF or short.
				size = len(data) - body
			} else {
				return nil, 0, fmt.Errorf("%w: chunk %q overruns payload", ErrInvalidWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%w: fmt chunk too short", ErrInvalidWAV)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels := binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != formatPCM {
				return nil, 0, fmt.Errorf("unsupported audio format %d (only PCM)", format)
			}
			if channels != numChannels {
				return nil, 0, fmt.Errorf("unsupported channel count %d (only mono)", channels)
			}
			if bits != bitsPerSample {
				return nil, 0, fmt.Errorf("unsupported bit depth %d (only 16-bit)", bits)
			}
			if sampleRate <= 0 {
				return nil, 0, fmt.Errorf("%w: sample rate 0", ErrInvalidWAV)
			}
			sawFmt = true
		case "data":
			if !sawFmt {
				return nil, 0, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			pcm := make([]byte, size-size%2)
			copy(pcm, data[body:body+len(pcm)])
			return pcm, sampleRate, nil
		}

		off = body + size + size%2
	}
	return nil, 0, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}

// PCMDuration reports the playback length of pcm16 mono bytes at sampleRate.
func PCMDuration(pcmBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 || pcmBytes <= 0 {
		return 0
	}
	samples := pcmBytes / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
