package backend

import (
	"context"
	"strings"

	"github.com/ent0n29/saarthi/internal/audio"
)

// MockService answers locally with the keyword intent engine. It is used as
// an offline demo backend and as a failover target.
type MockService struct {
	// Utterances overrides the canned transcript per language.
	Utterances map[string]string
}

func NewMockService() *MockService { return &MockService{} }

var defaultMockUtterances = map[string]string{
	"en": "I have a fever since yesterday",
	"hi": "मुझे कल से बुखार है",
	"te": "నాకు నిన్నటి నుండి జ్వరం ఉంది",
}

func (s *MockService) Health(ctx context.Context) error {
	return ctx.Err()
}

func (s *MockService) Transcribe(ctx context.Context, _ []byte, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateLanguage(language); err != nil {
		return "", err
	}
	if text, ok := s.Utterances[language]; ok {
		return text, nil
	}
	return defaultMockUtterances[language], nil
}

func (s *MockService) Guidance(ctx context.Context, text, language string) (Guidance, error) {
	if err := ctx.Err(); err != nil {
		return Guidance{}, err
	}
	if err := validateLanguage(language); err != nil {
		return Guidance{}, err
	}
	intent := DetectIntent(strings.TrimSpace(text))
	return Guidance{Text: guidanceFor(intent, language), Intent: intent}, nil
}

// Synthesize returns half a second of silence so playback paths can be exercised offline.
func (s *MockService) Synthesize(ctx context.Context, _ string, language string) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}
	if err := validateLanguage(language); err != nil {
		return Audio{}, err
	}
	const rate = 16000
	wav, err := audio.EncodeWAVPCM16LE(make([]byte, rate), rate)
	if err != nil {
		return Audio{}, err
	}
	return Audio{Data: wav, ContentType: audio.ContentTypeWAV}, nil
}
