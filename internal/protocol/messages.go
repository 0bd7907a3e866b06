// Package protocol defines the JSON messages exchanged on the transcript websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl     MessageType = "client_control"
	TypeClientLanguage    MessageType = "client_language"
	TypeTranscriptMessage MessageType = "transcript_message"
	TypeTranscriptReplace MessageType = "transcript_replace"
	TypeAssistantAudio    MessageType = "assistant_audio"
	TypeStatusEvent       MessageType = "status_event"
	TypeErrorEvent        MessageType = "error_event"
)

// Client control actions mirror the microphone button.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionToggle = "toggle"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

type ClientLanguage struct {
	Type     MessageType `json:"type"`
	Language string      `json:"language"`
}

type TranscriptMessage struct {
	Type   MessageType `json:"type"`
	Seq    int         `json:"seq"`
	Role   string      `json:"role"`
	Text   string      `json:"text"`
	Intent string      `json:"intent,omitempty"`
	TSMs   int64       `json:"ts_ms"`
}

// TranscriptReplace rewrites the text of an earlier message in place.
type TranscriptReplace struct {
	Type MessageType `json:"type"`
	Seq  int         `json:"seq"`
	Text string      `json:"text"`
}

type AssistantAudio struct {
	Type        MessageType `json:"type"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type StatusEvent struct {
	Type         MessageType `json:"type"`
	Online       bool        `json:"online"`
	CaptureState string      `json:"capture_state"`
	Language     string      `json:"language"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionStart, ActionStop, ActionToggle:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	case TypeClientLanguage:
		var msg ClientLanguage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Language == "" {
			return nil, errors.New("invalid client_language")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
