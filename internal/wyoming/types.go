package wyoming

import "fmt"

const (
	TypeDescribe   = "describe"
	TypeInfo       = "info"
	TypeTranscribe = "transcribe"
	TypeAudioStart = "audio-start"
	TypeAudioChunk = "audio-chunk"
	TypeAudioStop  = "audio-stop"
	TypeTranscript = "transcript"
	TypeError      = "error"
)

type Kind int

const (
	KindUnrecognized Kind = iota
	KindDescribe
	KindConfigure
	KindAudioChunk
	KindAudioStop
)

func (k Kind) String() string {
	switch k {
	case KindDescribe:
		return "describe"
	case KindConfigure:
		return "configure"
	case KindAudioChunk:
		return "audio_chunk"
	case KindAudioStop:
		return "audio_stop"
	default:
		return "unrecognized"
	}
}

func Classify(e *Event) Kind {
	switch e.Type {
	case TypeDescribe:
		return KindDescribe
	case TypeTranscribe:
		return KindConfigure
	case TypeAudioChunk:
		return KindAudioChunk
	case TypeAudioStop:
		return KindAudioStop
	default:
		return KindUnrecognized
	}
}

type Describe struct{}

func (Describe) ToEvent() *Event {
	return NewEvent(TypeDescribe, nil, nil)
}

type Transcribe struct {
	Name     string
	Language string
}

func (t Transcribe) ToEvent() *Event {
	data := map[string]any{}
	if t.Name != "" {
		data["name"] = t.Name
	}
	if t.Language != "" {
		data["language"] = t.Language
	}
	return NewEvent(TypeTranscribe, data, nil)
}

func TranscribeFromEvent(e *Event) Transcribe {
	name, _ := e.String("name")
	lang, _ := e.String("language")
	return Transcribe{Name: name, Language: lang}
}

type AudioFormat struct {
	Rate     int
	Width    int
	Channels int
}

func (f AudioFormat) data() map[string]any {
	return map[string]any{
		"rate":     f.Rate,
		"width":    f.Width,
		"channels": f.Channels,
	}
}

func formatFromEvent(e *Event) (AudioFormat, error) {
	rate, okRate := e.Int("rate")
	width, okWidth := e.Int("width")
	channels, okChannels := e.Int("channels")
	if !okRate || !okWidth || !okChannels {
		return AudioFormat{}, fmt.Errorf("%w: %s requires rate, width and channels", ErrMalformedEvent, e.Type)
	}
	return AudioFormat{Rate: rate, Width: width, Channels: channels}, nil
}

type AudioStart struct {
	AudioFormat
	Timestamp *int
}

func (a AudioStart) ToEvent() *Event {
	data := a.data()
	if a.Timestamp != nil {
		data["timestamp"] = *a.Timestamp
	}
	return NewEvent(TypeAudioStart, data, nil)
}

type AudioChunk struct {
	AudioFormat
	Audio     []byte
	Timestamp *int
}

func (a AudioChunk) ToEvent() *Event {
	data := a.data()
	if a.Timestamp != nil {
		data["timestamp"] = *a.Timestamp
	}
	return NewEvent(TypeAudioChunk, data, a.Audio)
}

func AudioChunkFromEvent(e *Event) (AudioChunk, error) {
	f, err := formatFromEvent(e)
	if err != nil {
		return AudioChunk{}, err
	}
	chunk := AudioChunk{AudioFormat: f, Audio: e.Payload}
	if ts, ok := e.Int("timestamp"); ok {
		chunk.Timestamp = &ts
	}
	return chunk, nil
}

type AudioStop struct {
	Timestamp *int
}

func (a AudioStop) ToEvent() *Event {
	data := map[string]any{}
	if a.Timestamp != nil {
		data["timestamp"] = *a.Timestamp
	}
	return NewEvent(TypeAudioStop, data, nil)
}

type Transcript struct {
	Text     string
	Language string
}

func (t Transcript) ToEvent() *Event {
	data := map[string]any{"text": t.Text}
	if t.Language != "" {
		data["language"] = t.Language
	}
	return NewEvent(TypeTranscript, data, nil)
}

func TranscriptFromEvent(e *Event) Transcript {
	text, _ := e.String("text")
	lang, _ := e.String("language")
	return Transcript{Text: text, Language: lang}
}

type Error struct {
	Text string
	Code string
}

func (e Error) ToEvent() *Event {
	data := map[string]any{"text": e.Text}
	if e.Code != "" {
		data["code"] = e.Code
	}
	return NewEvent(TypeError, data, nil)
}

func ErrorFromEvent(e *Event) Error {
	text, _ := e.String("text")
	code, _ := e.String("code")
	return Error{Text: text, Code: code}
}
