package wyoming

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	ProtocolVersion = "1.5.2"

	MaxHeaderSize  = 1 << 20
	MaxDataSize    = 1 << 20
	MaxPayloadSize = 16 << 20
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrEventTooLarge  = errors.New("event too large")
)

type Event struct {
	Type    string
	Data    map[string]any
	Payload []byte
}

type header struct {
	Type          string         `json:"type"`
	Version       string         `json:"version,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

func NewEvent(eventType string, data map[string]any, payload []byte) *Event {
	return &Event{Type: eventType, Data: data, Payload: payload}
}

func ReadEvent(r *bufio.Reader) (*Event, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedEvent, err)
	}
	if h.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if h.DataLength < 0 || h.PayloadLength < 0 {
		return nil, fmt.Errorf("%w: negative length", ErrMalformedEvent)
	}
	if h.DataLength > MaxDataSize || h.PayloadLength > MaxPayloadSize {
		return nil, ErrEventTooLarge
	}

	ev := &Event{Type: h.Type, Data: h.Data}

	if h.DataLength > 0 {
		raw := make([]byte, h.DataLength)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrMalformedEvent, err)
		}
		var extra map[string]any
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrMalformedEvent, err)
		}
		if ev.Data == nil {
			ev.Data = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			ev.Data[k] = v
		}
	}

	if h.PayloadLength > 0 {
		ev.Payload = make([]byte, h.PayloadLength)
		if _, err := io.ReadFull(r, ev.Payload); err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrMalformedEvent, err)
		}
	}

	return ev, nil
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return nil, fmt.Errorf("%w: truncated header", ErrMalformedEvent)
			}
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > MaxHeaderSize {
			return nil, ErrEventTooLarge
		}
		if !isPrefix {
			if len(bytes.TrimSpace(line)) == 0 {
				line = line[:0]
				continue
			}
			return line, nil
		}
	}
}

func (e *Event) Encode() ([]byte, error) {
	h := header{
		Type:          e.Type,
		Version:       ProtocolVersion,
		Data:          e.Data,
		PayloadLength: len(e.Payload),
	}

	line, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type, err)
	}

	buf := make([]byte, 0, len(line)+1+len(e.Payload))
	buf = append(buf, line...)
	buf = append(buf, '\n')
	buf = append(buf, e.Payload...)
	return buf, nil
}

func DecodeEvent(message []byte) (*Event, error) {
	return ReadEvent(bufio.NewReader(bytes.NewReader(message)))
}

func WriteEvent(w io.Writer, e *Event) error {
	buf, err := e.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func (e *Event) String(key string) (string, bool) {
	v, ok := e.Data[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (e *Event) Int(key string) (int, bool) {
	v, ok := e.Data[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
