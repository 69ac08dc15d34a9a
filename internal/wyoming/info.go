package wyoming

import (
	"encoding/json"
	"fmt"
)

type Attribution struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type AsrModel struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Languages   []string    `json:"languages"`
	Version     string      `json:"version,omitempty"`
}

type AsrProgram struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version,omitempty"`
	Models      []AsrModel  `json:"models"`
}

type Info struct {
	Asr []AsrProgram `json:"asr"`
}

func (i Info) ToEvent() (*Event, error) {
	raw, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("encode info: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("encode info: %w", err)
	}
	return NewEvent(TypeInfo, data, nil), nil
}

func InfoFromEvent(e *Event) (Info, error) {
	var info Info
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return info, fmt.Errorf("%w: info: %v", ErrMalformedEvent, err)
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, fmt.Errorf("%w: info: %v", ErrMalformedEvent, err)
	}
	return info, nil
}
