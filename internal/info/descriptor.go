package info

import (
	"path"
	"strings"

	"github.com/eleven-am/parakeet-wyoming/internal/wyoming"
)

const (
	AutoModel        = "auto"
	DefaultModelID   = "nvidia/parakeet-tdt-1.1b"
	DefaultModelName = "parakeet-tdt-1.1b"
	DefaultLanguage  = "en"
	DefaultVersion   = "1.1b"

	programName        = "parakeet"
	programDescription = "Parakeet transcription with NVIDIA NeMo"
)

var (
	programAttribution = wyoming.Attribution{Name: "NVIDIA", URL: "https://github.com/NVIDIA/NeMo"}
	modelAttribution   = wyoming.Attribution{Name: "NVIDIA", URL: "https://huggingface.co/nvidia"}
)

type Config struct {
	ModelName    string
	ModelVersion string
	Languages    []string
	Version      string
}

// Descriptor is built once at startup and never mutated, so sessions read
// it without locking.
type Descriptor struct {
	info  wyoming.Info
	event *wyoming.Event
}

func New(cfg Config) (*Descriptor, error) {
	info := Build(cfg)
	ev, err := info.ToEvent()
	if err != nil {
		return nil, err
	}
	return &Descriptor{info: info, event: ev}, nil
}

func Build(cfg Config) wyoming.Info {
	name := cfg.ModelName
	if name == "" {
		name = DefaultModelName
	}
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{DefaultLanguage}
	}
	modelVersion := cfg.ModelVersion
	if modelVersion == "" {
		modelVersion = DefaultVersion
	}

	return wyoming.Info{
		Asr: []wyoming.AsrProgram{{
			Name:        programName,
			Description: programDescription,
			Attribution: programAttribution,
			Installed:   true,
			Version:     cfg.Version,
			Models: []wyoming.AsrModel{{
				Name:        name,
				Description: name,
				Attribution: modelAttribution,
				Installed:   true,
				Languages:   append([]string(nil), languages...),
				Version:     modelVersion,
			}},
		}},
	}
}

// Event returns the shared info event. Callers must not modify it.
func (d *Descriptor) Event() *wyoming.Event {
	return d.event
}

func (d *Descriptor) Info() wyoming.Info {
	return d.info
}

// ResolveModel maps the CLI model argument to a loadable identifier and the
// name advertised to clients.
func ResolveModel(model string) (id, name string) {
	if model == "" || model == AutoModel {
		return DefaultModelID, DefaultModelName
	}
	return model, path.Base(strings.TrimSuffix(model, "/"))
}

func ResolveLanguage(language string) string {
	if language == "auto" {
		return DefaultLanguage
	}
	return language
}
