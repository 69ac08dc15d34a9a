package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const wavHeaderSize = 44

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

func newWAVHeader(f Format, dataLen uint32) wavHeader {
	return wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataLen,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.Rate),
		ByteRate:      uint32(f.Rate * f.Channels * f.Width),
		BlockAlign:    uint16(f.Channels * f.Width),
		BitsPerSample: uint16(f.Width * 8),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataLen,
	}
}

func WriteWAVHeader(w io.Writer, f Format, dataLen uint32) error {
	if err := binary.Write(w, binary.LittleEndian, newWAVHeader(f, dataLen)); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	return nil
}

func EncodeWAV(buf Buffer) ([]byte, error) {
	if err := buf.Format.Validate(); err != nil {
		return nil, err
	}

	out := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(buf.Data)))
	if err := WriteWAVHeader(out, buf.Format, uint32(len(buf.Data))); err != nil {
		return nil, err
	}
	out.Write(buf.Data)
	return out.Bytes(), nil
}

// EncodeMonoWAV renders a decoded signal as 16-bit mono PCM.
func EncodeMonoWAV(samples []float32, rate int) ([]byte, error) {
	return EncodeWAV(Buffer{
		Format: Format{Rate: rate, Width: 2, Channels: 1},
		Data:   Int16ToPCMBytes(Float32ToInt16(samples)),
	})
}

// DecodeWAV reads PCM from a RIFF/WAVE file. Chunks other than "fmt " and
// "data" (LIST, fact, cue and the like) are skipped.
func DecodeWAV(data []byte) (Buffer, error) {
	if len(data) < 12 {
		return Buffer{}, fmt.Errorf("wav data too short: need at least 12 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return Buffer{}, fmt.Errorf("invalid wav: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return Buffer{}, fmt.Errorf("invalid wav: missing WAVE format")
	}

	var (
		f       Format
		haveFmt bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if size < 0 || end > len(data) || end < body {
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return Buffer{}, fmt.Errorf("invalid wav: fmt chunk is %d bytes", end-body)
			}
			chunk := data[body:end]
			if enc := binary.LittleEndian.Uint16(chunk[0:2]); enc != 1 {
				return Buffer{}, fmt.Errorf("unsupported wav encoding %d", enc)
			}
			f = Format{
				Channels: int(binary.LittleEndian.Uint16(chunk[2:4])),
				Rate:     int(binary.LittleEndian.Uint32(chunk[4:8])),
				Width:    int(binary.LittleEndian.Uint16(chunk[14:16])) / 8,
			}
			if err := f.Validate(); err != nil {
				return Buffer{}, err
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Buffer{}, fmt.Errorf("invalid wav: data chunk before fmt chunk")
			}
			return Buffer{Format: f, Data: data[body:end]}, nil
		}

		// odd-sized chunks carry a pad byte
		off = end
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return Buffer{}, fmt.Errorf("invalid wav: missing fmt chunk")
	}
	return Buffer{}, fmt.Errorf("invalid wav: missing data chunk")
}
