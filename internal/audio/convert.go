package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

func Decode(buf Buffer, targetRate int) ([]float32, error) {
	if err := buf.Format.Validate(); err != nil {
		return nil, err
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("%w: target rate %d", ErrInvalidFormat, targetRate)
	}
	if len(buf.Data)%buf.Format.FrameSize() != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %s frames", ErrFormatMismatch, len(buf.Data), buf.Format)
	}

	samples := PCMBytesToFloat32(buf.Data, buf.Format.Width)
	mono := Downmix(samples, buf.Format.Channels)
	return Resample(mono, buf.Format.Rate, targetRate), nil
}

func PCMBytesToFloat32(pcm []byte, width int) []float32 {
	switch width {
	case 1:
		out := make([]float32, len(pcm))
		for i, b := range pcm {
			out[i] = (float32(b) - 128) / 128
		}
		return out
	case 4:
		out := make([]float32, len(pcm)/4)
		for i := range out {
			v := int32(binary.LittleEndian.Uint32(pcm[i*4:]))
			out[i] = float32(float64(v) / 2147483648.0)
		}
		return out
	default:
		return Int16ToFloat32(PCMBytesToInt16(pcm))
	}
}

func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		frame := samples[i*channels : (i+1)*channels]
		for _, s := range frame {
			sum += s
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func Resample(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return input
	}

	ratio := float64(toRate) / float64(fromRate)
	outputLen := int(math.Ceil(float64(len(input)) * ratio))
	output := make([]float32, outputLen)

	resampleCore(output, input, ratio)
	return output
}

func resampleCore(output, input []float32, ratio float64) {
	for i := 0; i < len(output); i++ {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(input) {
			output[i] = input[srcIdx]*(1-frac) + input[srcIdx+1]*frac
		} else if srcIdx < len(input) {
			output[i] = input[srcIdx]
		}
	}
}

func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func Int16ToPCMBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func Int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(s) / 32768.0
	}
	return result
}

func Float32ToInt16(samples []float32) []int16 {
	result := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		result[i] = int16(s * 32767.0)
	}
	return result
}

// Float32ToBytes packs samples as little-endian IEEE 754 values.
func Float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func BytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
