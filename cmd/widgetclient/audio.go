package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	resampling "github.com/tphakala/go-audio-resampling"
)

// pcmFormat describes 16-bit signed little-endian samples
type pcmFormat struct {
	SampleRate int
	Channels   int
}

// loadSpeech reads a WAV file, or raw 16-bit mono PCM at sourceRate, and returns
// mono float32 samples at targetRate.
func loadSpeech(path string, sourceRate, targetRate int) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	format := pcmFormat{SampleRate: sourceRate, Channels: 1}
	if bytes.HasPrefix(data, []byte("RIFF")) {
		format, data, err = parseWAV(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	samples := toMono(data, format.Channels)
	if format.SampleRate == targetRate {
		return samples, nil
	}
	return resample(samples, format.SampleRate, targetRate)
}

// parseWAV returns the format and data chunk of a 16-bit PCM WAV file
func parseWAV(data []byte) (pcmFormat, []byte, error) {
	var format pcmFormat
	if len(data) < 12 || string(data[8:12]) != "WAVE" {
		return format, nil, fmt.Errorf("not a WAVE file")
	}

	var pcm []byte
	for offset := 12; offset+8 <= len(data); {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4:]))
		body := data[offset+8:]
		if size > len(body) {
			size = len(body)
		}
		body = body[:size]

		switch id {
		case "fmt ":
			if len(body) < 16 {
				return format, nil, fmt.Errorf("short fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(body[0:]); tag != 1 {
				return format, nil, fmt.Errorf("unsupported WAV encoding %d, want PCM", tag)
			}
			if bits := binary.LittleEndian.Uint16(body[14:]); bits != 16 {
				return format, nil, fmt.Errorf("unsupported sample width %d bits, want 16", bits)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:]))
		case "data":
			pcm = body
		}

		// chunks are word aligned
		offset += 8 + size + size%2
	}

	if format.SampleRate == 0 || format.Channels == 0 {
		return format, nil, fmt.Errorf("missing fmt chunk")
	}
	if pcm == nil {
		return format, nil, fmt.Errorf("missing data chunk")
	}
	return format, pcm, nil
}

// toMono averages interleaved int16 channels into float32 samples in [-1, 1)
func toMono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			at := (i*channels + ch) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[at:]))) / 32768
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func resample(samples []float32, from, to int) ([]float32, error) {
	resampler, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}

	output, err := resampler.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}

// encodeFrame packs samples as little-endian float32, the socket capture format
func encodeFrame(samples []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(samples) * 4)
	binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
