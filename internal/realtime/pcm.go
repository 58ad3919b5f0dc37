package realtime

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// InputMIMEType is the MIME type of captured audio sent upstream at sampleRate
func InputMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// EncodePCM16 converts normalized float samples to little-endian 16-bit PCM.
// Samples are scaled by 32768, rounded and clamped to the int16 range. NaN
// encodes as silence.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := math.Round(float64(f) * 32768)
		if math.IsNaN(v) {
			v = 0
		} else if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// EncodeFrame returns the base64 PCM payload for one captured frame
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// DecodePCM16 converts little-endian 16-bit PCM to floats in [-1, 1).
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out
}

// DecodeChunk decodes one base64 PCM chunk received from the assistant
func DecodeChunk(payload string) ([]float32, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio chunk: %w", err)
	}
	return DecodePCM16(data), nil
}
