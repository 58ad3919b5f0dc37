package realtime

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodePCM16Clamping(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"full scale positive clamps", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"above range clamps", 1.5, 32767},
		{"below range clamps", -2.0, -32768},
		{"silence", 0, 0},
		{"half scale", 0.5, 16384},
		{"rounds to nearest", 0.25 / 32768 * 3, 1},
		{"nan is silence", float32(math.NaN()), 0},
		{"positive infinity clamps", float32(math.Inf(1)), 32767},
		{"negative infinity clamps", float32(math.Inf(-1)), -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := EncodePCM16([]float32{tt.sample})
			if len(out) != 2 {
				t.Fatalf("Expected 2 bytes, got %d", len(out))
			}
			got := int16(binary.LittleEndian.Uint16(out))
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestEncodeFrameLength(t *testing.T) {
	frame := make([]float32, 4096)
	payload := EncodeFrame(frame)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("Expected valid base64, got %v", err)
	}
	if len(data) != 8192 {
		t.Errorf("Expected 8192 bytes for 4096 samples, got %d", len(data))
	}
}

func TestDecodeChunk(t *testing.T) {
	raw := make([]byte, 6)
	binary.LittleEndian.PutUint16(raw[0:], 0x8000)
	binary.LittleEndian.PutUint16(raw[2:], 0)
	binary.LittleEndian.PutUint16(raw[4:], uint16(int16(16384)))

	samples, err := DecodeChunk(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []float32{-1, 0, 0.5}
	if len(samples) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(samples))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, want[i], samples[i])
		}
	}
}

func TestDecodeChunkInvalid(t *testing.T) {
	if _, err := DecodeChunk("not base64!!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}

func TestPCMRoundTripWithinOneStep(t *testing.T) {
	in := []float32{-0.75, -0.1, 0, 0.3, 0.99}
	out := DecodePCM16(EncodePCM16(in))

	for i := range in {
		diff := in[i] - out[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 1.0/32768 {
			t.Errorf("Sample %d drifted by %v", i, diff)
		}
	}
}

func TestInputMIMEType(t *testing.T) {
	if got := InputMIMEType(16000); got != "audio/pcm;rate=16000" {
		t.Errorf("Expected audio/pcm;rate=16000, got %s", got)
	}
}
