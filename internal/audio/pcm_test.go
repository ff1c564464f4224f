package audio

import (
	"bytes"
	"encoding/base64"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.999, -0.999, 1, -1, 0.0001, -0.0001}
	decoded, err := DecodeSamples(EncodeSamples(samples))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	const step = 1.0 / 32768.0
	for i := range samples {
		if diff := math.Abs(float64(decoded[i] - samples[i])); diff > step {
			t.Fatalf("sample %d drifted by %v (> one quantization step)", i, diff)
		}
	}
}

func TestEncodeSamplesClamps(t *testing.T) {
	decoded, err := DecodeSamples(EncodeSamples([]float32{2.5, -2.5}))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded[0] < 0.99 {
		t.Fatalf("expected positive overdrive clamped near 1, got %v", decoded[0])
	}
	if decoded[1] > -0.99 {
		t.Fatalf("expected negative overdrive clamped near -1, got %v", decoded[1])
	}
}

func TestDecodeSamplesOddLength(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	if _, err := DecodeSamples(encoded); err != ErrMalformedAudio {
		t.Fatalf("expected ErrMalformedAudio, got %v", err)
	}
}

func TestDecodeSamplesBadBase64(t *testing.T) {
	if _, err := DecodeSamples("not base64!!!"); err != ErrMalformedAudio {
		t.Fatalf("expected ErrMalformedAudio, got %v", err)
	}
}

func TestStripWAVHeaderMarkerOffsets(t *testing.T) {
	for _, offset := range []int{0, 36, 44, 99} {
		raw := make([]byte, 160)
		for i := range raw {
			raw[i] = 0xAA
		}
		copy(raw[offset:], "data")
		payload := StripWAVHeaderBytes(raw)
		want := raw[offset+8:]
		if !bytes.Equal(payload, want) {
			t.Fatalf("marker at %d: expected payload of %d bytes, got %d", offset, len(want), len(payload))
		}
	}
}

func TestStripWAVHeaderFallback(t *testing.T) {
	raw := make([]byte, 120)
	payload := StripWAVHeaderBytes(raw)
	if len(payload) != len(raw)-44 {
		t.Fatalf("expected fallback offset 44, got payload of %d bytes", len(payload))
	}
}

func TestStripWAVHeaderTruncated(t *testing.T) {
	if payload := StripWAVHeaderBytes(make([]byte, 10)); len(payload) != 0 {
		t.Fatalf("expected empty payload for truncated container, got %d bytes", len(payload))
	}
	if payload := StripWAVHeaderBytes(nil); len(payload) != 0 {
		t.Fatalf("expected empty payload for empty container, got %d bytes", len(payload))
	}
}

func TestStripWAVHeaderIgnoresMarkerPastWindow(t *testing.T) {
	raw := make([]byte, 200)
	copy(raw[120:], "data")
	payload := StripWAVHeaderBytes(raw)
	if len(payload) != len(raw)-44 {
		t.Fatalf("marker past scan window should fall back to offset 44, got %d bytes", len(payload))
	}
}

func TestEncodeWAVProducesDecodableContainer(t *testing.T) {
	samples := make([]int16, 2400)
	for i := range samples {
		samples[i] = int16(i % 512)
	}
	container := EncodeWAV(samples, 24000, 1)

	dec := wav.NewDecoder(bytes.NewReader(container))
	dec.ReadInfo()
	if !dec.IsValidFile() {
		t.Fatal("encoded container is not a valid WAV file")
	}
	if dec.SampleRate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", dec.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Fatalf("expected 1 channel, got %d", dec.NumChans)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode PCM: %v", err)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(buf.Data))
	}
	for i, s := range samples {
		if buf.Data[i] != int(s) {
			t.Fatalf("sample %d: expected %d, got %d", i, s, buf.Data[i])
		}
	}
}

// TestStripWAVHeaderOnForeignContainer checks the marker scan against a
// container written by an independent encoder rather than our own.
func TestStripWAVHeaderOnForeignContainer(t *testing.T) {
	samples := []int{10, -10, 300, -300, 5000, -5000}

	path := filepath.Join(t.TempDir(), "foreign.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, 24000, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 24000},
		SourceBitDepth: 16,
		Data:           samples,
	}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()

	container, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read container: %v", err)
	}

	payload := StripWAVHeaderBytes(container)
	decoded, err := DecodePCM16(payload)
	if err != nil {
		t.Fatalf("decode stripped payload: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i, want := range samples {
		got := int(decoded[i] * 32768.0)
		if got != want {
			t.Fatalf("sample %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestEncodeWAVBodySurvivesStrip(t *testing.T) {
	samples := []int16{1, -1, 32767, -32768, 0}
	container := EncodeWAV(samples, 24000, 1)
	payload := StripWAVHeaderBytes(container)
	decoded, err := DecodePCM16(payload)
	if err != nil {
		t.Fatalf("decode stripped payload: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples after strip, got %d", len(samples), len(decoded))
	}
}
