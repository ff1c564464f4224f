package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
)

// ErrMalformedAudio is returned when a payload cannot be interpreted as
// PCM16 audio.
var ErrMalformedAudio = errors.New("malformed audio payload")

// wavHeaderSize is the minimal canonical RIFF/WAVE header length, used as
// the fallback payload offset when no data chunk marker is found.
const wavHeaderSize = 44

// dataMarkerScanWindow bounds how far into a container the data chunk
// marker is searched for.
const dataMarkerScanWindow = 100

// DecodeSamples converts base64-encoded PCM16 little-endian audio into
// normalized float32 samples in [-1, 1).
func DecodeSamples(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformedAudio
	}
	return DecodePCM16(raw)
}

// DecodePCM16 converts raw PCM16 little-endian bytes into normalized
// float32 samples. The byte length must be even.
func DecodePCM16(raw []byte) ([]float32, error) {
	if len(raw)%2 != 0 {
		return nil, ErrMalformedAudio
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// DecodeInt16 converts base64-encoded PCM16 little-endian audio into raw
// int16 samples, the form audio output devices consume.
func DecodeInt16(encoded string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformedAudio
	}
	if len(raw)%2 != 0 {
		return nil, ErrMalformedAudio
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, nil
}

// EncodeSamples converts normalized float samples into base64-encoded
// PCM16 little-endian audio. Samples are clamped to [-1, 1] before
// quantization, so a decode/encode round trip stays within one
// quantization step of the original signal.
func EncodeSamples(samples []float32) string {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// StripWAVHeader removes the container header from a base64-encoded WAV
// payload and returns the base64-encoded PCM body. The data chunk marker
// is searched for within the first 100 bytes; the payload starts 8 bytes
// past it (marker plus declared length). Without a marker the canonical
// 44-byte header is assumed. Truncated containers yield an empty payload
// rather than an error.
func StripWAVHeader(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedAudio
	}
	return base64.StdEncoding.EncodeToString(StripWAVHeaderBytes(raw)), nil
}

// StripWAVHeaderBytes is the raw-byte variant of StripWAVHeader.
func StripWAVHeaderBytes(raw []byte) []byte {
	marker := []byte("data")
	// A marker may start as late as byte 99, so the window extends just
	// far enough to hold it.
	window := raw
	if limit := dataMarkerScanWindow + len(marker) - 1; len(window) > limit {
		window = window[:limit]
	}
	offset := wavHeaderSize
	if i := bytes.Index(window, marker); i >= 0 && i < dataMarkerScanWindow {
		offset = i + 8
	}
	if offset >= len(raw) {
		return nil
	}
	return raw[offset:]
}

// EncodeWAV wraps PCM16 samples in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(samples []int16, sampleRate, channels int) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}

	const bytesPerSample = 2
	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(pcm)+36))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM format
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*channels*bytesPerSample))
	binary.LittleEndian.PutUint16(header[32:34], uint16(channels*bytesPerSample))
	binary.LittleEndian.PutUint16(header[34:36], 16) // bits per sample
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	out := make([]byte, 0, len(header)+len(pcm))
	out = append(out, header...)
	out = append(out, pcm...)
	return out
}
