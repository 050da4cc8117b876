// Package audio holds the WAV helpers shared by the speech providers.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	SilentSampleRate = 16000
	SilentDuration   = 3 * time.Second
)

// PCMToWAV wraps raw little-endian PCM data in a 44-byte WAV header.
func PCMToWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	dataLen := len(pcm)
	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)
	return buf.Bytes()
}

// SilentWAV returns mono 16-bit silence of the given length.
func SilentWAV(d time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = SilentSampleRate
	}
	samples := int(d.Seconds() * float64(sampleRate))
	return PCMToWAV(make([]byte, samples*2), sampleRate, 1, 2)
}

// Format is the header information of a WAV file.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int
	Duration      time.Duration
}

// ReadFormat parses the canonical 44-byte header written by PCMToWAV.
func ReadFormat(wav []byte) (Format, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Format{}, errors.New("not a wav file")
	}
	f := Format{
		Channels:      int(binary.LittleEndian.Uint16(wav[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(wav[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(wav[34:36])),
		DataBytes:     int(binary.LittleEndian.Uint32(wav[40:44])),
	}
	if bps := f.SampleRate * f.Channels * f.BitsPerSample / 8; bps > 0 {
		f.Duration = time.Duration(float64(f.DataBytes) / float64(bps) * float64(time.Second))
	}
	return f, nil
}

// WriteWithTranscript writes data to dir/name and the spoken text to a .txt
// file next to it. It returns the audio path.
func WriteWithTranscript(dir, name string, data []byte, transcript string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := os.WriteFile(TranscriptPath(path), []byte(transcript), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// TranscriptPath maps foo/bar.wav to foo/bar.txt.
func TranscriptPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".txt"
}
