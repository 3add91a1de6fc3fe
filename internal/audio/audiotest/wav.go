// Package audiotest builds small WAV fixtures for tests.
package audiotest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// PCM16 encodes mono or interleaved samples as a 16-bit PCM WAV file.
func PCM16(samples []int16, sampleRate, channels int) []byte {
	const bytesPerSample = 2
	dataSize := len(samples) * bytesPerSample

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(4+(8+16)+(8+dataSize)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	_ = binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// Silence returns n zero samples at 16 kHz mono.
func Silence(n int) []byte {
	return PCM16(make([]int16, n), 16000, 1)
}

// Tone returns n samples of a 440 Hz sine at quarter scale, 16 kHz mono.
func Tone(n int) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(0.25 * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000.0))
	}
	return PCM16(samples, 16000, 1)
}
