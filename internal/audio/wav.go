package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const (
	formatPCM   uint16 = 1
	formatFloat uint16 = 3

	// fmtBodySize is the part of the fmt chunk the analyzer reads; extension
	// bytes after it are skipped.
	fmtBodySize = 16
)

// WAVInfo describes the fmt and data chunks of a RIFF/WAVE stream.
type WAVInfo struct {
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataOffset    int64
	DataSize      uint32
}

func (w WAVInfo) bytesPerSample() int {
	return int(w.BitsPerSample / 8)
}

// Duration is derived from the data chunk size, not from any header field.
func (w WAVInfo) Duration() time.Duration {
	frame := w.bytesPerSample() * int(w.Channels)
	if frame <= 0 || w.SampleRate == 0 {
		return 0
	}
	frames := int64(w.DataSize) / int64(frame)
	return time.Duration(frames) * time.Second / time.Duration(w.SampleRate)
}

func (w WAVInfo) validate() error {
	switch w.Format {
	case formatPCM:
		switch w.BitsPerSample {
		case 8, 16, 24, 32:
			return nil
		}
	case formatFloat:
		switch w.BitsPerSample {
		case 32, 64:
			return nil
		}
	}
	return ErrUnsupportedWAV
}

// readWAVInfo walks the chunk list. Chunk sizes come from an untrusted header,
// so they are checked against the stream length before anything is read. A
// data chunk that claims more bytes than the stream holds is clamped, which is
// what streamed recordings with a placeholder size need.
func readWAVInfo(r io.ReadSeeker) (WAVInfo, error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return WAVInfo{}, fmt.Errorf("measure wav: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return WAVInfo{}, fmt.Errorf("rewind wav: %w", err)
	}

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return WAVInfo{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return WAVInfo{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(riff[:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVInfo{}, ErrInvalidWAV
	}

	var (
		info    WAVInfo
		hasFmt  bool
		hasData bool
	)

	for {
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return WAVInfo{}, fmt.Errorf("read wav chunk header: %w", err)
		}

		id := string(header[:4])
		size := binary.LittleEndian.Uint32(header[4:8])
		padded := int64(size) + int64(size%2)

		offset, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return WAVInfo{}, fmt.Errorf("locate wav chunk %s: %w", id, err)
		}
		remaining := end - offset

		switch id {
		case "fmt ":
			if size < fmtBodySize || int64(size) > remaining {
				return WAVInfo{}, ErrInvalidWAV
			}
			var body [fmtBodySize]byte
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return WAVInfo{}, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			info.Format = binary.LittleEndian.Uint16(body[0:2])
			info.Channels = binary.LittleEndian.Uint16(body[2:4])
			info.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			info.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			hasFmt = true
			if _, err := r.Seek(padded-fmtBodySize, io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("seek wav fmt chunk: %w", err)
			}
		case "data":
			info.DataOffset = offset
			info.DataSize = size
			if int64(size) > remaining {
				info.DataSize = uint32(remaining)
			}
			hasData = true
			if _, err := r.Seek(min(padded, remaining), io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("seek wav data chunk: %w", err)
			}
		default:
			if padded > remaining {
				padded = remaining
			}
			if _, err := r.Seek(padded, io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("seek wav chunk %s: %w", id, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return WAVInfo{}, ErrInvalidWAV
	}
	return info, nil
}

func decodeSample(sample []byte, info WAVInfo) float64 {
	if info.Format == formatFloat {
		if info.BitsPerSample == 64 {
			return mathFloat64(binary.LittleEndian.Uint64(sample))
		}
		return float64(mathFloat32(binary.LittleEndian.Uint32(sample)))
	}

	switch info.BitsPerSample {
	case 8:
		return (float64(sample[0]) - 128.0) / 128.0
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(sample))) / 32768.0
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0
	default:
		return float64(int32(binary.LittleEndian.Uint32(sample))) / 2147483648.0
	}
}
