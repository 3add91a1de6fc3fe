package audio

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// blockSamples bounds how many samples are held in memory at once.
const blockSamples = 8192

// Levels summarizes the loudness of a WAV data chunk across all channels.
type Levels struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
	Duration time.Duration
}

// Silent reports whether both RMS and peak stay under the threshold. The peak
// gets 6 dB of headroom so isolated clicks do not count as speech.
func (l Levels) Silent(thresholdDBFS float64) bool {
	if l.Samples == 0 {
		return true
	}
	if math.IsInf(l.RMSdBFS, -1) && math.IsInf(l.PeakdBFS, -1) {
		return true
	}
	return l.RMSdBFS <= thresholdDBFS && l.PeakdBFS <= thresholdDBFS+6
}

func IsSilentWAV(path string, thresholdDBFS float64) (bool, Levels, error) {
	levels, err := AnalyzeWAV(path)
	if err != nil {
		return false, Levels{}, err
	}
	return levels.Silent(thresholdDBFS), levels, nil
}

func AnalyzeWAV(path string) (Levels, error) {
	f, err := os.Open(path)
	if err != nil {
		return Levels{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	return analyze(f)
}

func analyze(r io.ReadSeeker) (Levels, error) {
	info, err := readWAVInfo(r)
	if err != nil {
		return Levels{}, err
	}
	if err := info.validate(); err != nil {
		return Levels{}, err
	}

	if _, err := r.Seek(info.DataOffset, io.SeekStart); err != nil {
		return Levels{}, fmt.Errorf("seek wav data offset: %w", err)
	}

	width := info.bytesPerSample()
	block := make([]byte, width*blockSamples)
	var (
		peak       float64
		sumSquares float64
		samples    int64
	)
	for left := int64(info.DataSize); left >= int64(width); {
		n := int64(len(block))
		if left < n {
			n = left - left%int64(width)
		}
		chunk := block[:n]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return Levels{}, fmt.Errorf("read wav data: %w", err)
		}
		for i := 0; i+width <= len(chunk); i += width {
			value := decodeSample(chunk[i:i+width], info)
			peak = math.Max(peak, math.Abs(value))
			sumSquares += value * value
			samples++
		}
		left -= n
	}

	levels := Levels{Samples: samples, Duration: info.Duration()}
	if samples == 0 {
		levels.RMSdBFS = math.Inf(-1)
		levels.PeakdBFS = math.Inf(-1)
		return levels, nil
	}

	levels.RMSdBFS = toDBFS(math.Sqrt(sumSquares / float64(samples)))
	levels.PeakdBFS = toDBFS(peak)
	return levels, nil
}

func toDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}

func mathFloat32(bits uint32) float32 { return math.Float32frombits(bits) }

func mathFloat64(bits uint64) float64 { return math.Float64frombits(bits) }
