package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/fmueller/voxscribe/internal/whisper"
)

type stopFunc func()

// jobLabel names what the spinner is waiting on, e.g. "Translating memo.m4a".
func jobLabel(task whisper.Task, audioPath string) string {
	verb := "Transcribing"
	if task == whisper.TaskTranslate {
		verb = "Translating"
	}
	return fmt.Sprintf("%s %s", verb, filepath.Base(audioPath))
}

// startSpinner draws an indeterminate spinner with the elapsed time on w
// until the returned func is called. Whisper reports no progress we could
// turn into a percentage.
func startSpinner(enabled bool, w io.Writer, description string) stopFunc {
	if !enabled || w == nil {
		return func() {}
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(150 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}
}
