package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/tanq16/wirespeed/internal/engine"
	"github.com/tanq16/wirespeed/internal/fetch"
	"github.com/tanq16/wirespeed/internal/progress"
)

// Reporter renders per-tick speed lines and the end-of-run summary.
// It is the only place measurement data gets formatted.
type Reporter struct {
	out io.Writer
}

func NewReporter() *Reporter {
	return &Reporter{out: os.Stdout}
}

func (r *Reporter) Header(url string, size int64, connections int) {
	fmt.Fprintln(r.out, headerStyle.Render(fmt.Sprintf("Measuring %s", url)))
	fmt.Fprintln(r.out, detailStyle.Render(fmt.Sprintf("%s size %s %s %d connection(s)",
		StyleSymbols["bullet"], FormatBytes(uint64(size)), StyleSymbols["bullet"], connections)))
}

// Tick prints one speed reading, e.g.
// [2026-08-30 14:02:11] → 84.21 MB/s (82.6 MB over last window)
func (r *Reporter) Tick(sample progress.Sample) {
	stamp := debugStyle.Render(fmt.Sprintf("[%s]", sample.Time.Format(time.DateTime)))
	speed := infoStyle.Render(FormatSpeed(sample.BytesPerSec))
	total := debugStyle.Render(fmt.Sprintf("(%s total)", FormatBytes(uint64(sample.Total))))
	fmt.Fprintf(r.out, "%s %s %s %s\n", stamp, StyleSymbols["arrow"], speed, total)
}

// Summary prints the completion block for one run.
func (r *Reporter) Summary(result *engine.Result) {
	avg := float64(0)
	if secs := result.Elapsed.Seconds(); secs > 0 {
		avg = float64(result.Downloaded) / secs
	}
	width := TermWidth()
	if width > 60 {
		width = 60
	}
	line := strings.Repeat(StyleSymbols["hline"], width)
	fmt.Fprintln(r.out, debugStyle.Render(line))
	switch result.Outcome {
	case engine.AllChunksCompleted:
		fmt.Fprintln(r.out, successStyle.Render(fmt.Sprintf("%s Download complete", StyleSymbols["pass"])))
	case engine.CompletedWithFailures:
		fmt.Fprintln(r.out, errorStyle.Render(fmt.Sprintf("%s Completed with failed chunks", StyleSymbols["fail"])))
	case engine.Interrupted:
		fmt.Fprintln(r.out, warningStyle.Render(fmt.Sprintf("%s Interrupted before completion", StyleSymbols["warning"])))
	}
	fmt.Fprintln(r.out, detailStyle.Render(fmt.Sprintf("%s %s of %s in %s %s average %s",
		StyleSymbols["bullet"],
		FormatBytes(uint64(result.Downloaded)),
		FormatBytes(uint64(result.Length)),
		result.Elapsed.Round(time.Millisecond),
		StyleSymbols["bullet"],
		FormatSpeed(avg))))
	for _, state := range result.Chunks {
		if state.Status == fetch.StatusFailed {
			fmt.Fprintln(r.out, errorStyle.Render(fmt.Sprintf("  chunk %d [%d-%d): %v",
				state.Chunk.ID, state.Chunk.Start, state.Chunk.End, state.Err)))
		}
	}
}

// TermWidth reports the terminal width, defaulting to 80 when stdout
// is not a terminal.
func TermWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// FormatBytes converts bytes to human-readable format
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed renders a bytes/second figure
func FormatSpeed(bps float64) string {
	if bps <= 0 {
		return "0 B/s"
	}
	formatted := FormatBytes(uint64(bps))
	return formatted + "/s"
}
