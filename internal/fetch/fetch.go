package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tanq16/wirespeed/internal/plan"
	"github.com/tanq16/wirespeed/internal/progress"
	"github.com/tanq16/wirespeed/internal/utils"
)

var (
	// ErrBadStatus means the server answered with an unexpected
	// status, typically ignoring a Range header.
	ErrBadStatus = errors.New("unexpected response status")

	// ErrShortChunk means the stream ended before delivering the
	// chunk's full byte range.
	ErrShortChunk = errors.New("chunk under-delivered bytes")
)

// Status is the terminal lifecycle of one chunk transfer.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in-progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// State is the per-chunk transfer record. It is written only by the
// fetcher that owns the chunk and read by others after that fetcher
// has returned.
type State struct {
	Chunk      plan.Chunk
	Downloaded int64
	Status     Status
	Err        error
}

// Fetcher streams chunks of a single resource, reporting every read's
// length to the shared counter as it arrives. Bytes are discarded;
// only their count matters.
type Fetcher struct {
	url     string
	client  utils.HTTPDoer
	counter *progress.Counter
	ranged  bool
	bufSize int
}

func NewFetcher(url string, client utils.HTTPDoer, counter *progress.Counter, ranged bool) *Fetcher {
	return &Fetcher{
		url:     url,
		client:  client,
		counter: counter,
		ranged:  ranged,
		bufSize: utils.DefaultBufferSize,
	}
}

// Fetch transfers one chunk and leaves state in a terminal status.
// There is no retry here; state records the error so a caller could
// add one.
func (f *Fetcher) Fetch(ctx context.Context, state *State) error {
	log := utils.GetLogger("fetch")
	state.Status = StatusInProgress
	err := f.fetch(ctx, state)
	if err != nil {
		state.Status = StatusFailed
		state.Err = err
		log.Warn().Int("chunk", state.Chunk.ID).Err(err).Msg("Chunk transfer failed")
		return err
	}
	state.Status = StatusCompleted
	log.Debug().Int("chunk", state.Chunk.ID).Int64("bytes", state.Downloaded).Msg("Chunk completed")
	return nil
}

func (f *Fetcher) fetch(ctx context.Context, state *State) error {
	req, err := http.NewRequestWithContext(ctx, "GET", f.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Connection", "keep-alive")
	if f.ranged {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", state.Chunk.Start, state.Chunk.End-1))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if f.ranged {
		if resp.StatusCode != http.StatusPartialContent {
			return fmt.Errorf("%w: got %d, want 206", ErrBadStatus, resp.StatusCode)
		}
		if resp.Header.Get("Content-Range") == "" {
			return fmt.Errorf("%w: missing Content-Range header", ErrBadStatus)
		}
	} else if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: got %d, want 200", ErrBadStatus, resp.StatusCode)
	}

	expected := state.Chunk.Length()
	buffer := make([]byte, f.bufSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			state.Downloaded += int64(bytesRead)
			f.counter.Add(int64(bytesRead))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return readErr
		}
	}
	if state.Downloaded != expected {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrShortChunk, expected, state.Downloaded)
	}
	return nil
}
