package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tanq16/wirespeed/internal/utils"
)

var (
	// ErrUnreachable means the target could not be connected to or
	// resolved; nothing was measured.
	ErrUnreachable = errors.New("target is unreachable")

	// ErrUnknownLength means the server did not report a usable
	// content length, so the resource cannot be partitioned.
	ErrUnknownLength = errors.New("content length could not be determined")
)

// Resource describes the probed target. SupportsRanges false is not an
// error; the engine falls back to a single-stream transfer.
type Resource struct {
	URL            string
	Length         int64
	SupportsRanges bool
}

// Probe issues a HEAD request against link and reads the declared
// content length and range-request support. Redirects via the
// Location header are followed up to maxRedirects deep.
func Probe(ctx context.Context, link string, client utils.HTTPDoer) (*Resource, error) {
	return probe(ctx, link, client, maxRedirects)
}

const maxRedirects = 5

func probe(ctx context.Context, link string, client utils.HTTPDoer, redirectsLeft int) (*Resource, error) {
	log := utils.GetLogger("probe")
	parsedURL, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, "HEAD", link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
		if location := resp.Header.Get("Location"); location != "" {
			if redirectsLeft <= 0 {
				return nil, fmt.Errorf("%w: too many redirects", ErrUnreachable)
			}
			log.Debug().Str("location", location).Msg("Following redirect")
			return probe(ctx, location, client, redirectsLeft-1)
		}
	} else if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: URL not found (404)", ErrUnknownLength)
	} else if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: server returned error %d", ErrUnknownLength, resp.StatusCode)
	}

	contentLength := resp.Header.Get("Content-Length")
	if contentLength == "" {
		return nil, fmt.Errorf("%w: no Content-Length header", ErrUnknownLength)
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad Content-Length %q", ErrUnknownLength, contentLength)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: server reported size %d", ErrUnknownLength, size)
	}

	resource := &Resource{
		URL:            link,
		Length:         size,
		SupportsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
	}
	log.Debug().Int64("size", resource.Length).Bool("ranges", resource.SupportsRanges).Msg("Probed target")
	return resource, nil
}
