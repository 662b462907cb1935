package scene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/unklstewy/ads-livemap/pkg/backoff"
)

// maxDocumentSize bounds how much of a remote document is read.
const maxDocumentSize = 32 << 20

// ErrNotFound is returned when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Download fetches a document over HTTP, retrying transient failures
// according to policy. A 404 is not retried. Locations without an http or
// https scheme are read from the local filesystem.
func Download(ctx context.Context, client *http.Client, location string, policy backoff.Policy) ([]byte, error) {
	if !isHTTP(location) {
		data, err := os.ReadFile(strings.TrimPrefix(location, "file://"))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", location, err)
		}
		return data, nil
	}

	if client == nil {
		client = http.DefaultClient
	}

	return backoff.RetryResult(ctx, policy, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", location, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, location))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s returned status %d", location, resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", location, err)
		}
		return data, nil
	})
}

// Fetch downloads and parses a scene document.
func Fetch(ctx context.Context, client *http.Client, location string, policy backoff.Policy) (*Document, error) {
	data, err := Download(ctx, client, location, policy)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse scene %s: %w", location, err)
	}
	return doc, nil
}

func isHTTP(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
