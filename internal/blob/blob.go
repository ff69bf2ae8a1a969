// Package blob reads and deletes the large JSON payloads (insight bundles,
// extracted content) that live outside the metadata store.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// Content is a fetched payload: top-level JSON keys and their raw values.
type Content map[string]json.RawMessage

// Fetcher is the blob tier. FetchContent returns a nil map and no error
// when the blob does not exist.
type Fetcher interface {
	FetchContent(ctx context.Context, blobID, nodeURL string) (Content, error)
	Delete(ctx context.Context, blobID, nodeURL string) error
}

// decodeContent accepts a JSON object or a JSON string that holds one.
// Anything else yields nil.
func decodeContent(data []byte) Content {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		data = []byte(strings.TrimSpace(s))
	}
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	if len(c) == 0 {
		return nil
	}
	return c
}

// Router sends gs:// nodes to the GCS node and everything else to the
// gateway node.
type Router struct {
	Gateway Fetcher
	GCS     Fetcher
}

func (r *Router) pick(nodeURL string) Fetcher {
	if r.GCS != nil && strings.HasPrefix(nodeURL, gcsScheme) {
		return r.GCS
	}
	return r.Gateway
}

// FetchContent implements Fetcher
func (r *Router) FetchContent(ctx context.Context, blobID, nodeURL string) (Content, error) {
	return r.pick(nodeURL).FetchContent(ctx, blobID, nodeURL)
}

// Delete implements Fetcher
func (r *Router) Delete(ctx context.Context, blobID, nodeURL string) error {
	return r.pick(nodeURL).Delete(ctx, blobID, nodeURL)
}
