package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/franz/xeenaps-tracer/internal/util"
)

const gcsScheme = "gs://"

// maxBlobSize caps a single payload read.
const maxBlobSize = 32 << 20

// ErrTooLarge is returned for payloads over the read cap.
var ErrTooLarge = errors.New("blob exceeds size limit")

// GCSNode reads blobs stored as <prefix>/<blobID>.json in a bucket named by
// a gs://bucket/prefix node URL.
type GCSNode struct {
	client *storage.Client
}

// NewGCSNode wraps an existing storage client.
func NewGCSNode(client *storage.Client) *GCSNode {
	return &GCSNode{client: client}
}

// OpenGCSNode creates a storage client from application default credentials.
func OpenGCSNode(ctx context.Context) (*GCSNode, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSNode{client: client}, nil
}

// Close releases the storage client
func (n *GCSNode) Close() error {
	return n.client.Close()
}

// ParseNodeURL splits gs://bucket/prefix into bucket and prefix.
func ParseNodeURL(nodeURL string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(nodeURL, gcsScheme) {
		return "", "", fmt.Errorf("not a gs:// node url %q: %w", nodeURL, util.ErrInvalidInput)
	}
	u, err := url.Parse(nodeURL)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid node url %q: %w", nodeURL, util.ErrInvalidInput)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

func objectName(prefix, blobID string) string {
	name := blobID
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// FetchContent implements Fetcher
func (n *GCSNode) FetchContent(ctx context.Context, blobID, nodeURL string) (Content, error) {
	bucket, prefix, err := ParseNodeURL(nodeURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	name := objectName(prefix, blobID)
	r, err := n.client.Bucket(bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		util.DebugLog("Blob gs://%s/%s does not exist", bucket, name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, name, err)
	}
	defer r.Close()

	data, err := readLimited(r, maxBlobSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, name, err)
	}

	return decodeContent(data), nil
}

// readLimited reads r fully, failing instead of truncating past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return data, nil
}

// Delete implements Fetcher. Missing objects are not an error.
func (n *GCSNode) Delete(ctx context.Context, blobID, nodeURL string) error {
	if strings.TrimSpace(blobID) == "" {
		return nil
	}
	bucket, prefix, err := ParseNodeURL(nodeURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	name := objectName(prefix, blobID)
	if err := n.client.Bucket(bucket).Object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", bucket, name, err)
	}
	return nil
}

// List returns up to limit blob ids under a node. A limit <= 0 lists all.
func (n *GCSNode) List(ctx context.Context, nodeURL string, limit int) ([]string, error) {
	bucket, prefix, err := ParseNodeURL(nodeURL)
	if err != nil {
		return nil, err
	}

	q := &storage.Query{}
	if prefix != "" {
		q.Prefix = prefix + "/"
	}

	var ids []string
	it := n.client.Bucket(bucket).Objects(ctx, q)
	for limit <= 0 || len(ids) < limit {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", bucket, prefix, err)
		}
		id := strings.TrimSuffix(path.Base(attrs.Name), ".json")
		ids = append(ids, id)
	}
	return ids, nil
}
