package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/util"
)

// GatewayNode reads blobs through the script gateway. A storage node URL,
// when given, is itself a gateway endpoint; otherwise the default gateway
// serves the request.
type GatewayNode struct {
	client *gateway.Client
}

// NewGatewayNode creates a gateway-backed blob node
func NewGatewayNode(client *gateway.Client) *GatewayNode {
	return &GatewayNode{client: client}
}

// FetchContent implements Fetcher
func (n *GatewayNode) FetchContent(ctx context.Context, blobID, nodeURL string) (Content, error) {
	if strings.TrimSpace(blobID) == "" {
		return nil, fmt.Errorf("blob id cannot be empty: %w", util.ErrInvalidInput)
	}

	resp, err := n.client.DoAt(ctx, nodeURL, gateway.Request{
		Action:  "getFileContent",
		Payload: map[string]string{"fileId": blobID},
	})
	if errors.Is(err, gateway.ErrGatewayStatus) {
		util.DebugLog("Blob %s not available on node: %v", blobID, err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blob %s: %w", blobID, err)
	}

	return decodeContent(resp.Data), nil
}

// Delete implements Fetcher
func (n *GatewayNode) Delete(ctx context.Context, blobID, nodeURL string) error {
	if strings.TrimSpace(blobID) == "" {
		return nil
	}

	_, err := n.client.DoAt(ctx, nodeURL, gateway.Request{
		Action:  "deleteRemoteFile",
		Payload: map[string]string{"fileId": blobID},
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", blobID, err)
	}
	return nil
}
