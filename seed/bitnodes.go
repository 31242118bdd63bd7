package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/996BC/btccrawler/p2p/peer"
)

// BitnodesURL is the latest snapshot of the bitnodes.io public API
const BitnodesURL = "https://bitnodes.io/api/v1/snapshots/latest/"

// the snapshot body is a few MB
const maxSnapshotSize = 64 << 20

type bitnodesSnapshot struct {
	Timestamp    int64                      `json:"timestamp"`
	TotalNodes   int                        `json:"total_nodes"`
	LatestHeight int64                      `json:"latest_height"`
	Nodes        map[string]json.RawMessage `json:"nodes"`
}

type bitnodes struct {
	url    string
	client *http.Client
}

// NewBitnodes returns a Source reading a bitnodes.io snapshot, the node keys are ip:port.
// An empty url means BitnodesURL.
func NewBitnodes(url string, client *http.Client) Source {
	if url == "" {
		url = BitnodesURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &bitnodes{url: url, client: client}
}

func (b *bitnodes) Name() string {
	return "bitnodes"
}

func (b *bitnodes) InitialAddresses(ctx context.Context) ([]peer.Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bitnodes snapshot %s: %s", b.url, resp.Status)
	}

	var snapshot bitnodesSnapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSnapshotSize)).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode bitnodes snapshot failed:%v", err)
	}

	var result []peer.Address
	for key := range snapshot.Nodes {
		// IPv6 and onion keys do not parse
		if addr, err := peer.ParseAddress(key); err == nil {
			result = append(result, addr)
		}
	}
	logger.Debug("bitnodes snapshot at %d: %d nodes, %d IPv4\n",
		snapshot.Timestamp, len(snapshot.Nodes), len(result))
	return normalize(result), nil
}
