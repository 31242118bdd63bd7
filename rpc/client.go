package rpc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/996BC/btccrawler/p2p/peer"
)

// Client reads the status server of a running crawler
type Client struct {
	base string
	hc   *http.Client
}

// NewClient accepts a base url like http://127.0.0.1:23666, the scheme may be omitted
func NewClient(base string) *Client {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Peers returns all the records the server knows, or only the successful ones
func (c *Client) Peers(ctx context.Context, successful bool) (*GetPeersResponse, error) {
	query := url.Values{}
	if successful {
		query.Set(GetSuccessfulParam, "1")
	}
	data := &GetPeersResponse{}
	if err := c.get(ctx, PeersV1Path, query, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) Peer(ctx context.Context, addr peer.Address) (*peer.Record, error) {
	query := url.Values{}
	query.Set(GetAddrParam, addr.String())
	rec := &peer.Record{}
	if err := c.get(ctx, QueryPeerV1Path, query, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, data interface{}) error {
	u := c.base + path
	if len(query) != 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response failed:%v", path, err)
	}
	result, err := ParseHTTPResponse(body, data)
	if err != nil {
		return err
	}
	return result.Err()
}
