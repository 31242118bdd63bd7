package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/996BC/btccrawler/p2p/peer"
)

type RPCOptions struct {
	// URL of the node's JSON-RPC endpoint, like http://127.0.0.1:8332/
	URL      string
	User     string
	Password string
	Client   *http.Client
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type peerInfo struct {
	Addr    string `json:"addr"`
	Inbound bool   `json:"inbound"`
}

type rpcSeeds struct {
	opts RPCOptions
}

// NewRPC returns a Source asking a full node for the peers it is connected to (getpeerinfo)
func NewRPC(opts RPCOptions) Source {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &rpcSeeds{opts: opts}
}

func (r *rpcSeeds) Name() string {
	return "rpc"
}

func (r *rpcSeeds) InitialAddresses(ctx context.Context) ([]peer.Address, error) {
	var peers []peerInfo
	if err := r.call(ctx, "getpeerinfo", &peers); err != nil {
		return nil, err
	}

	var result []peer.Address
	for _, p := range peers {
		if addr, err := peer.ParseAddress(p.Addr); err == nil {
			result = append(result, addr)
		}
	}
	return normalize(result), nil
}

func (r *rpcSeeds) call(ctx context.Context, method string, result interface{}) error {
	body, _ := json.Marshal(&rpcRequest{
		JSONRPC: "1.0",
		ID:      "btccrawler",
		Method:  method,
		Params:  []interface{}{},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if r.opts.User != "" {
		req.SetBasicAuth(r.opts.User, r.opts.Password)
	}

	resp, err := r.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// bitcoind answers RPC errors with status 500 and an error object
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("rpc %s: %s", method, resp.Status)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: %s", method, resp.Status)
	}
	return json.Unmarshal(rpcResp.Result, result)
}
