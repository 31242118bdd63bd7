package rpc

import (
	"net/http"
	"strconv"

	"github.com/996BC/btccrawler/p2p/peer"
)

var (
	// PeersV1Path GET /v1/peers
	PeersV1Path = version1Path + "/peers"
	// QueryPeerV1Path GET /v1/peer/query
	QueryPeerV1Path = version1Path + "/peer/query"
)

func (s *Server) peerHandlers() HTTPHandlers {
	return HTTPHandlers{
		{PeersV1Path, s.getPeers},
		{QueryPeerV1Path, s.getPeer},
	}
}

/*
GET /v1/peers?successful=1&limit=...
*/
type GetPeersResponse struct {
	Total   int            `json:"total"`
	Records []*peer.Record `json:"records"`
}

func (s *Server) getPeers(w http.ResponseWriter, r *http.Request) {
	if s.peers == nil {
		failedResponse("No store attached", w)
		return
	}

	query := r.URL.Query()
	onlySuccessful := query.Get(GetSuccessfulParam) == "1"
	limit := 0
	if l := query.Get(GetLimitParam); l != "" {
		var err error
		if limit, err = strconv.Atoi(l); err != nil || limit < 0 {
			badRequestResponse(GetLimitParam, w)
			return
		}
	}

	records, err := s.peers.Records()
	if err != nil {
		logger.Warn("list records failed:%v\n", err)
		failedResponse("Query store failed", w)
		return
	}

	resp := &GetPeersResponse{Records: []*peer.Record{}}
	for _, rec := range records {
		if onlySuccessful && !rec.HandshakeSucceeded {
			continue
		}
		resp.Total++
		if limit == 0 || len(resp.Records) < limit {
			resp.Records = append(resp.Records, rec)
		}
	}
	successWithDataResponse(resp, w)
}

/*
GET /v1/peer/query?addr=ip:port
*/
func (s *Server) getPeer(w http.ResponseWriter, r *http.Request) {
	if s.peers == nil {
		failedResponse("No store attached", w)
		return
	}

	addr, err := peer.ParseAddress(r.URL.Query().Get(GetAddrParam))
	if err != nil {
		badRequestResponse(GetAddrParam, w)
		return
	}

	rec, err := s.peers.GetRecord(addr)
	if err != nil {
		failedResponse("Not found peer", w)
		return
	}
	successWithDataResponse(rec, w)
}
