package rpc

import (
	"net/http"

	"github.com/996BC/btccrawler/crawler"
)

var (
	// StatusV1Path GET /v1/status
	StatusV1Path = version1Path + "/status"
)

func (s *Server) statusHandlers() HTTPHandlers {
	return HTTPHandlers{
		{StatusV1Path, s.getStatus},
	}
}

/*
GET /v1/status
*/
type GetStatusResponse struct {
	Running bool             `json:"running"`
	Summary *crawler.Summary `json:"summary"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeResponse(w, CodeBadRequest, "Only GET is served", nil)
		return
	}
	if s.progress == nil {
		failedResponse("No crawler attached", w)
		return
	}

	sum := s.progress.Progress()
	if sum == nil {
		failedResponse("Crawl not started", w)
		return
	}

	successWithDataResponse(&GetStatusResponse{
		Running: sum.Running(),
		Summary: sum,
	}, w)
}
