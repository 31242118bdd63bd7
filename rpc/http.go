package rpc

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/996BC/btccrawler/crawler"
	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/utils"
)

var logger = utils.NewLogger("http")

const (
	// LocalHost "127.0.0.1"
	LocalHost = "127.0.0.1"
	// DefaultHTTPPort 23666
	DefaultHTTPPort = 23666

	version1Path = "/v1"
	metricsPath  = "/metrics"

	GetAddrParam       = "addr"
	GetSuccessfulParam = "successful"
	GetLimitParam      = "limit"
)

// ProgressSource is implemented by crawler.Crawler
type ProgressSource interface {
	Progress() *crawler.Summary
}

// PeerSource is implemented by the db stores
type PeerSource interface {
	Records() ([]*peer.Record, error)
	GetRecord(addr peer.Address) (*peer.Record, error)
}

type Config struct {
	Port     int
	Progress ProgressSource
	Peers    PeerSource
	// Metrics serves /metrics when not nil
	Metrics http.Handler
}

// Server is a http server provides the crawl status, the stored peers and the metrics;
// it only listens on 127.0.0.1
type Server struct {
	*http.Server
	progress ProgressSource
	peers    PeerSource
}

type HTTPHandlers = []struct {
	Path string
	F    func(http.ResponseWriter, *http.Request)
}

func NewServer(conf *Config) *Server {
	s := &Server{
		progress: conf.Progress,
		peers:    conf.Peers,
	}

	sMux := http.NewServeMux()
	for _, handler := range s.statusHandlers() {
		sMux.HandleFunc(handler.Path, handler.F)
	}
	for _, handler := range s.peerHandlers() {
		sMux.HandleFunc(handler.Path, handler.F)
	}
	if conf.Metrics != nil {
		sMux.Handle(metricsPath, conf.Metrics)
	}

	//default handler
	sMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	port := conf.Port
	if port == 0 {
		port = DefaultHTTPPort
	}
	s.Server = &http.Server{
		Addr:    LocalHost + ":" + strconv.Itoa(port),
		Handler: sMux,
	}
	return s
}

// Start binds the port and serves in background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.Serve(ln); err != http.ErrServerClosed {
			logger.Error("Http server serve failed:%v\n", err)
		}
	}()
	logger.Info("status server listening on %s\n", s.Addr)
	return nil
}

func (s *Server) Stop() {
	if err := s.Shutdown(context.Background()); err != nil {
		logger.Warn("HTTP server shutdown err:%v\n", err)
	}
}
