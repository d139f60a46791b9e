package switchbox

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/jpillora/requestlog"
)

// StatusServer optionally exposes a Root's registry as a JSON endpoint,
// generalized from share/server.go's http.Handler setup -- including its
// requestlog.Wrap debug-logging wrapper -- to a relay that has no end-user
// HTTP surface of its own but still benefits from an operator-facing
// status page (spec.md's supplemented features: the original source
// exposes switchbox state through its network console, which this port
// has no equivalent of; an HTTP status endpoint is the idiomatic Go
// substitute).
type StatusServer struct {
	ShutdownHelper

	root   *Root
	addr   string
	server *http.Server
}

// NewStatusServer creates a StatusServer that will serve root's snapshot
// as JSON on addr.
func NewStatusServer(logger Logger, root *Root, addr string) *StatusServer {
	s := &StatusServer{root: root, addr: addr}
	s.InitShutdownHelper(logger.Fork("status(%s)", addr), s)
	return s
}

// HandleOnceShutdown shuts the HTTP server down.
func (s *StatusServer) HandleOnceShutdown(completionErr error) error {
	if s.server != nil {
		err := s.server.Close()
		if completionErr == nil {
			completionErr = err
		}
	}
	return completionErr
}

// Start begins serving in the background.
func (s *StatusServer) Start(ctx context.Context) error {
	s.ShutdownOnContext(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)

	var h http.Handler = mux
	if s.GetLogLevel() >= LogLevelDebug {
		h = requestlog.Wrap(h)
	}

	s.server = &http.Server{Addr: s.addr, Handler: h}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return s.ELogErrorf("status listen failed: %s", err)
	}

	s.ILogf("status endpoint listening on %s", s.addr)
	go func() {
		if err := s.server.Serve(ln); err != nil && !s.IsStartedShutdown() {
			s.WLogf("status server stopped: %s", err)
		}
	}()
	return nil
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.root.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}
