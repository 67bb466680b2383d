// Package api serves a log store over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/klauspost/compress/gzhttp"

	"github.com/entrhq/transcripts/pkg/config"
	"github.com/entrhq/transcripts/pkg/logging"
	"github.com/entrhq/transcripts/pkg/logstore"
	"github.com/entrhq/transcripts/pkg/visitor"
)

// Handler is an httprouter handle that receives the request context explicitly.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request, p httprouter.Params)

// Middleware decorates a Handler.
type Middleware func(Handler) Handler

// Options wires a Server.
type Options struct {
	Config   *config.Config
	Store    logstore.LogStore
	Registry *visitor.Registry
	// Sweeper is optional. When set, it is given a chance to run on every request.
	Sweeper *logstore.Sweeper
	Logger  *logging.Logger
}

// Server routes API requests to the store.
type Server struct {
	cfg      *config.Config
	store    logstore.LogStore
	uploads  logstore.RemoteLogStore
	registry *visitor.Registry
	sweeper  *logstore.Sweeper
	logger   *logging.Logger
	router   *httprouter.Router
}

// New builds the server and installs its routes. Upload routes answer 503
// unless the store also implements logstore.RemoteLogStore.
func New(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		store:    opts.Store,
		registry: opts.Registry,
		sweeper:  opts.Sweeper,
		logger:   opts.Logger,
		router:   httprouter.New(),
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	if s.registry == nil {
		s.registry = visitor.NewRegistry(visitor.DefaultKey)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if remote, ok := opts.Store.(logstore.RemoteLogStore); ok {
		s.uploads = remote
	}
	s.installHandlers()
	return s
}

func (s *Server) installHandlers() {
	wrap := func(h Handler) httprouter.Handle {
		h = s.withSweep(h)
		h = s.withVisitor(h)
		return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
			h(r.Context(), w, r, p)
		}
	}

	s.router.GET("/api/config", wrap(s.getConfig))
	s.router.GET("/api/projects", wrap(s.listProjects))
	s.router.GET("/api/projects/:project/sessions", wrap(s.listSessions))
	s.router.GET("/api/sessions/:project/:session", wrap(s.parseSession))
	s.router.POST("/api/upload", wrap(s.upload))
	s.router.GET("/api/uploads", wrap(s.listUploads))
	s.router.GET("/api/uploads/:filename", wrap(s.readUpload))
	s.router.HEAD("/api/uploads/:filename", wrap(s.uploadExists))
	s.router.DELETE("/api/uploads/:filename", wrap(s.deleteUpload))

	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		s.logger.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, v)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Handler returns the root handler with response compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// withVisitor binds the browsing session's visitor id to the request
// context. Local-only deployments never mint ids.
func (s *Server) withVisitor(h Handler) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if s.uploads != nil {
			id, err := s.registry.Resolve(visitor.NewCookieSession(w, r, s.cfg.Server.CookieSecure))
			if err != nil {
				s.logger.Warnf("resolving visitor session: %v", err)
			} else {
				ctx = visitor.WithID(ctx, id)
			}
		}
		h(ctx, w, r, p)
	}
}

// withSweep lets the retention sweeper run opportunistically.
func (s *Server) withSweep(h Handler) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if s.sweeper != nil {
			s.sweeper.MaybeSweep(ctx)
		}
		h(ctx, w, r, p)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
