// Package server delivers rendered views over HTTP and websockets.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/ecoguard/internal/errors"
	"codeberg.org/mutker/ecoguard/internal/logger"
	"codeberg.org/mutker/ecoguard/internal/metrics"
	"codeberg.org/mutker/ecoguard/internal/store"
	"codeberg.org/mutker/ecoguard/internal/transport"
	"codeberg.org/mutker/ecoguard/internal/view"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/urfave/negroni"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// StatusFunc reports the broker session state.
type StatusFunc func() transport.State

type Options struct {
	Addr    string
	Log     logger.Logger
	Metrics metrics.Collector
	Status  StatusFunc
}

// Server exposes the presentation store. It only reads from the store.
type Server struct {
	store   *store.Store
	hub     *Hub
	log     logger.Logger
	metrics metrics.Collector
	status  StatusFunc
	addr    string

	handler  http.Handler
	upgrader websocket.Upgrader
}

func New(st *store.Store, hub *Hub, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics, _ = metrics.NewService(metrics.Config{Enabled: false})
	}
	if opts.Status == nil {
		opts.Status = func() transport.State { return transport.Disconnected }
	}

	s := &Server{
		store:   st,
		hub:     hub,
		log:     opts.Log.With("server"),
		metrics: opts.Metrics,
		status:  opts.Status,
		addr:    opts.Addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/", s.page(view.WideName)).Methods(http.MethodGet)
	router.HandleFunc("/mobile", s.page(view.CompactName)).Methods(http.MethodGet)
	router.HandleFunc("/api/view/{name}", s.viewJSON).Methods(http.MethodGet)
	router.HandleFunc("/api/stats", s.stats).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	router.HandleFunc("/ws/{name}", s.stream).Methods(http.MethodGet)

	recovery := negroni.NewRecovery()
	recovery.PrintStack = false
	recovery.Logger = printfLogger{log: s.log}

	n := negroni.New()
	n.Use(recovery)
	n.Use(requestLogger(s.log))
	n.UseHandler(router)
	s.handler = n

	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and disconnects websocket clients.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errFactory.Wrap(ErrServeHTTP, err)
	}

	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errFactory := errors.New()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		return errFactory.Wrap(ErrServeHTTP, err)
	case <-ctx.Done():
	}

	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrShutdown, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errFactory.Wrap(ErrServeHTTP, err)
	}

	return nil
}

func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, _ := view.Lookup(name)
		if err := renderPage(w, b, s.store.Get()); err != nil {
			s.log.ErrorWithCode(errors.New().Wrap(ErrRenderPage, err)).Str("view", name).Send()
		}
	}
}

func (s *Server) viewJSON(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	b, ok := view.Lookup(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New().WithData(ErrUnknownView, name))
		return
	}

	s.writeJSON(w, http.StatusOK, b.Render(s.store.Get()))
}

type healthResponse struct {
	State   string `json:"state"`
	Version uint64 `json:"version"`
	Turbine string `json:"turbine_id"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	st := s.status()
	f := s.store.Get()

	code := http.StatusOK
	if st != transport.Connected {
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, healthResponse{
		State:   st.String(),
		Version: s.store.Version(),
		Turbine: f.TurbineID,
	})
}

type statsResponse struct {
	Metrics metrics.Snapshot `json:"metrics"`
	Clients int              `json:"clients"`
	Version uint64           `json:"version"`
	Views   []string         `json:"views"`
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{
		Metrics: s.metrics.Snapshot(),
		Clients: s.hub.Clients(),
		Version: s.store.Version(),
		Views:   view.Names(),
	})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	b, ok := view.Lookup(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New().WithData(ErrUnknownView, name))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.log.ErrorWithCode(errors.New().Wrap(ErrUpgradeWS, err)).Send()
		return
	}

	s.hub.serve(conn, b, s.store.Get())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrInternal
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Code: string(code)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("Failed to write response")
	}
}
