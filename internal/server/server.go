package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"griddata/internal/config"
	"griddata/internal/endpoint"
	"griddata/internal/serverdata"
	"griddata/internal/transport"
)

// Server is the caching gateway: it accepts server-data calls over HTTP
// and resolves them through a ServerData instance, so identical and
// batchable calls from any number of clients collapse into single
// upstream RPCs.
type Server struct {
	cfg        *config.Config
	data       *serverdata.ServerData
	wsCallers  []*transport.WSCaller
	batchSet   map[string]bool
	httpServer *http.Server
	logger     zerolog.Logger
}

// New creates a new Server
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	var wsCallers []*transport.WSCaller

	upstreams := make([]transport.Upstream, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		var c endpoint.Caller
		if u.WSURL != "" && (u.PreferWS || u.RPCURL == "") {
			ws := transport.NewWSCaller(u.WSURL, logger)
			wsCallers = append(wsCallers, ws)
			c = ws
			logger.Info().Str("upstream", u.Name).Str("url", u.WSURL).Msg("using WebSocket upstream")
		} else {
			c = transport.NewHTTPCaller(u.RPCURL, cfg.GetRequestTimeoutDuration(), logger)
			logger.Info().Str("upstream", u.Name).Str("url", u.RPCURL).Msg("using HTTP upstream")
		}
		upstreams = append(upstreams, transport.Upstream{
			Name:     u.Name,
			Caller:   c,
			Fallback: u.Role == config.RoleFallback,
		})
	}

	var caller endpoint.Caller
	if len(upstreams) == 1 {
		caller = upstreams[0].Caller
	} else {
		caller = transport.NewFailoverCaller(upstreams, logger)
	}

	if cfg.Memo != nil && cfg.Memo.Enabled {
		memo, err := transport.NewMemo(caller, cfg.Memo.Size, cfg.Memo.GetMemoTTLDuration(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create memo: %w", err)
		}
		caller = memo
		logger.Info().
			Int("size", cfg.Memo.Size).
			Int("ttl", cfg.Memo.TTL).
			Msg("memo enabled")
	} else {
		logger.Info().Msg("memo disabled")
	}

	batchSet := make(map[string]bool, len(cfg.BatchMethods))
	for _, bm := range cfg.BatchMethods {
		batchSet[bm] = true
	}
	if len(batchSet) > 0 {
		logger.Info().Strs("methods", cfg.BatchMethods).Msg("batching enabled")
	}

	data := serverdata.New(caller, serverdata.Options{
		Logger: logger,
		OnLoadStart: func() {
			logger.Debug().Msg("loading episode started")
		},
	})

	return &Server{
		cfg:       cfg,
		data:      data,
		wsCallers: wsCallers,
		batchSet:  batchSet,
		logger:    logger.With().Str("component", "server").Logger(),
	}, nil
}

// Start connects the upstreams and begins serving
func (s *Server) Start() error {
	for _, ws := range s.wsCallers {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetRequestTimeoutDuration())
		err := ws.Connect(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect upstream: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/call", s.handleCall)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", addr).Msg("listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	for _, ws := range s.wsCallers {
		ws.Close()
	}
	return err
}

// callRequest is the gateway wire format
type callRequest struct {
	Model  string `json:"model"`
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

type callResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleCall resolves one call through the cache. Methods listed in
// batchMethods are routed through the batch path with args[0] as key, so
// concurrent clients asking for sibling keys share one upstream RPC.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, callResponse{Error: "invalid request body"})
		return
	}
	if req.Model == "" || req.Method == "" {
		s.writeResponse(w, http.StatusBadRequest, callResponse{Error: "model and method are required"})
		return
	}

	var value any
	var err error
	if s.batchSet[req.Model+"."+req.Method] && len(req.Args) >= 1 {
		value, err = s.data.BatchFetch(r.Context(), req.Model, req.Method, req.Args[0])
	} else {
		value, err = s.data.Fetch(r.Context(), req.Model, req.Method, req.Args)
	}

	if err != nil {
		s.logger.Debug().
			Err(err).
			Str("model", req.Model).
			Str("method", req.Method).
			Msg("call failed")
		s.writeResponse(w, http.StatusBadGateway, callResponse{Error: err.Error()})
		return
	}

	s.writeResponse(w, http.StatusOK, callResponse{Result: value})
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, resp callResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}
