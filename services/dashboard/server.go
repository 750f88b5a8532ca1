package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/config"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/session"
	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/units"
)

// Controller is the part of the session controller the dashboard drives
type Controller interface {
	Connect(ctx context.Context) error
	Fund(ctx context.Context, amount string) (*types.Receipt, error)
	Withdraw(ctx context.Context) (*types.Receipt, error)
	RefreshBalance(ctx context.Context) session.DisplayedBalance
	Snapshot() session.Snapshot
}

// Server is the HTTP and websocket surface of the session controller
type Server struct {
	cfg        config.DashboardConfig
	controller Controller
	hub        *Hub
	gatherer   prometheus.Gatherer
	limiter    *clientLimiter
	logger     *logrus.Logger
	server     *http.Server
	now        func() time.Time
}

type fundRequest struct {
	Amount string `json:"amount"`
}

type txResponse struct {
	TxHash  string           `json:"tx_hash"`
	Block   uint64           `json:"block"`
	GasUsed uint64           `json:"gas_used"`
	State   session.Snapshot `json:"state"`
}

// NewServer creates the dashboard server. gatherer backs /metrics and may be nil.
func NewServer(cfg config.DashboardConfig, controller Controller, hub *Hub, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	return &Server{
		cfg:        cfg,
		controller: controller,
		hub:        hub,
		gatherer:   gatherer,
		limiter:    newClientLimiter(cfg.RateLimit, cfg.RateBurst, 0),
		logger:     logger,
		now:        time.Now,
	}
}

// Router returns the dashboard routes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/connect", s.limited(s.handleConnect)).Methods("POST")
	api.HandleFunc("/fund", s.limited(s.handleFund)).Methods("POST")
	api.HandleFunc("/withdraw", s.limited(s.handleWithdraw)).Methods("POST")
	api.HandleFunc("/refresh", s.limited(s.handleRefresh)).Methods("POST")

	r.HandleFunc("/ws", s.hub.ServeWS).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	return r
}

// ListenAndServe serves until Shutdown is called
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infof("🌐 Dashboard listening on %s", s.cfg.ListenAddr)

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.Allow(host, s.now()) {
			s.logger.WithField("client", host).Warn("🚦 Rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"clients":   s.hub.ClientCount(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.controller.Snapshot())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Connect(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, s.controller.Snapshot())
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "request body must be {\"amount\": \"<decimal>\"}",
			"kind":    session.KindInvalidInput.String(),
		})
		return
	}

	receipt, err := s.controller.Fund(r.Context(), req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, s.txResponse(receipt))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.controller.Withdraw(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, s.txResponse(receipt))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	balance := s.controller.RefreshBalance(r.Context())
	writeData(w, map[string]interface{}{
		"balance":        units.FormatEther(balance.AmountWei),
		"balance_wei":    balance.AmountWei.String(),
		"last_refreshed": balance.LastRefreshed,
	})
}

func (s *Server) txResponse(receipt *types.Receipt) txResponse {
	resp := txResponse{State: s.controller.Snapshot()}
	if receipt != nil {
		resp.TxHash = receipt.TxHash.Hex()
		resp.GasUsed = receipt.GasUsed
		if receipt.BlockNumber != nil {
			resp.Block = receipt.BlockNumber.Uint64()
		}
	}
	return resp
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var e *session.Error
	if !errors.As(err, &e) {
		s.logger.WithError(err).Error("❌ Unclassified controller error")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "internal error",
		})
		return
	}

	writeJSON(w, statusFor(e.Kind), map[string]interface{}{
		"success": false,
		"error":   e.Message,
		"kind":    e.Kind.String(),
	})
}

func statusFor(kind session.Kind) int {
	switch kind {
	case session.KindInvalidInput:
		return http.StatusBadRequest
	case session.KindUnauthorized:
		return http.StatusForbidden
	case session.KindBusy, session.KindNotConnected, session.KindWrongNetwork, session.KindUserRejected:
		return http.StatusConflict
	case session.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case session.KindTxFailed:
		return http.StatusBadGateway
	case session.KindWalletAbsent:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
