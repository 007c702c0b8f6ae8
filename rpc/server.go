// Package rpc exposes the order book and escrow registry over HTTP.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crosslock/crypto"
	nativecommon "crosslock/native/common"
	"crosslock/native/escrow"
	"crosslock/native/order"
)

const requestLimit = 1 << 20 // 1 MiB

// Server routes HTTP requests to the swap engines. Caller identities for
// fill, cancel, fund and withdraw come from the request body unverified; the
// server is meant to sit behind a fronting authenticator that binds requests
// to the address they claim. Order submission is the exception, since the
// maker signature is checked by the book itself.
type Server struct {
	book     *order.Book
	registry *escrow.Registry
	planner  *escrow.Planner
	logger   *slog.Logger
}

// NewServer wires the engines behind a server. The planner may be nil, in
// which case timelock planning uses the built-in defaults.
func NewServer(book *order.Book, registry *escrow.Registry, planner *escrow.Planner, logger *slog.Logger) *Server {
	if planner == nil {
		planner = escrow.NewPlanner(0, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{book: book, registry: registry, planner: planner, logger: logger}
}

// Handler builds the chi router for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/orders", func(sr chi.Router) {
		sr.Post("/", s.submitOrder)
		sr.Get("/", s.listOrders)
		sr.Get("/stats", s.orderStats)
		sr.Post("/cancel-batch", s.cancelOrderBatch)
		sr.Get("/{hash}", s.getOrder)
		sr.Get("/{hash}/remaining", s.orderRemaining)
		sr.Post("/{hash}/fill", s.fillOrder)
		sr.Post("/{hash}/cancel", s.cancelOrder)
	})

	r.Route("/v1/escrows", func(sr chi.Router) {
		sr.Post("/", s.createEscrow)
		sr.Get("/", s.listEscrows)
		sr.Get("/{id}", s.getEscrow)
		sr.Get("/{id}/status", s.escrowStatus)
		sr.Post("/{id}/fund", s.fundEscrow)
		sr.Post("/{id}/withdraw", s.withdrawEscrow)
		sr.Post("/{id}/cancel", s.cancelEscrow)
	})

	r.Post("/v1/timelocks/plan", s.planTimelocks)

	return r
}

func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// statusFor maps engine sentinel errors to HTTP status codes. Unmapped
// errors surface as 500 so storage faults are distinguishable from caller
// mistakes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, escrow.ErrEscrowNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrUnauthorized), errors.Is(err, escrow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrEscrowExists):
		return http.StatusConflict
	case errors.Is(err, order.ErrOrderAlreadyFilled),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrOrderExpired),
		errors.Is(err, order.ErrAlreadyInvalidated),
		errors.Is(err, order.ErrInsufficientRemaining),
		errors.Is(err, order.ErrTooManyOrders),
		errors.Is(err, order.ErrNonceUsed),
		errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrAlreadyWithdrawn),
		errors.Is(err, escrow.ErrAlreadyCancelled),
		errors.Is(err, escrow.ErrTooEarly),
		errors.Is(err, escrow.ErrTooLate):
		return http.StatusConflict
	case errors.Is(err, order.ErrInvalidAmount),
		errors.Is(err, order.ErrInvalidAssetPair),
		errors.Is(err, order.ErrInvalidExpiration),
		errors.Is(err, order.ErrInvalidSignature),
		errors.Is(err, order.ErrExtensionMismatch),
		errors.Is(err, order.ErrInvalidPartialFill),
		errors.Is(err, order.ErrSecretProofRequired),
		errors.Is(err, order.ErrInvalidSecretProof),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidSecret):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseAddress accepts either a clk bech32 account address or raw hex.
func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, string(crypto.AccountPrefix)+"1") {
		decoded, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return addr, fmt.Errorf("invalid address %q: %w", s, err)
		}
		copy(addr[:], decoded.Bytes())
		return addr, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("invalid address %q: want 20 bytes, got %d", s, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return hash, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(raw) != 32 {
		return hash, fmt.Errorf("invalid hash %q: want 32 bytes, got %d", s, len(raw))
	}
	copy(hash[:], raw)
	return hash, nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

func parseBytes(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return raw, nil
}

func hexAddress(addr [20]byte) string { return hex.EncodeToString(addr[:]) }
func hexHash(hash [32]byte) string    { return hex.EncodeToString(hash[:]) }

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
