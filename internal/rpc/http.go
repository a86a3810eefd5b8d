package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// maxRequestBytes bounds a request body; import payloads carry a whole bundle
const maxRequestBytes = 16 << 20

// Caller delivers a request and returns its response
type Caller interface {
	Call(ctx context.Context, req Request) (Response, error)
}

// NewHTTPHandler exposes caller as POST /v1/messages plus GET /healthz.
// Action failures are still 200 responses with success=false.
func NewHTTPHandler(caller Caller) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/messages", handleMessage(caller)).Methods(http.MethodPost)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	return r
}

// NewHTTPServer wraps handler with the daemon's timeouts
func NewHTTPServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func handleMessage(caller Caller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid JSON"})
			return
		}

		resp, err := caller.Call(r.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrBusClosed) {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, Response{ID: req.ID, Success: false, Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
