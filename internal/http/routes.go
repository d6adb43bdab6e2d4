package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/target/bizdesk/internal/domain/auth"
)

// StateSource exposes the current session snapshot.
type StateSource interface {
	State() domainauth.SessionState
}

// RouterOptions configures the agent's local HTTP surface.
type RouterOptions struct {
	Session StateSource
	Metrics http.Handler
	// Guard, when set, wraps every route (see RouteGuard).
	Guard  func(http.Handler) http.Handler
	Logger *slog.Logger
}

type healthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session,omitempty"`
}

// NewRouter serves liveness, the session snapshot and, when configured, Prometheus metrics.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	health := healthHandler(opts.Session)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	if opts.Session != nil {
		mux.Handle("GET /api/session", sessionHandler(opts.Session))
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	var h http.Handler = mux
	if opts.Guard != nil {
		h = opts.Guard(h)
	}
	return Recover(logger)(Logging(logger)(h))
}

func healthHandler(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		resp := healthResponse{Status: "ok"}
		if src != nil {
			resp.Session = src.State().Status().String()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func sessionHandler(src StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, src.State())
	}
}
