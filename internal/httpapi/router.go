package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/balancebuddy/authflow"
	"github.com/balancebuddy/authflow/jwt"
	authmw "github.com/balancebuddy/authflow/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Service is the engine surface the handlers call. *authflow.Engine
// implements it.
type Service interface {
	RequestRegistrationOTP(ctx context.Context, req authflow.RegistrationRequest) error
	VerifyRegistrationOTP(ctx context.Context, identity, code string) (authflow.VerifyResult, error)
	ResendRegistrationOTP(ctx context.Context, identity string) error
	CompleteRegistration(ctx context.Context, identity string, payload authflow.RegistrationPayload) (authflow.SessionResult, error)

	Login(ctx context.Context, identity, password string) (authflow.SessionResult, error)
	ValidateSession(ctx context.Context, token string) (*jwt.SessionClaims, error)
	UserForClaims(ctx context.Context, claims *jwt.SessionClaims) (authflow.User, error)

	RequestPasswordReset(ctx context.Context, identity string) error
	VerifyResetToken(ctx context.Context, token string) (bool, error)
	ResetPassword(ctx context.Context, token, newPassword string) error

	RequestEmailOTP(ctx context.Context, identity string) error
	VerifyEmailOTP(ctx context.Context, identity, code string) (authflow.VerifyResult, error)
	ResendEmailOTP(ctx context.Context, identity string) error
}

type Options struct {
	Service     Service
	Logger      *zap.Logger
	CORSOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Ready backs /healthz. Nil means always healthy.
	Ready          func(ctx context.Context) error
	RequestTimeout time.Duration
	// TrustProxyHeaders takes the client address from X-Forwarded-For,
	// X-Real-IP or True-Client-IP. Enable it only behind a proxy that
	// overwrites them; otherwise callers pick their own per-IP limit key.
	TrustProxyHeaders bool
}

type Handler struct {
	svc    Service
	logger *zap.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	h := &Handler{svc: opts.Service, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(authContext)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthz(opts.Ready))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/verify-otp", h.verifyRegistrationOTP)
			r.Post("/resend-otp", h.resendRegistrationOTP)
			r.Post("/complete-registration", h.completeRegistration)
			r.Post("/login", h.login)
			r.Post("/forgot-password", h.forgotPassword)
			r.Post("/reset-password", h.resetPassword)
			r.Get("/verify-reset-token/{token}", h.verifyResetToken)
			r.With(authmw.Guard(opts.Service)).Get("/getUser", h.getUser)
		})

		r.Route("/otp", func(r chi.Router) {
			r.Post("/generate", h.generateOTP)
			r.Post("/verify", h.verifyOTP)
			r.Post("/resend", h.resendOTP)
		})
	})

	return r
}

// authContext copies the request id and client address onto the context the
// engine reads for audit records and per-IP limits.
func authContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authflow.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ctx = authflow.WithClientIP(ctx, clientIP(r.RemoteAddr))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

func healthz(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// fail writes err as a JSON error. Server-side failures are logged; client
// errors are not.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}

	resp := errorResponse{Message: publicMessage(err)}
	if kind := authflow.KindOf(err); kind != authflow.KindUnknown {
		resp.Code = kind.String()
	}
	writeJSON(w, status, resp)
}
