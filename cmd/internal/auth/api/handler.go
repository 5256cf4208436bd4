package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"waypoint/cmd/internal/auth/account"
	"waypoint/cmd/internal/metrics"
)

// Handler wires the user endpoints to the account service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	accounts *account.Service
	limiter  *LoginLimiter
	metrics  metrics.Recorder
}

// HandlerOption configures optional Handler dependencies.
type HandlerOption func(*Handler)

// WithLoginLimiter overrides the limiter built from Config.
func WithLoginLimiter(l *LoginLimiter) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.limiter = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) HandlerOption {
	return func(h *Handler) {
		if rec != nil {
			h.metrics = rec
		}
	}
}

// NewHandler constructs a Handler. The caller owns the limiter lifecycle
// (Limiter().Start / Stop).
func NewHandler(log *slog.Logger, cfg Config, accounts *account.Service, opts ...HandlerOption) (*Handler, error) {
	if accounts == nil {
		return nil, errors.New("authapi: nil account service")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		accounts: accounts,
		metrics:  metrics.Noop{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	if h.limiter == nil {
		h.limiter = NewLoginLimiter(cfg.LoginPerMinute, cfg.LoginBurst, cfg.LimiterIdleTTL)
	}
	return h, nil
}

// Limiter exposes the login limiter so the app can run its eviction loop.
func (h *Handler) Limiter() *LoginLimiter { return h.limiter }

// Mount registers the user routes. Routes under /user pass through gate.
func (h *Handler) Mount(r chi.Router, gate *Gate) {
	r.Post("/users", h.handleRegister)
	r.Post("/users/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(gate.RequireAuth)
		r.Get("/user", h.handleCurrent)
		r.Put("/user", h.handleUpdateCurrent)
	})
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		WriteError(w, http.StatusBadRequest, KindInvalidJSON, nil)
		return
	}

	ctx := account.ContextWithClient(r.Context(), h.clientInfo(r))
	res, err := h.accounts.Register(ctx, account.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeAccountError(w, "auth.register", err)
		return
	}

	WriteJSON(w, http.StatusCreated, tokenResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Username:  res.User.Username,
		Email:     res.User.Email,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	client := h.clientInfo(r)
	key := client.IP
	if key == "" {
		key = "unknown"
	}
	if ok, retryAfter := h.limiter.Allow(key); !ok {
		h.metrics.RecordLogin(metrics.ResultLimited)
		h.log.Warn("auth.login.rate_limited", "ip", client.IP)
		writeRateLimited(w, retryAfter)
		return
	}

	var req loginRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		WriteError(w, http.StatusBadRequest, KindInvalidJSON, nil)
		return
	}

	identifier, ok := loginIdentifier(req)
	if !ok {
		WriteError(w, http.StatusBadRequest, KindFieldValidation, map[string]string{
			"identifier": "provide either username or email",
		})
		return
	}

	ctx := account.ContextWithClient(r.Context(), client)
	res, err := h.accounts.Login(ctx, account.LoginInput{
		Identifier: identifier,
		Password:   req.Password,
	})
	if err != nil {
		h.writeAccountError(w, "auth.login", err)
		return
	}

	WriteJSON(w, http.StatusOK, tokenResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Username:  res.User.Username,
		Email:     res.User.Email,
	})
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, KindAuthorization, nil)
		return
	}

	u, err := h.accounts.Current(r.Context(), id.SubjectID)
	if err != nil {
		h.writeAccountError(w, "auth.current", err)
		return
	}
	WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleUpdateCurrent(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, KindAuthorization, nil)
		return
	}

	var req updateRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		WriteError(w, http.StatusBadRequest, KindInvalidJSON, nil)
		return
	}

	ctx := account.ContextWithClient(r.Context(), h.clientInfo(r))
	u, err := h.accounts.UpdateCurrent(ctx, id.SubjectID, account.UpdateInput{
		Email:           req.Email,
		Password:        req.Password,
		CurrentPassword: req.CurrentPassword,
	})
	if err != nil {
		h.writeAccountError(w, "auth.update", err)
		return
	}
	WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// ---- helpers ----

// writeAccountError maps the account taxonomy onto HTTP. Internal details are
// logged, never returned.
func (h *Handler) writeAccountError(w http.ResponseWriter, op string, err error) {
	var ve account.ValidationError
	var ce account.ConflictError
	switch {
	case errors.As(err, &ve):
		WriteError(w, http.StatusBadRequest, KindFieldValidation, ve.Fields)
	case errors.As(err, &ce):
		var info any
		if ce.Field != "" {
			info = map[string]string{"field": ce.Field}
		}
		WriteError(w, http.StatusConflict, KindAlreadyExists, info)
	case errors.Is(err, account.ErrAlreadyExists):
		WriteError(w, http.StatusConflict, KindAlreadyExists, nil)
	case errors.Is(err, account.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, KindAuthorization, nil)
	default:
		h.log.Error(op+".fail", "err", err)
		WriteError(w, http.StatusInternalServerError, KindInternal, nil)
	}
}

func loginIdentifier(req loginRequest) (string, bool) {
	username := trimPtr(req.Username)
	email := trimPtr(req.Email)
	switch {
	case username != "" && email != "":
		return "", false
	case email != "":
		return email, true
	default:
		// Empty identifiers are reported by the account service as field errors.
		return username, true
	}
}

func trimPtr(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (h *Handler) clientInfo(r *http.Request) account.ClientInfo {
	var ip string
	if v := ClientIP(r, h.cfg.TrustProxy); v != nil {
		ip = v.String()
	}
	return account.ClientInfo{IP: ip, UserAgent: strings.TrimSpace(r.UserAgent())}
}

// ClientIP returns the caller address. Forwarding headers are honored only
// when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Values("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

// parseForwardedIP takes the rightmost X-Forwarded-For entry: the one the
// trusted proxy appended. Entries to its left are client-supplied.
func parseForwardedIP(values []string) net.IP {
	if len(values) == 0 {
		return nil
	}
	last := values[len(values)-1]
	if i := strings.LastIndexByte(last, ','); i >= 0 {
		last = last[i+1:]
	}
	return net.ParseIP(strings.TrimSpace(last))
}
