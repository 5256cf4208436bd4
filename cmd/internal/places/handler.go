package places

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	authapi "waypoint/cmd/internal/auth/api"
)

// Publisher is notified after a place is stored. It must not block.
type Publisher interface {
	PublishPlaceCreated(ctx context.Context, p Place)
}

// Handler serves the /places endpoints.
type Handler struct {
	log       *slog.Logger
	store     Store
	publisher Publisher
	maxBody   int64
	now       func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithPublisher sets the live-feed publisher.
func WithPublisher(p Publisher) HandlerOption {
	return func(h *Handler) { h.publisher = p }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler over store.
func NewHandler(log *slog.Logger, store Store, maxBody int64, opts ...HandlerOption) (*Handler, error) {
	if store == nil {
		return nil, errors.New("places: nil store")
	}
	if log == nil {
		log = slog.Default()
	}
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	h := &Handler{
		log:     log,
		store:   store,
		maxBody: maxBody,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Mount registers the routes. Creation requires auth; reads are public.
// live, when non-nil, is mounted behind the gate at /places/live.
func (h *Handler) Mount(r chi.Router, requireAuth func(http.Handler) http.Handler, live http.Handler) {
	r.Get("/places", h.handleList)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/places", h.handleCreate)
		if live != nil {
			r.Method(http.MethodGet, "/places/live", live)
		}
	})
	r.Get("/places/{id}", h.handleGet)
}

type createRequest struct {
	Name string `json:"name"`
	Info string `json:"info"`
}

type placeResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Info      string    `json:"info"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func toPlaceResponse(p Place) placeResponse {
	return placeResponse{
		ID:        p.ID,
		Name:      p.Name,
		Info:      p.Info,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := authapi.IdentityFromContext(r.Context())
	if !ok {
		authapi.WriteError(w, http.StatusUnauthorized, authapi.KindAuthorization, nil)
		return
	}

	var req createRequest
	if err := authapi.DecodeJSON(w, r, h.maxBody, &req); err != nil {
		authapi.WriteError(w, http.StatusBadRequest, authapi.KindInvalidJSON, nil)
		return
	}

	ctx := r.Context()
	p, err := h.store.Create(ctx, CreateInput{
		Name:      req.Name,
		Info:      req.Info,
		CreatedBy: id.SubjectID,
		Now:       h.now(),
	})
	if err != nil {
		var fe FieldError
		switch {
		case errors.As(err, &fe):
			authapi.WriteError(w, http.StatusBadRequest, authapi.KindFieldValidation, map[string]string{fe.Field: fe.Msg})
		case errors.Is(err, ErrUnknownCreator):
			authapi.WriteError(w, http.StatusUnauthorized, authapi.KindAuthorization, nil)
		default:
			h.log.Error("places.create.fail", "err", err)
			authapi.WriteError(w, http.StatusInternalServerError, authapi.KindInternal, nil)
		}
		return
	}

	h.log.Info("places.create.ok", "place_id", p.ID, "user_id", p.CreatedBy)
	if h.publisher != nil {
		h.publisher.PublishPlaceCreated(ctx, p)
	}
	authapi.WriteJSON(w, http.StatusCreated, toPlaceResponse(p))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}
	offset := parseNonNegative(q.Get("offset"), 0, "offset", fields)
	limit := parseNonNegative(q.Get("limit"), DefaultListLimit, "limit", fields)
	if len(fields) > 0 {
		authapi.WriteError(w, http.StatusBadRequest, authapi.KindFieldValidation, fields)
		return
	}

	list, err := h.store.List(r.Context(), offset, limit)
	if err != nil {
		h.log.Error("places.list.fail", "err", err)
		authapi.WriteError(w, http.StatusInternalServerError, authapi.KindInternal, nil)
		return
	}

	out := make([]placeResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPlaceResponse(p))
	}
	authapi.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			authapi.WriteError(w, http.StatusNotFound, authapi.KindNotFound, nil)
			return
		}
		h.log.Error("places.get.fail", "err", err)
		authapi.WriteError(w, http.StatusInternalServerError, authapi.KindInternal, nil)
		return
	}
	authapi.WriteJSON(w, http.StatusOK, toPlaceResponse(p))
}

func parseNonNegative(raw string, def int, field string, fields map[string]string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		fields[field] = "must be a non-negative integer"
		return def
	}
	return n
}
