package prefs

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sitecontent-web/internal/log"
)

// Metrics counts submissions by result (saved, invalid, error).
type Metrics interface {
	IncPreferencesUpdate(result string)
}

// API serves the preferences form on the ops listener.
type API struct {
	store   *Store
	logger  log.Logger
	metrics Metrics
}

func NewAPI(store *Store, logger log.Logger, m Metrics) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{store: store, logger: logger, metrics: m}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Post("/admin/users", api.HandleCreateUser)
	r.Get("/admin/users/{id}/preferences", api.HandleGet)
	r.Post("/admin/users/{id}/preferences", api.HandlePost)
}

type fieldView struct {
	Field
	Selected []string `json:"selected"`
}

type formView struct {
	UserID     int64               `json:"user_id"`
	CanApprove bool                `json:"can_approve"`
	Fields     []fieldView         `json:"fields"`
	Errors     map[string][]string `json:"errors,omitempty"`
}

func view(u *User, f *Form) formView {
	v := formView{UserID: u.ID, CanApprove: u.CanApprove}
	for _, fd := range f.Fields() {
		sel := f.Initial(fd.Name)
		if c, ok := f.Cleaned()[fd.Name]; ok {
			sel = c
		}
		if sel == nil {
			sel = []string{}
		}
		v.Fields = append(v.Fields, fieldView{Field: fd, Selected: sel})
	}
	if len(f.Errors()) > 0 {
		v.Errors = f.Errors()
	}
	return v
}

func (api *API) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, p, ok := api.load(w, r)
	if !ok {
		return
	}
	api.writeJSON(r.Context(), w, http.StatusOK, view(u, NewForm(p, u.CanApprove)))
}

func (api *API) HandlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, p, ok := api.load(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		api.count("invalid")
		api.writeJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "malformed form body"})
		return
	}

	form := NewForm(p, u.CanApprove)
	if !form.Bind(r.PostForm) {
		api.count("invalid")
		api.writeJSON(ctx, w, http.StatusBadRequest, view(u, form))
		return
	}
	if _, err := form.Save(ctx, api.store); err != nil {
		api.count("error")
		log.FromContextOr(ctx, api.logger).Error(ctx, err, "save preferences failed", "user_id", u.ID)
		api.writeJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "could not save preferences"})
		return
	}
	api.count("saved")
	log.FromContextOr(ctx, api.logger).Info(ctx, "preferences saved", "user_id", u.ID)
	api.writeJSON(ctx, w, http.StatusOK, view(u, form))
}

type createUserRequest struct {
	Email      string `json:"email"`
	CanApprove bool   `json:"can_approve"`
}

func (api *API) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !strings.Contains(req.Email, "@") {
		api.writeJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}
	u, err := api.store.CreateUser(ctx, strings.TrimSpace(req.Email), req.CanApprove)
	if err != nil {
		log.FromContextOr(ctx, api.logger).Error(ctx, err, "create user failed")
		api.writeJSON(ctx, w, http.StatusConflict, map[string]string{"error": "could not create user"})
		return
	}
	api.writeJSON(ctx, w, http.StatusCreated, u)
}

// load resolves {id} to a user and their current preferences, answering
// the error itself when it returns false.
func (api *API) load(w http.ResponseWriter, r *http.Request) (*User, *Preferences, bool) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		api.writeJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return nil, nil, false
	}
	u, err := api.store.User(ctx, id)
	if err == nil {
		var p *Preferences
		if p, err = api.store.Preferences(ctx, id); err == nil {
			return u, p, true
		}
	}
	if errors.Is(err, ErrUserNotFound) {
		api.writeJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return nil, nil, false
	}
	log.FromContextOr(ctx, api.logger).Error(ctx, err, "load preferences failed", "user_id", id)
	api.writeJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "could not load preferences"})
	return nil, nil, false
}

func (api *API) count(result string) {
	if api.metrics != nil {
		api.metrics.IncPreferencesUpdate(result)
	}
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
