package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/magiclink"
	"github.com/MrEthical07/magiclink/middleware"
)

const maxBodyBytes = 64 << 10

// reservedFields are the issue form fields that are not client notes.
var reservedFields = map[string]struct{}{
	"email":        {},
	"username":     {},
	"client_id":    {},
	"redirect_uri": {},
	"remember_me":  {},
	"rememberMe":   {},
}

// Options tunes the router.
type Options struct {
	// DeriveBaseURL builds the link base from the request's scheme and host
	// when the engine has no configured base URL.
	DeriveBaseURL bool
	// TrustProxy honours X-Forwarded-For and X-Forwarded-Proto.
	TrustProxy bool
	Logger     *slog.Logger
}

// Body is the JSON response document.
type Body struct {
	Page    magiclink.Page `json:"page"`
	Message string         `json:"message,omitempty"`
}

type issueJSON struct {
	Email       string            `json:"email"`
	ClientID    string            `json:"client_id"`
	RedirectURI string            `json:"redirect_uri"`
	RememberMe  bool              `json:"remember_me"`
	Notes       map[string]string `json:"notes"`
}

type handler struct {
	engine *magiclink.Engine
	opts   Options
	logger *slog.Logger
}

// NewRouter returns a chi router serving engine's realm, with panic recovery,
// request context and no-store middleware applied.
func NewRouter(engine *magiclink.Engine, opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestContext(opts.TrustProxy))
	r.Use(middleware.NoStore)
	Routes(r, engine, opts)
	return r
}

// Routes registers the realm routes on r without adding middleware.
func Routes(r chi.Router, engine *magiclink.Engine, opts Options) {
	h := &handler{engine: engine, opts: opts, logger: opts.Logger}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	r.Route("/realms/{realm}", func(r chi.Router) {
		r.Use(h.realmOnly)
		r.Post("/magic-link", h.issue)
		r.Get("/login-actions/action-token", h.actionToken)
	})
}

func (h *handler) realmOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "realm") != h.engine.Realm() {
			writeJSON(w, http.StatusNotFound, Body{Page: magiclink.PageError, Message: "realmNotFoundMessage"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) issue(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeIssue(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Body{Page: magiclink.PageEmailForm, Message: magiclink.MessageMissingEmail})
		return
	}
	if h.opts.DeriveBaseURL && h.engine.BaseURL() == "" {
		req.BaseURL = h.requestBaseURL(r)
	}

	resp, err := h.engine.Issue(r.Context(), req)
	if err != nil {
		h.logger.WarnContext(r.Context(), "magic link issue failed",
			"realm", h.engine.Realm(), "client_id", req.ClientID, "error", err)
	}
	writeJSON(w, resp.Status, Body{Page: resp.Page, Message: resp.Message})
}

func (h *handler) decodeIssue(r *http.Request) (magiclink.IssueRequest, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body issueJSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return magiclink.IssueRequest{}, err
		}
		return magiclink.IssueRequest{
			Email:       body.Email,
			ClientID:    body.ClientID,
			RedirectURI: body.RedirectURI,
			RememberMe:  body.RememberMe,
			ClientNotes: body.Notes,
		}, nil
	}

	if err := r.ParseForm(); err != nil {
		return magiclink.IssueRequest{}, err
	}
	email := r.PostForm.Get("email")
	if email == "" {
		email = r.PostForm.Get("username")
	}
	req := magiclink.IssueRequest{
		Email:       email,
		ClientID:    r.PostForm.Get("client_id"),
		RedirectURI: r.PostForm.Get("redirect_uri"),
		RememberMe:  isChecked(r.PostForm.Get("remember_me")) || isChecked(r.PostForm.Get("rememberMe")),
	}
	for key, values := range r.PostForm {
		if _, reserved := reservedFields[key]; reserved || len(values) == 0 {
			continue
		}
		if req.ClientNotes == nil {
			req.ClientNotes = make(map[string]string)
		}
		req.ClientNotes[key] = values[0]
	}
	return req, nil
}

func (h *handler) actionToken(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	res, err := h.engine.ExecuteActionToken(r.Context(), key)
	if err != nil || !res.Succeeded() {
		h.logger.WarnContext(r.Context(), "action token rejected",
			"realm", h.engine.Realm(),
			"reason", res.Reason,
			"failed_at", res.FailedAt,
			"fingerprint", res.Fingerprint,
			"error", err,
		)
		status := res.Response.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, Body{Page: res.Response.Page, Message: res.Response.Message})
		return
	}

	if res.Response.Page == magiclink.PageRedirect && res.Response.Location != "" {
		http.Redirect(w, r, res.Response.Location, http.StatusFound)
		return
	}
	writeJSON(w, res.Response.Status, Body{Page: res.Response.Page, Message: res.Response.Message})
}

func (h *handler) requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if h.opts.TrustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host
}

func isChecked(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
