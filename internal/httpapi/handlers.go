package httpapi

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/MimeLyc/cloudmaint/internal/apps"
	"github.com/MimeLyc/cloudmaint/internal/config"
	"github.com/MimeLyc/cloudmaint/internal/jobs"
	"github.com/MimeLyc/cloudmaint/internal/l10n"
	"github.com/MimeLyc/cloudmaint/internal/trashbin"
	"github.com/MimeLyc/cloudmaint/internal/users"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

// UserHeader carries the id of the user a request acts for.
const UserHeader = "X-User-Id"

type languageResponse struct {
	Language  string `json:"language"`
	Direction string `json:"direction"`
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	app := r.URL.Query().Get("app")
	req := l10n.NewRequest(r.Header.Get("Accept-Language"), s.sessionUser(r))
	var lang string
	if isTrue(r.URL.Query().Get("generic")) {
		lang = s.l10n.FindGenericLanguage(r.Context(), req, app)
	} else {
		lang = s.l10n.FindLanguage(r.Context(), req, app)
	}
	writeJSON(w, http.StatusOK, languageResponse{
		Language:  lang,
		Direction: s.l10n.LanguageDirection(lang),
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.l10n.GetLanguages())
}

type enqueueJobRequest struct {
	Class     string            `json:"class"`
	Argument  map[string]string `json:"argument"`
	DedupeKey string            `json:"dedupe_key"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		req.Class = strings.TrimSpace(req.Class)
		if req.Class == "" {
			writeError(w, http.StatusBadRequest, "class is required")
			return
		}
		if len(s.classes) > 0 && !slices.Contains(s.classes, req.Class) {
			writeError(w, http.StatusBadRequest, "unknown job class "+req.Class)
			return
		}

		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Class:     req.Class,
			Argument:  req.Argument,
			DedupeKey: req.DedupeKey,
		})
		writeEnqueued(w, job, created)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleJobByID serves /api/jobs/{id}.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, ok := s.queue.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := s.queue.Remove(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// sessionUser returns the X-User-Id of r if it names an existing user, "" otherwise.
func (s *Server) sessionUser(r *http.Request) string {
	uid := strings.TrimSpace(r.Header.Get(UserHeader))
	if uid == "" || s.users == nil {
		return ""
	}
	exists, err := s.users.UserExists(r.Context(), uid)
	if err != nil {
		log.Warn("Failed to look up user %s: %v", uid, err)
		return ""
	}
	if !exists {
		return ""
	}
	return uid
}

// splitResource splits "<prefix><name>/<action>" into its unescaped name and
// action.
func splitResource(urlPath, prefix string) (name, action string, ok bool) {
	rest := strings.TrimPrefix(urlPath, prefix)
	i := strings.LastIndex(rest, "/")
	if i <= 0 {
		return "", "", false
	}
	name, action = rest[:i], rest[i+1:]
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name, action, name != "" && action != ""
}

// handleTrashbin serves POST /api/trashbin/{user}/expire and
// POST /api/trashbin/{user}/items.
func (s *Server) handleTrashbin(w http.ResponseWriter, r *http.Request) {
	user, action, ok := splitResource(r.URL.Path, "/api/trashbin/")
	if !ok || (action != "expire" && action != "items") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if (action == "expire" && s.expire == nil) || (action == "items" && s.trash == nil) {
		writeError(w, http.StatusNotImplemented, "trash bin "+action+" is not configured")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if action == "expire" {
		job, created := s.expire(user)
		writeEnqueued(w, job, created)
		return
	}

	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	item, err := s.trash(r.Context(), user, body.Path)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, item)
	case errors.Is(err, users.ErrUserNotFound), errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, trashbin.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleAppUpgrade serves POST /api/apps/{app}/upgrade.
func (s *Server) handleAppUpgrade(w http.ResponseWriter, r *http.Request) {
	app, action, ok := splitResource(r.URL.Path, "/api/apps/")
	if !ok || action != "upgrade" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if s.upgrade == nil {
		writeError(w, http.StatusNotImplemented, "app upgrades are not configured")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	info, err := s.upgrade(r.Context(), app)
	if errors.Is(err, apps.ErrAppPathNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetSystemSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		req := config.DefaultSystemSettings()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateSystemSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeEnqueued(w http.ResponseWriter, job *jobs.Job, created bool) {
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"created": created,
		"job":     job,
	})
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
