package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/cloudmaint/internal/apps"
	"github.com/MimeLyc/cloudmaint/internal/config"
	"github.com/MimeLyc/cloudmaint/internal/events"
	"github.com/MimeLyc/cloudmaint/internal/jobs"
	"github.com/MimeLyc/cloudmaint/internal/l10n"
	"github.com/MimeLyc/cloudmaint/internal/trashbin"
)

type settingsStore interface {
	GetSystemSettings() (config.SystemSettings, error)
	UpdateSystemSettings(next config.SystemSettings) (config.SystemSettings, error)
}

type settingsApplier func(next config.SystemSettings) error

type languageResolver interface {
	FindLanguage(ctx context.Context, req *l10n.Request, app string) string
	FindGenericLanguage(ctx context.Context, req *l10n.Request, app string) string
	LanguageDirection(lang string) string
	GetLanguages() l10n.Languages
}

type jobQueue interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.Job, bool)
	Remove(ctx context.Context, id string) error
	Get(id string) (*jobs.Job, bool)
	List() []*jobs.Job
}

type eventSource interface {
	Subscribe(size int) (<-chan events.Message, func())
}

type metricsRecorder interface {
	Handler() http.Handler
	ObserveHTTP(method, path string, code int)
}

type expireEnqueuer func(user string) (*jobs.Job, bool)

type trashDeleter func(ctx context.Context, user, path string) (trashbin.Item, error)

type appUpgrader func(ctx context.Context, app string) (apps.Info, error)

type userDirectory interface {
	UserExists(ctx context.Context, uid string) (bool, error)
}

type Server struct {
	queue    jobQueue
	l10n     languageResolver
	settings settingsStore
	apply    settingsApplier
	events   eventSource
	metrics  metricsRecorder
	expire   expireEnqueuer
	trash    trashDeleter
	upgrade  appUpgrader
	users    userDirectory
	classes  []string

	streamInterval time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithSettingsStore(store settingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithSettingsApplier(apply settingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithEvents(source eventSource) Option {
	return func(s *Server) {
		s.events = source
	}
}

func WithMetrics(m metricsRecorder) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTrashExpiry enables POST /api/trashbin/{user}/expire.
func WithTrashExpiry(enqueue func(user string) (*jobs.Job, bool)) Option {
	return func(s *Server) {
		s.expire = enqueue
	}
}

// WithTrashDelete enables POST /api/trashbin/{user}/items.
func WithTrashDelete(del func(ctx context.Context, user, path string) (trashbin.Item, error)) Option {
	return func(s *Server) {
		s.trash = del
	}
}

// WithAppUpgrade enables POST /api/apps/{app}/upgrade.
func WithAppUpgrade(upgrade func(ctx context.Context, app string) (apps.Info, error)) Option {
	return func(s *Server) {
		s.upgrade = upgrade
	}
}

// WithUsers authenticates the X-User-Id header against users. Without it
// requests never carry a user.
func WithUsers(users userDirectory) Option {
	return func(s *Server) {
		s.users = users
	}
}

// WithJobClasses limits POST /api/jobs to the given classes.
func WithJobClasses(classes []string) Option {
	return func(s *Server) {
		s.classes = classes
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		s.streamInterval = d
	}
}

func NewServer(queue jobQueue, resolver languageResolver, opts ...Option) *Server {
	s := &Server{
		queue:          queue,
		l10n:           resolver,
		streamInterval: time.Second,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	if s.metrics == nil {
		return s.mux
	}
	return s.instrument(s.mux)
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/l10n/language", s.handleLanguage)
	s.mux.HandleFunc("/api/l10n/languages", s.handleLanguages)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)
	s.mux.HandleFunc("/api/events/stream", s.handleEventStream)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/trashbin/", s.handleTrashbin)
	s.mux.HandleFunc("/api/apps/", s.handleAppUpgrade)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument counts requests by matched route pattern so that ids in paths
// do not blow up the label space.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.ObserveHTTP(r.Method, pattern, rec.code)
	})
}
