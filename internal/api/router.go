package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"vpsdash/internal/backup"
	"vpsdash/internal/health"
)

// SnapshotStore is the read side of the snapshot cache
type SnapshotStore interface {
	Current() health.Snapshot
	History(limit int) []health.Snapshot
	Runs(limit int) []backup.Run
	Run(id int64) (backup.Run, bool)
	Subscribe() (<-chan health.Snapshot, func())
}

// BackupControl starts, inspects and cancels backup runs
type BackupControl interface {
	TriggerRun(trigger backup.Trigger) (int64, error)
	Active() (backup.Run, bool)
	Cancel(id int64, reason string) error
}

// RouterConfig holds the dependencies of the HTTP router
type RouterConfig struct {
	Cache   SnapshotStore
	Backups BackupControl
	// Metrics serves /metrics when set
	Metrics http.Handler
	Logger  *zap.Logger

	CORSOrigin        string
	TriggerRatePerMin int
}

// NewRouter builds the chi router for the status API
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.CORSOrigin))

	h := &handler{cache: cfg.Cache, backups: cfg.Backups, logger: cfg.Logger}

	r.Group(func(r chi.Router) {
		r.Use(h.requireCache)

		r.Get("/health", h.getHealth)
		r.Get("/health/history", h.getHistory)
		r.Get("/health/stream", h.streamHealth)

		r.Get("/backups", h.listBackups)
		r.Get("/backups/{id}", h.getBackup)
		r.Post("/backups/{id}/cancel", h.cancelBackup)
		r.With(RateLimit(cfg.TriggerRatePerMin)).Post("/backups/run", h.triggerBackup)
	})

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	return r
}

type handler struct {
	cache   SnapshotStore
	backups BackupControl
	logger  *zap.Logger
}

// requireCache answers 503 when the API was started without a cache
func (h *handler) requireCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cache == nil {
			errorCode(w, r, http.StatusServiceUnavailable, "not_initialized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
