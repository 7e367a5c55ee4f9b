package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"nexuscli/internal/errors"
	"nexuscli/internal/license"
)

// LicenseChecker is the slice of the license manager the guard needs.
type LicenseChecker interface {
	IsValid(ctx context.Context) license.Verdict
	HasFeature(ctx context.Context, name string) bool
}

// LicenseGuard blocks requests to protected routes when no valid license is
// present. The verdict is cached briefly so a burst of requests triggers at
// most one validation pass.
type LicenseGuard struct {
	manager LicenseChecker
	logger  *slog.Logger

	excludePaths    []string
	excludePrefixes []string

	mu        sync.Mutex
	cached    *license.Verdict
	checkedAt time.Time
	cacheTTL  time.Duration
}

// NewLicenseGuard creates a guard around the given manager. The license
// management endpoints themselves are always reachable so an unlicensed
// user can activate.
func NewLicenseGuard(manager LicenseChecker, logger *slog.Logger) *LicenseGuard {
	return &LicenseGuard{
		manager:  manager,
		logger:   logger.With(slog.String("component", "license_guard")),
		cacheTTL: 30 * time.Second,
		excludePaths: []string{
			"/",
			"/api/health",
			"/api/license",
			"/api/license/activate",
			"/api/license/deactivate",
			"/api/license/hardware-id",
			"/metrics",
			"/favicon.ico",
		},
		excludePrefixes: []string{
			"/static/",
		},
	}
}

// Handler returns the guard middleware.
func (g *LicenseGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.isExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		verdict := g.verdict(r.Context())
		if !verdict.Valid {
			g.logger.WarnContext(r.Context(), "request blocked by license guard",
				"path", r.URL.Path,
				"reason", string(verdict.Reason),
			)
			errors.WriteError(w, errors.FromVerdict(verdict))
			return
		}

		if verdict.GraceWarning {
			w.Header().Set("X-License-Grace-Days-Remaining", strconv.Itoa(verdict.GraceDaysRemaining))
		}

		next.ServeHTTP(w, r)
	})
}

// RequireFeature guards a route group behind a single feature tag. Runs
// after Handler, so the license is already known valid; this only checks
// the tier grants the feature.
func (g *LicenseGuard) RequireFeature(name string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.manager.HasFeature(r.Context(), name) {
				g.logger.WarnContext(r.Context(), "request blocked by feature guard",
					"path", r.URL.Path,
					"feature", name,
				)
				errors.WriteError(w, errors.NewWithDetails(
					http.StatusForbidden,
					"FEATURE_NOT_LICENSED",
					"The current license does not include this feature",
					map[string]string{"feature": name},
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// InvalidateCache drops the cached verdict. Called after activation and
// deactivation so the guard reflects the change immediately.
func (g *LicenseGuard) InvalidateCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cached = nil
}

func (g *LicenseGuard) verdict(ctx context.Context) license.Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached != nil && time.Since(g.checkedAt) < g.cacheTTL {
		return *g.cached
	}

	v := g.manager.IsValid(ctx)
	g.cached = &v
	g.checkedAt = time.Now()
	return v
}

func (g *LicenseGuard) isExcluded(path string) bool {
	for _, p := range g.excludePaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
