package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// permissionChecks counts permission decisions.
	// Labels:
	// - result: "allowed" or "denied"
	// - source: "superadmin", "cache" or "store"
	permissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "authz",
			Name:      "permission_checks_total",
			Help:      "Number of permission checks by result and decision source",
		},
		[]string{"result", "source"},
	)

	// cacheInvalidations counts explicit cache invalidations.
	// Labels:
	// - scope: "user" or "agent"
	cacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Number of permission cache invalidations",
		},
		[]string{"scope"},
	)

	// cacheErrors counts absorbed cache backend failures.
	// Labels:
	// - op: "get", "set", "delete" or "delete_pattern"
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Number of cache backend errors absorbed as misses or no-ops",
		},
		[]string{"op"},
	)

	// guardDenials counts requests rejected by authorization guards.
	// Labels:
	// - guard:  "superadmin", "group_admin" or "roles_scopes"
	// - reason: "unauthenticated" or "forbidden"
	guardDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Subsystem: "authz",
			Name:      "guard_denials_total",
			Help:      "Number of requests rejected by an authorization guard",
		},
		[]string{"guard", "reason"},
	)
)

// PermissionCheck records one permission decision.
func PermissionCheck(allowed bool, source string) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	permissionChecks.WithLabelValues(result, source).Inc()
}

// CacheInvalidation records one explicit invalidation by scope.
func CacheInvalidation(scope string) {
	cacheInvalidations.WithLabelValues(scope).Inc()
}

// CacheError records one absorbed cache backend failure.
func CacheError(op string) {
	cacheErrors.WithLabelValues(op).Inc()
}

// GuardDenial records one rejection by an authorization guard.
func GuardDenial(guard, reason string) {
	guardDenials.WithLabelValues(guard, reason).Inc()
}
