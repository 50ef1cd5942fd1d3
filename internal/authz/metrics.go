package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldops",
		Subsystem: "authz",
		Name:      "permission_cache_hits_total",
		Help:      "Permission cache lookups served from cache.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldops",
		Subsystem: "authz",
		Name:      "permission_cache_misses_total",
		Help:      "Permission cache lookups that required recomputation.",
	})
	legacyFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldops",
		Subsystem: "authz",
		Name:      "legacy_role_fallback_total",
		Help:      "Resolutions that used the coarse-role fallback table, so legacy roles can be tracked and retired.",
	}, []string{"coarse_role"})
	denials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldops",
		Subsystem: "authz",
		Name:      "denials_total",
		Help:      "Authorization checks that failed.",
	}, []string{"permission"})
)
