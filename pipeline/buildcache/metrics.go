// Copyright (C) 2025 VesselForge Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package buildcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics holds the cache's Prometheus instruments. The registerer is
// injected so tests can use a private registry without collisions.
type storeMetrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	corruptions prometheus.Counter
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	factory := promauto.With(reg)
	return &storeMetrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vesselforge",
			Subsystem: "buildcache",
			Name:      "hits_total",
			Help:      "Number of cache lookups satisfied by an existing binary.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vesselforge",
			Subsystem: "buildcache",
			Name:      "misses_total",
			Help:      "Number of cache lookups that required compilation.",
		}),
		corruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vesselforge",
			Subsystem: "buildcache",
			Name:      "corruptions_total",
			Help:      "Number of entries found with a missing or unreadable binary.",
		}),
	}
}
