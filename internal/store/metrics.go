package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wishlistRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_wishlist_rollbacks_total",
		Help: "Optimistic wishlist toggles reverted after the remote call failed",
	})

	branchResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_branch_resolutions_total",
			Help: "Branch resolution attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)
)
