package op

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	viewMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weft_view_merges_total",
		Help: "Three-way view merges performed",
	})

	divergentBranches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weft_view_divergent_branches_total",
		Help: "Branches left with several targets by a view merge",
	})

	divergentWorkspaces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weft_view_divergent_workspaces_total",
		Help: "Workspaces flagged as conflicted by a view merge",
	})

	headSwaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weft_op_head_swaps_total",
		Help: "Operation head compare-and-swap attempts, by outcome",
	}, []string{"store", "outcome"})
)

func recordSwap(store string, ok bool, err error) {
	outcome := "swapped"
	switch {
	case err != nil:
		outcome = "error"
	case !ok:
		outcome = "stale"
	}
	headSwaps.WithLabelValues(store, outcome).Inc()
}
