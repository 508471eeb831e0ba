// Package metrics exposes Prometheus instruments for the pBFT node.
// These are observational only: nothing in the consensus engine reads
// them back, so they can never influence quorum decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pbft"

var (
	// ChainHeight tracks the committed chain height of this node.
	ChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chain_height",
		Help:      "Height of the locally committed blockchain tip",
	})

	// BlocksCommittedTotal counts blocks this node has appended.
	BlocksCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_committed_total",
		Help:      "Total number of blocks appended to the local chain",
	})

	// EquivocationsTotal counts rejected second-proposal pre-prepares.
	EquivocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "equivocations_total",
		Help:      "Total number of equivocating pre-prepare messages rejected",
	})

	// PrepareVotes tracks the prepare-vote count for the sequence/digest
	// pair most recently touched. Unlabeled: seq is unbounded and two
	// distinct digests can share a seq under equivocation, so a seq label
	// would either grow without bound or silently overwrite itself.
	PrepareVotes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "prepare_votes",
		Help:      "Prepare vote count for the most recently touched sequence/digest pair",
	})

	// CommitVotes tracks the commit-vote count for the sequence/digest
	// pair most recently touched. Unlabeled for the same reason as
	// PrepareVotes.
	CommitVotes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "commit_votes",
		Help:      "Commit vote count for the most recently touched sequence/digest pair",
	})

	// MaliciousMode reports the currently configured fault-injection
	// mode as a label on an otherwise constant gauge (1 when active).
	MaliciousMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "malicious_mode",
		Help:      "1 for the currently active malicious mode, 0 otherwise",
	}, []string{"mode"})
)
