package pbft

import (
	"pbftchain/internal/metrics"
)

// These small wrappers keep engine.go's transition logic free of
// Prometheus detail; every metric touched here is purely observational
// and never read back by the engine.

func equivocationsTotal() {
	metrics.EquivocationsTotal.Inc()
}

func metricsSetPrepareVotes(count int) {
	metrics.PrepareVotes.Set(float64(count))
}

func metricsSetCommitVotes(count int) {
	metrics.CommitVotes.Set(float64(count))
}

func chainHeightGauge(height uint64) {
	metrics.ChainHeight.Set(float64(height))
}

func blocksCommittedCounter() {
	metrics.BlocksCommittedTotal.Inc()
}
