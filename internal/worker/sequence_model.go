package worker

import (
	"fmt"
	"math"

	"github.com/glasswally/glasswally/internal/event"
	"github.com/glasswally/glasswally/internal/store"
)

type sequenceModelWorker struct{}

func (sequenceModelWorker) Kind() Kind { return KindSequenceModel }

func (sequenceModelWorker) Analyze(snap store.Snapshot, _ ClusterContext) DetectionSignal {
	win := snap.TwentyFourHour
	if win.Count < 15 {
		return insufficient(KindSequenceModel)
	}

	p := normalizeTransitionMatrix(win.TopicTransitions)
	stationary := stationaryDistribution(p)
	logN := math.Log2(float64(event.NumTopics))

	stationaryEntropy := entropyOf(stationary)
	transitionEntropy := averageRowEntropy(p, stationary)

	score := clamp01((stationaryEntropy / logN) * (1 - transitionEntropy/logN))

	return DetectionSignal{
		Worker:   KindSequenceModel,
		Score:    score,
		Evidence: []string{fmt.Sprintf("stationary_entropy=%.2f transition_entropy=%.2f", stationaryEntropy, transitionEntropy)},
		ContributingFeatures: map[string]float64{
			"stationary_entropy": stationaryEntropy,
			"transition_entropy": transitionEntropy,
		},
	}
}

func normalizeTransitionMatrix(counts [int(event.NumTopics)][int(event.NumTopics)]int) [int(event.NumTopics)][int(event.NumTopics)]float64 {
	var p [int(event.NumTopics)][int(event.NumTopics)]float64
	for i := range counts {
		var total int
		for _, c := range counts[i] {
			total += c
		}
		if total == 0 {
			continue
		}
		for j, c := range counts[i] {
			p[i][j] = float64(c) / float64(total)
		}
	}
	return p
}

// stationaryDistribution approximates the stationary distribution of the
// topic transition matrix by power iteration, starting from a uniform
// distribution; the matrix is small (13x13, TopicUnknown included) and near-stochastic rows
// converge in a handful of iterations.
func stationaryDistribution(p [int(event.NumTopics)][int(event.NumTopics)]float64) []float64 {
	n := int(event.NumTopics)
	dist := make([]float64, n)
	for i := range dist {
		dist[i] = 1.0 / float64(n)
	}
	for iter := 0; iter < 50; iter++ {
		next := make([]float64, n)
		for i := 0; i < n; i++ {
			if dist[i] == 0 {
				continue
			}
			rowTotal := 0.0
			for j := 0; j < n; j++ {
				rowTotal += p[i][j]
			}
			if rowTotal == 0 {
				next[i] += dist[i] // absorbing/unvisited state: stays put
				continue
			}
			for j := 0; j < n; j++ {
				next[j] += dist[i] * p[i][j]
			}
		}
		dist = next
	}
	return dist
}

func entropyOf(dist []float64) float64 {
	var h float64
	for _, p := range dist {
		if p <= 0 {
			continue
		}
		h -= p * math.Log2(p)
	}
	return h
}

// averageRowEntropy is the transition entropy: the stationary-weighted
// average of each row's own entropy.
func averageRowEntropy(p [int(event.NumTopics)][int(event.NumTopics)]float64, stationary []float64) float64 {
	var total float64
	for i, row := range p {
		total += stationary[i] * entropyOf(row[:])
	}
	return total
}
