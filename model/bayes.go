package model

import (
	"errors"
	"math"
	"sort"

	"github.com/hazyhaar/vigie/feature"
)

// Class indices.
const (
	classLegit = 0
	classPhish = 1
)

// numStates is the tristate alphabet each feature draws from (-1, 0, 1).
const numStates = 3

// ErrInsufficientData reports a training set that lacks at least one sample
// of each class. Training refuses to produce a degenerate head.
var ErrInsufficientData = errors.New("model: need samples of both classes to train")

// Sample is one labeled feature vector.
type Sample struct {
	Features feature.Vector `json:"features"`
	Phishing bool           `json:"phishing"`
}

// NaiveBayes is a discrete Naive Bayes classifier over tristate feature
// vectors. Per feature and class it stores Laplace-smoothed log
// probabilities of each state. All fields are exported so a trained head
// round-trips through JSON state files.
type NaiveBayes struct {
	Schema  feature.Schema  `json:"schema"`
	Priors  [2]float64      `json:"priors"`   // log class priors
	LogProb [2][][3]float64 `json:"log_prob"` // [class][feature][state]
	Samples int             `json:"samples"`
}

// TrainNaiveBayes fits a classifier on labeled samples. Vectors whose
// length disagrees with the schema are skipped rather than poisoning the
// counts.
func TrainNaiveBayes(schema feature.Schema, samples []Sample) (*NaiveBayes, error) {
	n := schema.Len()
	counts := [2][][3]int{make([][3]int, n), make([][3]int, n)}
	classTotal := [2]int{}

	for _, s := range samples {
		if len(s.Features) != n {
			continue
		}
		c := classLegit
		if s.Phishing {
			c = classPhish
		}
		classTotal[c]++
		for i, v := range s.Features {
			counts[c][i][stateIndex(v)]++
		}
	}

	if classTotal[classLegit] == 0 || classTotal[classPhish] == 0 {
		return nil, ErrInsufficientData
	}

	total := classTotal[classLegit] + classTotal[classPhish]
	nb := &NaiveBayes{
		Schema:  schema,
		LogProb: [2][][3]float64{make([][3]float64, n), make([][3]float64, n)},
		Samples: total,
	}
	for c := range 2 {
		nb.Priors[c] = math.Log(float64(classTotal[c]) / float64(total))
		denom := float64(classTotal[c] + numStates)
		for i := range n {
			for s := range numStates {
				nb.LogProb[c][i][s] = math.Log(float64(counts[c][i][s]+1) / denom)
			}
		}
	}
	return nb, nil
}

// Score returns the phishing probability for a vector, in [0, 1].
// Log odds of the two class scores pushed through a sigmoid, the same
// shape as a two-class log-likelihood ratio.
func (nb *NaiveBayes) Score(v feature.Vector) float64 {
	sLegit, sPhish := nb.Priors[classLegit], nb.Priors[classPhish]
	for i, val := range v {
		if i >= len(nb.LogProb[classLegit]) {
			break
		}
		s := stateIndex(val)
		sLegit += nb.LogProb[classLegit][i][s]
		sPhish += nb.LogProb[classPhish][i][s]
	}
	return sigmoid(sPhish - sLegit)
}

// Contribution is one feature's pull toward the phishing class.
type Contribution struct {
	Name  string
	Value float64
}

// Contributions returns per-feature log-odds contributions, most
// incriminating first. Positive values pull toward phishing.
func (nb *NaiveBayes) Contributions(v feature.Vector) []Contribution {
	out := make([]Contribution, 0, len(v))
	for i, val := range v {
		if i >= len(nb.LogProb[classLegit]) || i >= nb.Schema.Len() {
			break
		}
		s := stateIndex(val)
		out = append(out, Contribution{
			Name:  nb.Schema.Fields[i],
			Value: nb.LogProb[classPhish][i][s] - nb.LogProb[classLegit][i][s],
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Value > out[b].Value })
	return out
}

func stateIndex(v float64) int {
	switch {
	case v < -0.5:
		return 0
	case v > 0.5:
		return 2
	default:
		return 1
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
