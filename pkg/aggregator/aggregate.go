package aggregator

import (
	"math"

	"github.com/cuemby/sutramem/pkg/types"
)

// similarityThreshold is theta_s from spec §4.10.
const similarityThreshold = 0.8

// AnswerPath is one reasoning output: an answer extracted externally
// from the terminal concept of a path, the path's edge types (used for
// the diversity bonus), and the path's propagated confidence.
type AnswerPath struct {
	Answer     []byte
	EdgeTypes  []types.AssocType
	Confidence float64
}

// Consensus is the winning cluster's answer and its consensus strength
// (sigma_winner from spec §4.10).
type Consensus struct {
	Answer     []byte
	Confidence float64
	Weight     float64
}

type cluster struct {
	representative map[string]bool
	members        []AnswerPath
}

func edgeSequenceKey(edgeTypes []types.AssocType) string {
	b := make([]byte, len(edgeTypes))
	for i, t := range edgeTypes {
		b[i] = byte(t)
	}
	return string(b)
}

// Aggregate implements spec §4.10 end to end: cluster, score, pick a
// winner. Returns a zero Consensus and false if paths is empty.
func Aggregate(paths []AnswerPath) (Consensus, bool) {
	if len(paths) == 0 {
		return Consensus{}, false
	}

	var clusters []*cluster
	for _, p := range paths {
		normalized := normalize(p.Answer)
		words := wordSet(normalized)

		assigned := false
		for _, c := range clusters {
			if jaccardWords(words, c.representative) > similarityThreshold {
				c.members = append(c.members, p)
				assigned = true
				break
			}
		}
		if !assigned {
			clusters = append(clusters, &cluster{representative: words, members: []AnswerPath{p}})
		}
	}

	k := len(paths)
	var winner *cluster
	var winnerWeight, winnerSigma float64

	for _, c := range clusters {
		m := len(c.members)
		var sumConf float64
		for _, member := range c.members {
			sumConf += member.Confidence
		}
		meanConf := sumConf / float64(m)

		sigma := float64(m) / float64(k)

		beta := 1.0
		if m >= 2 {
			beta = 1 + math.Max(0, sigma-0.5)
		}

		pi := 1.0
		if m == 1 && k > 1 {
			pi = 0.7
		}

		sequences := make(map[string]bool, m)
		for _, member := range c.members {
			sequences[edgeSequenceKey(member.EdgeTypes)] = true
		}
		u := float64(len(sequences))
		gamma := 1 + 0.2*math.Min(1, u/4)

		weight := meanConf * sigma * beta * pi * gamma
		if winner == nil || weight > winnerWeight {
			winner = c
			winnerWeight = weight
			winnerSigma = sigma
		}
	}

	return Consensus{
		Answer:     representativeAnswer(winner),
		Confidence: winnerSigma,
		Weight:     winnerWeight,
	}, true
}

// representativeAnswer picks the highest-confidence member's original
// answer bytes as the cluster's output text.
func representativeAnswer(c *cluster) []byte {
	best := c.members[0]
	for _, m := range c.members[1:] {
		if m.Confidence > best.Confidence {
			best = m
		}
	}
	return best.Answer
}
