package ensemble

import "math"

// normalize scales a positive score map so its values sum to 1. Non-positive
// scores are dropped. An all-zero input returns an empty map.
func normalize(scores map[string]float64) map[string]float64 {
	var sum float64
	for _, s := range scores {
		if s > 0 {
			sum += s
		}
	}
	if sum == 0 {
		return map[string]float64{}
	}

	probs := make(map[string]float64, len(scores))
	for c, s := range scores {
		if s > 0 {
			probs[c] = s / sum
		}
	}
	return probs
}

// topCandidate returns the key with the highest probability, breaking ties
// lexicographically so equal inputs always pick the same winner.
func topCandidate(probs map[string]float64) string {
	var (
		best     string
		bestProb = math.Inf(-1)
	)
	for c, p := range probs {
		if p > bestProb || (p == bestProb && c < best) {
			best = c
			bestProb = p
		}
	}
	return best
}

// confidenceFromProbs derives a unit confidence from how concentrated the
// distribution is: the top probability, tempered toward the uniform baseline
// so a near-flat distribution reads as low confidence.
func confidenceFromProbs(probs map[string]float64) float64 {
	if len(probs) == 0 {
		return 0
	}
	top := probs[topCandidate(probs)]
	uniform := 1 / float64(len(probs))
	conf := uniform + (top-uniform)*0.9
	return clamp01(conf)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// softmax maps scores to a probability distribution with the given
// temperature. Higher temperature flattens the distribution.
func softmax(scores map[string]float64, temperature float64) map[string]float64 {
	if len(scores) == 0 {
		return map[string]float64{}
	}
	if temperature <= 0 {
		temperature = 1
	}

	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}

	exps := make(map[string]float64, len(scores))
	var sum float64
	for c, s := range scores {
		e := math.Exp((s - max) / temperature)
		exps[c] = e
		sum += e
	}

	probs := make(map[string]float64, len(exps))
	for c, e := range exps {
		probs[c] = e / sum
	}
	return probs
}
