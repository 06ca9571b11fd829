// Package sample implements the token sampler (C10): repetition
// penalty, temperature, top-K, top-P (nucleus), and a seeded RNG draw.
package sample

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrInvalidConfig reports spec §7's invalid_sampler_config: a
// parameter outside its valid range.
var ErrInvalidConfig = errors.New("invalid_sampler_config")

// Params are one request's sampling controls (spec §4.10).
type Params struct {
	Temperature       float32 // <=0 selects greedy argmax
	TopK              int     // 0 disables top-k restriction
	TopP              float32 // 1.0 disables nucleus truncation
	RepetitionPenalty float32 // 1.0 disables the penalty
	Seed              int64
}

// Validate checks Params against spec §7's invalid_sampler_config.
func (p Params) Validate() error {
	if p.TopP < 0 || p.TopP > 1 {
		return fmt.Errorf("%w: top_p=%v not in [0,1]", ErrInvalidConfig, p.TopP)
	}
	if p.TopK < 0 {
		return fmt.Errorf("%w: top_k=%d negative", ErrInvalidConfig, p.TopK)
	}
	if p.RepetitionPenalty <= 0 {
		return fmt.Errorf("%w: repetition_penalty=%v must be positive", ErrInvalidConfig, p.RepetitionPenalty)
	}
	return nil
}

// Sampler owns the seeded RNG used across a generation's decode loop; it
// is not safe for concurrent use (one generation at a time per spec §5).
type Sampler struct {
	rng *rand.Rand
	p   Params
}

// New builds a Sampler from validated Params.
func New(p Params) (*Sampler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{rng: rand.New(rand.NewSource(p.Seed)), p: p}, nil
}

type scored struct {
	id    int
	logit float32
}

// Sample runs spec §4.10 steps 1-5 on logits in place, given the ids of
// previously generated tokens, and returns the chosen token id. logits
// is mutated (repetition penalty, temperature scaling).
func (s *Sampler) Sample(logits []float32, history []int) int {
	if s.p.RepetitionPenalty != 1.0 {
		applyRepetitionPenalty(logits, history, s.p.RepetitionPenalty)
	}

	if s.p.Temperature <= 0 {
		return argmax(logits)
	}
	for i := range logits {
		logits[i] /= s.p.Temperature
	}

	cand := make([]scored, len(logits))
	for i, l := range logits {
		cand[i] = scored{id: i, logit: l}
	}
	sort.Slice(cand, func(a, b int) bool { return cand[a].logit > cand[b].logit })

	if s.p.TopK > 0 && s.p.TopK < len(cand) {
		cand = cand[:s.p.TopK]
	}

	probs := softmax(cand)
	probs = nucleusTruncate(cand, probs, s.p.TopP)

	return sampleFrom(s.rng, cand, probs)
}

// applyRepetitionPenalty implements spec §4.10 step 1: previously seen
// tokens with a positive logit are divided by rho, negative logits are
// multiplied by rho — both push the logit toward zero, discouraging
// repetition without a sign flip.
func applyRepetitionPenalty(logits []float32, history []int, rho float32) {
	for _, t := range history {
		if t < 0 || t >= len(logits) {
			continue
		}
		if logits[t] > 0 {
			logits[t] /= rho
		} else {
			logits[t] *= rho
		}
	}
}

func argmax(logits []float32) int {
	best := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	return best
}

func softmax(cand []scored) []float32 {
	max := cand[0].logit
	probs := make([]float32, len(cand))
	var sum float32
	for i, c := range cand {
		e := float32(math.Exp(float64(c.logit - max)))
		probs[i] = e
		sum += e
	}
	if sum == 0 {
		return probs
	}
	inv := 1 / sum
	for i := range probs {
		probs[i] *= inv
	}
	return probs
}

// nucleusTruncate keeps the smallest prefix of cand (already sorted
// descending by logit) whose cumulative probability reaches topP, then
// renormalizes over that prefix.
func nucleusTruncate(cand []scored, probs []float32, topP float32) []float32 {
	if topP >= 1.0 {
		return probs
	}
	var cum float32
	cut := len(probs)
	for i, pr := range probs {
		cum += pr
		if cum >= topP {
			cut = i + 1
			break
		}
	}
	kept := probs[:cut]
	var sum float32
	for _, pr := range kept {
		sum += pr
	}
	if sum > 0 {
		inv := 1 / sum
		for i := range kept {
			kept[i] *= inv
		}
	}
	return kept
}

func sampleFrom(rng *rand.Rand, cand []scored, probs []float32) int {
	r := rng.Float32()
	var cum float32
	for i, pr := range probs {
		cum += pr
		if r <= cum {
			return cand[i].id
		}
	}
	return cand[len(probs)-1].id
}
