package sample

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsOutOfRangeParams(t *testing.T) {
	cases := []Params{
		{Temperature: 1, TopP: 1.5, RepetitionPenalty: 1},
		{Temperature: 1, TopP: -0.1, RepetitionPenalty: 1},
		{Temperature: 1, TopK: -1, TopP: 1, RepetitionPenalty: 1},
		{Temperature: 1, TopP: 1, RepetitionPenalty: 0},
	}
	for _, p := range cases {
		err := p.Validate()
		require.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	p := Params{Temperature: 0.8, TopK: 40, TopP: 0.95, RepetitionPenalty: 1.1, Seed: 1}
	require.NoError(t, p.Validate())
}

func TestSampleGreedyIgnoresTemperatureAndSeed(t *testing.T) {
	logits := []float32{1, 5, 2, 0}
	s1, err := New(Params{Temperature: 0, RepetitionPenalty: 1, TopP: 1, Seed: 1})
	require.NoError(t, err)
	s2, err := New(Params{Temperature: 0, RepetitionPenalty: 1, TopP: 1, Seed: 999})
	require.NoError(t, err)

	got1 := s1.Sample(append([]float32(nil), logits...), nil)
	got2 := s2.Sample(append([]float32(nil), logits...), nil)
	require.Equal(t, 1, got1)
	require.Equal(t, 1, got2)
}

func TestSampleRepetitionPenaltyCanFlipArgmax(t *testing.T) {
	s, err := New(Params{Temperature: 0, RepetitionPenalty: 10, TopP: 1, Seed: 1})
	require.NoError(t, err)

	logits := []float32{5, 1}
	got := s.Sample(logits, []int{0})
	require.Equal(t, 1, got, "heavy penalty on token 0 should push selection to token 1")
}

func TestSampleTopKOneIsDeterministic(t *testing.T) {
	logits := []float32{1, 5, 2, 0}
	s, err := New(Params{Temperature: 0.7, TopK: 1, TopP: 1, RepetitionPenalty: 1, Seed: 7})
	require.NoError(t, err)
	got := s.Sample(append([]float32(nil), logits...), nil)
	require.Equal(t, 1, got)
}

func TestNucleusTruncateKeepsOnlyTopMassAndRenormalizes(t *testing.T) {
	cand := []scored{{id: 0, logit: 3}, {id: 1, logit: 2}, {id: 2, logit: 1}}
	probs := []float32{0.6, 0.3, 0.1}
	kept := nucleusTruncate(cand, probs, 0.8)
	require.Len(t, kept, 2)
	var sum float32
	for _, p := range kept {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-5)
}
