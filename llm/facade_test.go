package llm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministicAndOrderSensitive(t *testing.T) {
	a := []Message{{Role: "user", Text: "hi"}, {Role: "assistant", Text: "hello"}}
	b := []Message{{Role: "user", Text: "hi"}, {Role: "assistant", Text: "hello"}}
	require.Equal(t, fingerprint(a), fingerprint(b))

	c := []Message{{Role: "assistant", Text: "hello"}, {Role: "user", Text: "hi"}}
	require.NotEqual(t, fingerprint(a), fingerprint(c))
}

func TestFingerprintDistinguishesRoleTextBoundary(t *testing.T) {
	// "ab"/"c" and "a"/"bc" must not collide despite concatenating to the
	// same bytes without the role/text separators.
	a := []Message{{Role: "ab", Text: "c"}}
	b := []Message{{Role: "a", Text: "bc"}}
	require.NotEqual(t, fingerprint(a), fingerprint(b))
}

func TestFingerprintEmptyHistoryIsUnstable(t *testing.T) {
	require.NotEqual(t, fingerprint(nil), fingerprint(nil))
}

func TestCommonPrefixLen(t *testing.T) {
	require.Equal(t, 3, commonPrefixLen([]int{1, 2, 3, 4}, []int{1, 2, 3, 9}))
	require.Equal(t, 0, commonPrefixLen([]int{1, 2}, []int{9, 2}))
	require.Equal(t, 2, commonPrefixLen([]int{1, 2}, []int{1, 2, 3}))
	require.Equal(t, 0, commonPrefixLen(nil, []int{1}))
}

func TestMatchesStop(t *testing.T) {
	require.True(t, matchesStop("the quick brown fox", []string{"brown"}))
	require.False(t, matchesStop("the quick brown fox", []string{"slow"}))
	require.False(t, matchesStop("anything", []string{""}))
	require.False(t, matchesStop("anything", nil))
}

func TestL2NormalizeProducesUnitVector(t *testing.T) {
	v := []float32{3, 4}
	l2Normalize(v)
	require.InDelta(t, 0.6, float64(v[0]), 1e-5)
	require.InDelta(t, 0.8, float64(v[1]), 1e-5)

	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-5)
}

func TestL2NormalizeZeroVectorIsNoOp(t *testing.T) {
	v := []float32{0, 0, 0}
	l2Normalize(v)
	require.Equal(t, []float32{0, 0, 0}, v)
}
