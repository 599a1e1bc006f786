package diff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quernlabs/quern/pkg/diff"
)

func TestSimilarityIdenticalContent(t *testing.T) {
	assert.Equal(t, float32(1), diff.Similarity([]byte("hello world"), []byte("hello world")))
}

func TestSimilarityEmptyInputs(t *testing.T) {
	assert.Equal(t, float32(1), diff.Similarity(nil, nil))
	assert.Equal(t, float32(0), diff.Similarity([]byte("x"), nil))
	assert.Equal(t, float32(0), diff.Similarity(nil, []byte("x")))
}

func TestSimilarityShortInputs(t *testing.T) {
	assert.Equal(t, float32(1), diff.Similarity([]byte("a"), []byte("a")))
	assert.Equal(t, float32(0), diff.Similarity([]byte("a"), []byte("b")))
	assert.Equal(t, float32(0), diff.Similarity([]byte("a"), []byte("ab")))
}

func TestSimilarityDisjointContent(t *testing.T) {
	assert.Equal(t, float32(0), diff.Similarity([]byte("aaaa"), []byte("bbbb")))
}

func TestSimilaritySmallEdit(t *testing.T) {
	score := diff.Similarity([]byte("hello world"), []byte("hello world!"))
	assert.Greater(t, score, float32(0.9))
	assert.Less(t, score, float32(1))
}

func TestSimilaritySymmetric(t *testing.T) {
	a, b := []byte("the quick brown fox"), []byte("the quick brown cat")
	assert.Equal(t, diff.Similarity(a, b), diff.Similarity(b, a))
}

func TestSimilarityRepeatedBigramsUseMultisetCounts(t *testing.T) {
	// "aaaa" has three "aa" bigrams, "aa" has one; the intersection is one,
	// not three.
	score := diff.Similarity([]byte("aaaa"), []byte("aa"))
	assert.InDelta(t, 0.5, score, 0.0001)
}
