package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DenzoSOFTHub/gguf-infer/gguf"
)

func minimalLlamaKV() gguf.KV {
	return gguf.KV{
		"general.architecture":       "llama",
		"general.name":               "test-model",
		"llama.block_count":          uint32(2),
		"llama.embedding_length":     uint32(8),
		"llama.context_length":       uint32(4096),
		"llama.attention.head_count": uint32(4),
	}
}

func TestNewConfigResolvesCoreHyperparameters(t *testing.T) {
	c, err := NewConfig(minimalLlamaKV())
	require.NoError(t, err)
	require.Equal(t, "llama", c.Architecture)
	require.Equal(t, uint64(2), c.BlockCount)
	require.Equal(t, uint64(8), c.EmbeddingLength)
	require.Equal(t, uint64(4), c.HeadCount)
	require.Equal(t, float32(10000.0), c.RopeFreqBase)
	require.False(t, c.RopeNeox, "llama architecture uses the NORMAL rope layout")
}

func TestNewConfigDefaultsNeoxLayoutForOtherArchitectures(t *testing.T) {
	kv := minimalLlamaKV()
	kv["general.architecture"] = "qwen2"
	delete(kv, "llama.block_count")
	delete(kv, "llama.embedding_length")
	delete(kv, "llama.attention.head_count")
	kv["qwen2.block_count"] = uint32(2)
	kv["qwen2.embedding_length"] = uint32(8)
	kv["qwen2.attention.head_count"] = uint32(4)

	c, err := NewConfig(kv)
	require.NoError(t, err)
	require.True(t, c.RopeNeox)
}

func TestNewConfigRejectsMissingArchitecture(t *testing.T) {
	_, err := NewConfig(gguf.KV{})
	require.ErrorIs(t, err, ErrUnsupportedArchitecture)
}

func TestNewConfigRejectsMissingCoreHyperparameters(t *testing.T) {
	kv := gguf.KV{"general.architecture": "llama"}
	_, err := NewConfig(kv)
	require.ErrorIs(t, err, ErrMissingRequiredTensor)
}

func TestNewConfigDeepSeek2DisablesNormTopKProbByDefault(t *testing.T) {
	kv := minimalLlamaKV()
	kv["general.architecture"] = "deepseek2"
	delete(kv, "llama.block_count")
	delete(kv, "llama.embedding_length")
	delete(kv, "llama.attention.head_count")
	kv["deepseek2.block_count"] = uint32(2)
	kv["deepseek2.embedding_length"] = uint32(8)
	kv["deepseek2.attention.head_count"] = uint32(4)

	c, err := NewConfig(kv)
	require.NoError(t, err)
	require.False(t, c.NormTopKProb)
}

func TestPostNormOnlyAndGeGLUArchitectureGates(t *testing.T) {
	c := &Config{Architecture: "olmo2"}
	require.True(t, c.PostNormOnly())
	require.False(t, c.GeGLU())

	c2 := &Config{Architecture: "gemma3"}
	require.False(t, c2.PostNormOnly())
	require.True(t, c2.GeGLU())
}
