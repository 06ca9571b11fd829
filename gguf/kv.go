package gguf

import (
	"log/slog"
	"slices"
	"strings"
)

// KV holds the decoded GGUF metadata key/value table. Keys outside the
// "general." and "tokenizer." namespaces are implicitly prefixed with
// the model's architecture name, matching the canonical GGUF convention
// (e.g. "attention.head_count" resolves to "llama.attention.head_count").
type KV map[string]any

func (kv KV) Architecture() string {
	return kv.String("general.architecture", "unknown")
}

func (kv KV) Name() string {
	return kv.String("general.name", "unknown")
}

func (kv KV) BlockCount() uint64 {
	return uint64(kv.Uint("block_count"))
}

func (kv KV) EmbeddingLength() uint64 {
	return uint64(kv.Uint("embedding_length"))
}

func (kv KV) ContextLength() uint64 {
	return uint64(kv.Uint("context_length"))
}

func (kv KV) HeadCount() uint64 {
	return uint64(kv.Uint("attention.head_count"))
}

func (kv KV) HeadCountKV() uint64 {
	return uint64(kv.Uint("attention.head_count_kv", kv.Uint("attention.head_count")))
}

func (kv KV) EmbeddingHeadCountMax() uint64 {
	if heads := kv.HeadCount(); heads > 0 {
		return kv.EmbeddingLength() / heads
	}
	return 0
}

func (kv KV) EmbeddingHeadCountK() uint64 {
	return uint64(kv.Uint("attention.key_length", uint32(kv.EmbeddingHeadCountMax())))
}

func (kv KV) EmbeddingHeadCountV() uint64 {
	return uint64(kv.Uint("attention.value_length", uint32(kv.EmbeddingHeadCountMax())))
}

func (kv KV) RMSNormEps() float32 {
	return kv.Float("attention.layer_norm_rms_epsilon", 1e-5)
}

func (kv KV) RopeFreqBase() float32 {
	return kv.Float("rope.freq_base", 10000.0)
}

func (kv KV) RopeDimensionCount() uint64 {
	return uint64(kv.Uint("rope.dimension_count", uint32(kv.EmbeddingHeadCountK())))
}

func (kv KV) ChatTemplate() string {
	return kv.String("tokenizer.chat_template")
}

func (kv KV) String(key string, defaultValue ...string) string {
	val, _ := keyValue(kv, key, append(defaultValue, "")...)
	return val
}

func (kv KV) Uint(key string, defaultValue ...uint32) uint32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

func (kv KV) Int(key string, defaultValue ...int32) int32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

func (kv KV) Float(key string, defaultValue ...float32) float32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

func (kv KV) Bool(key string, defaultValue ...bool) bool {
	val, _ := keyValue(kv, key, append(defaultValue, false)...)
	return val
}

func (kv KV) Strings(key string, defaultValue ...[]string) []string {
	val, _ := keyValue(kv, key, &array[string]{values: append(defaultValue, []string(nil))[0]})
	return val.values
}

func (kv KV) Uints(key string, defaultValue ...[]uint32) []uint32 {
	val, _ := keyValue(kv, key, &array[uint32]{values: append(defaultValue, []uint32(nil))[0]})
	return val.values
}

func (kv KV) Floats(key string, defaultValue ...[]float32) []float32 {
	val, _ := keyValue(kv, key, &array[float32]{values: append(defaultValue, []float32(nil))[0]})
	return val.values
}

// SortedKeys returns the metadata keys in lexical order, for diagnostics
// that want a stable but not file-faithful ordering. File.KeyOrder
// preserves the GGUF file's own declaration order instead.
func (kv KV) SortedKeys() []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type valTypes interface {
	valueTypes | arrayValueTypes
}

func keyValue[T valTypes](kv KV, key string, defaultValue ...T) (T, bool) {
	if !strings.HasPrefix(key, "tokenizer.") && !strings.HasPrefix(key, "general.") {
		key = kv.Architecture() + "." + key
	}
	if val, ok := kv[key].(T); ok {
		return val, true
	}
	slog.Debug("gguf: key not found, using default", "key", key)
	return defaultValue[0], false
}
