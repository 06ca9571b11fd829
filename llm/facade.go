package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/DenzoSOFTHub/gguf-infer/convcache"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/sample"
	"github.com/google/uuid"
)

// Engine is the per-model facade (C12): it owns the loaded weights, the
// conversation cache, and the collaborators, and serializes generate()
// calls — per spec §5 at most one active generation runs at a time per
// Engine instance.
type Engine struct {
	Weights          *model.Weights
	MaxContextLength int
	Workers          int

	Tokenizer    Tokenizer
	ChatTemplate ChatTemplate
	GPU          GPUBackend // optional; nil disables GPU placement entirely

	cache *convcache.Cache
	mu    sync.Mutex // held for the whole of each Generate call
}

// NewEngine builds a facade over an already-loaded model. maxContextLength
// must not exceed the model's own context_length (spec §6's parameter
// range).
func NewEngine(w *model.Weights, maxContextLength, workers int, tok Tokenizer, tmpl ChatTemplate) (*Engine, error) {
	if uint64(maxContextLength) > w.Config.ContextLength {
		return nil, fmt.Errorf("llm: max_context_length %d exceeds model context_length %d", maxContextLength, w.Config.ContextLength)
	}
	return &Engine{
		Weights:          w,
		MaxContextLength: maxContextLength,
		Workers:          workers,
		Tokenizer:        tok,
		ChatTemplate:     tmpl,
		cache:            convcache.New(),
	}, nil
}

// Request is one generate() call's parameters (spec §4.12).
type Request struct {
	Messages      []Message
	MaxTokens     int
	Sampler       sample.Params
	StopSequences []string
	Stream        StreamCallback // nil disables streaming; tokens still accumulate into Response.Text
}

// Response is one generate() call's result.
type Response struct {
	Text             string
	TokenCount       int
	PromptTokenCount int
	TokensPerSec     float64
	Elapsed          time.Duration
	EOSReached       bool
	Interrupted      bool
}

// Generate runs spec §4.12: render the prompt, resume from the
// conversation cache when the new prompt shares a prefix with a cached
// one, prefill the uncached suffix, then decode up to MaxTokens.
func (e *Engine) Generate(req Request) (*Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reqID := uuid.New().String()
	prompt := e.ChatTemplate.Format(req.Messages)
	promptTokens := append([]int{e.Tokenizer.BOS()}, e.Tokenizer.Encode(prompt)...)
	promptLen := len(promptTokens)

	slog.Debug("llm: generate", "request_id", reqID, "prompt_tokens", promptLen)

	if promptLen >= e.MaxContextLength {
		return &Response{PromptTokenCount: promptLen}, ErrContextOverflow
	}

	cacheKey := fingerprint(req.Messages)
	sess, prefillStart := e.resume(cacheKey, promptTokens)

	var logits []float32
	for i := prefillStart; i < promptLen; i++ {
		logits = sess.forward(promptTokens[i], i)
	}

	sampler, err := sample.New(req.Sampler)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var text strings.Builder
	var generated []int
	eosReached := false
	interrupted := false

	for len(generated) < req.MaxTokens {
		t := sampler.Sample(logits, generated)
		if e.Tokenizer.IsEOS(t) {
			eosReached = true
			break
		}

		piece := e.Tokenizer.Decode(t)
		text.WriteString(piece)
		if req.Stream != nil && !req.Stream(piece, t) {
			interrupted = true
			generated = append(generated, t)
			break
		}
		if matchesStop(text.String(), req.StopSequences) {
			generated = append(generated, t)
			break
		}

		pos := promptLen + len(generated)
		generated = append(generated, t)
		if pos >= e.MaxContextLength-1 {
			break
		}
		logits = sess.forward(t, pos)
	}
	elapsed := time.Since(start)

	allTokens := append(append([]int{}, promptTokens...), generated...)
	e.cache.Put(cacheKey, &convcache.Entry{State: sess, PromptTokens: allTokens})

	resp := &Response{
		Text:             text.String(),
		TokenCount:       len(generated),
		PromptTokenCount: promptLen,
		Elapsed:          elapsed,
		EOSReached:       eosReached,
		Interrupted:      interrupted,
	}
	if elapsed > 0 {
		resp.TokensPerSec = float64(len(generated)) / elapsed.Seconds()
	}
	return resp, nil
}

// Embed runs prefill only and returns the L2-normalized pre-output
// embedding vector (post final RMSNorm, pre output-projection).
func (e *Engine) Embed(messages []Message) ([]float32, error) {
	prompt := e.ChatTemplate.Format(messages)
	tokens := append([]int{e.Tokenizer.BOS()}, e.Tokenizer.Encode(prompt)...)
	if len(tokens) >= e.MaxContextLength {
		return nil, ErrContextOverflow
	}

	sess := newSession(e.Weights, e.MaxContextLength, e.Workers)
	for i, t := range tokens {
		sess.forward(t, i)
	}

	xb := sess.peekXb()
	vec := make([]float32, len(xb))
	copy(vec, xb)
	l2Normalize(vec)
	return vec, nil
}

// resume looks up cacheKey, returning a fresh session and prefillStart=0
// on a miss, or the cached session and the longest-common-prefix-derived
// prefillStart on a hit. A matched key whose tokens diverge entirely
// (prefix length 0 against a non-empty cached prompt) is logged as
// ErrCacheKeyCollision and still falls back to a full prefill — the
// cached session is discarded either way in that case since nothing in
// its KV cache would be reusable.
func (e *Engine) resume(cacheKey string, promptTokens []int) (*session, int) {
	entry := e.cache.Take(cacheKey)
	if entry == nil {
		return newSession(e.Weights, e.MaxContextLength, e.Workers), 0
	}

	sess, ok := entry.State.(*session)
	if !ok {
		return newSession(e.Weights, e.MaxContextLength, e.Workers), 0
	}

	prefixMatch := commonPrefixLen(entry.PromptTokens, promptTokens)
	if prefixMatch == 0 && len(entry.PromptTokens) > 0 {
		slog.Warn("llm: cache key matched but token prefix diverged", "err", ErrCacheKeyCollision)
		return newSession(e.Weights, e.MaxContextLength, e.Workers), 0
	}

	prefillStart := prefixMatch
	if prefillStart > len(promptTokens)-1 {
		prefillStart = len(promptTokens) - 1
	}
	return sess, prefillStart
}

func commonPrefixLen(a, b []int) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func matchesStop(text string, stops []string) bool {
	for _, s := range stops {
		if s != "" && strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// fingerprint derives a deterministic cache key from a message history.
// An empty history has no stable fingerprint; uuid supplies a key that
// is guaranteed never to collide with (and never to be reused by) a
// future request instead.
func fingerprint(messages []Message) string {
	if len(messages) == 0 {
		return uuid.New().String()
	}
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Text))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
}
