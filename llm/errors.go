package llm

import "errors"

// Sentinel errors per spec §7. ErrContextOverflow is returned through
// the error return; Generate pairs it with a Response that carries only
// PromptTokenCount (empty Text). Interruption has no sentinel: Generate
// reports it as Response.Interrupted with a nil error.
var (
	// ErrContextOverflow reports a prompt that leaves no room for even
	// one decode step (prompt_len >= max_context_length).
	ErrContextOverflow = errors.New("context_overflow")
	// ErrCacheKeyCollision is logged, never returned: a matched cache_key
	// whose cached prompt diverges entirely from the new one falls back
	// to a full prefill rather than failing the request.
	ErrCacheKeyCollision = errors.New("cache_key_collision")
)
