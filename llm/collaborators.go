// Package llm is the engine facade (C12): per-request prefill/decode
// orchestration over the model/rope/attention/ffn/transformer/engine
// stack, plus the collaborator contracts (spec §6) that keep the core
// inference logic oblivious to the tokenizer, chat-template renderer,
// GPU backend, and streaming transport actually in use — mirroring the
// teacher's small collaborator interfaces in model/model.go
// (model.Model, model.TextProcessor).
package llm

// Message is one turn in a chat history, handed to the ChatTemplate
// collaborator.
type Message struct {
	Role string
	Text string
}

// Tokenizer is the external tokenizer collaborator. Encode/Decode never
// see raw bytes; the engine treats token ids as opaque integers besides
// the BOS/EOS bookkeeping below.
type Tokenizer interface {
	Encode(text string) []int
	Decode(id int) string
	DecodeAll(ids []int) string
	BOS() int
	// IsEOS reports whether id is the model's eos_token_id or one of its
	// additional stop token ids, per GGUF tokenizer metadata.
	IsEOS(id int) bool
}

// ChatTemplate renders a message history into the model's expected
// prompt string. The engine always prepends BOS to the tokenization of
// the result; the template must not do so itself.
type ChatTemplate interface {
	Format(messages []Message) string
}

// GPUBackend is the optional GPU buffer-manager collaborator. When set
// on an Engine, weight constructors may consult it to place a tensor
// group on GPU instead of CPU; the core forward pass is unaware of
// which backend actually serves a FloatTensor's View. Left unimplemented
// here — this repository's quant/kernel layers are CPU-only — but the
// seam is modeled so a GPU-backed FloatTensor provider can be substituted
// without touching model/attention/ffn/transformer/engine.
type GPUBackend interface {
	// Active reports whether GPU placement should be attempted for the
	// tensor group currently being constructed.
	Active() bool
}

// StreamCallback receives each decoded token's text and id as it is
// produced. Returning false is the only cancellation signal (spec §5);
// the facade stops between tokens, never mid-forward-pass.
type StreamCallback func(text string, id int) bool
