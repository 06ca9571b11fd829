package main

import (
	"strings"

	"github.com/DenzoSOFTHub/gguf-infer/gguf"
	"github.com/DenzoSOFTHub/gguf-infer/llm"
)

// vocabTokenizer is the default llm.Tokenizer collaborator: a minimal,
// vocabulary-driven tokenizer built directly from a GGUF file's
// tokenizer.ggml.tokens array. It is intentionally not a full BPE
// implementation — the engine's Tokenizer contract treats tokenization
// as an external collaborator (spec §6) — but it is enough to drive
// run/chat end to end against any GGUF vocabulary.
type vocabTokenizer struct {
	tokens  []string
	byToken map[string]int
	bos     int
	eos     map[int]bool
}

func newVocabTokenizer(f *gguf.File) *vocabTokenizer {
	tokens := f.KV.Strings("tokenizer.ggml.tokens")
	byToken := make(map[string]int, len(tokens))
	for i, t := range tokens {
		byToken[t] = i
	}

	eos := map[int]bool{
		int(f.KV.Uint("tokenizer.ggml.eos_token_id", 2)): true,
	}
	for _, id := range f.KV.Uints("tokenizer.ggml.eos_token_ids") {
		eos[int(id)] = true
	}

	return &vocabTokenizer{
		tokens:  tokens,
		byToken: byToken,
		bos:     int(f.KV.Uint("tokenizer.ggml.bos_token_id", 1)),
		eos:     eos,
	}
}

func (t *vocabTokenizer) BOS() int { return t.bos }

func (t *vocabTokenizer) IsEOS(id int) bool { return t.eos[id] }

// Encode greedily matches each whitespace-separated word against the
// vocabulary, trying a leading-space variant first (the common BPE
// convention for a word that isn't sentence-initial), then falls back
// to one token per rune when no whole-word match exists.
func (t *vocabTokenizer) Encode(text string) []int {
	var ids []int
	for _, word := range strings.Fields(text) {
		if id, ok := t.byToken["Ġ"+word]; ok {
			ids = append(ids, id)
			continue
		}
		if id, ok := t.byToken[word]; ok {
			ids = append(ids, id)
			continue
		}
		for _, r := range word {
			if id, ok := t.byToken[string(r)]; ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (t *vocabTokenizer) Decode(id int) string {
	if id < 0 || id >= len(t.tokens) {
		return ""
	}
	return strings.ReplaceAll(t.tokens[id], "Ġ", " ")
}

func (t *vocabTokenizer) DecodeAll(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(t.Decode(id))
	}
	return sb.String()
}

// plainChatTemplate is the default llm.ChatTemplate collaborator: it
// joins messages as "role: text" lines. loadModel always uses it; the
// model's own tokenizer.chat_template metadata is not read.
type plainChatTemplate struct{}

func (plainChatTemplate) Format(messages []llm.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("assistant: ")
	return sb.String()
}
