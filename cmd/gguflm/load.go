package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DenzoSOFTHub/gguf-infer/envconfig"
	"github.com/DenzoSOFTHub/gguf-infer/gguf"
	"github.com/DenzoSOFTHub/gguf-infer/llm"
	"github.com/DenzoSOFTHub/gguf-infer/model"
)

// loadedModel bundles everything a run/chat command needs after
// opening a GGUF file: the file itself (closed by the caller), the
// resolved weights, and the facade.
type loadedModel struct {
	file    *gguf.File
	weights *model.Weights
	engine  *llm.Engine
}

func loadModel(cmd *cobra.Command) (*loadedModel, error) {
	path, _ := cmd.Flags().GetString("model")
	if path == "" {
		return nil, fmt.Errorf("gguflm: no model path given (--model or GGUFLM_MODEL_PATH)")
	}
	ctxLen, _ := cmd.Flags().GetInt("context-length")
	workers, _ := cmd.Flags().GetInt("workers")

	f, err := gguf.Open(path, envconfig.MaxArraySize())
	if err != nil {
		return nil, fmt.Errorf("gguflm: opening %s: %w", path, err)
	}

	cfg, err := model.NewConfig(f.KV)
	if err != nil {
		f.Close()
		return nil, err
	}

	w, err := model.Load(f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}

	if ctxLen <= 0 || uint64(ctxLen) > cfg.ContextLength {
		ctxLen = int(cfg.ContextLength)
	}

	tok := newVocabTokenizer(f)
	tmpl := plainChatTemplate{}

	eng, err := llm.NewEngine(w, ctxLen, workers, tok, tmpl)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &loadedModel{file: f, weights: w, engine: eng}, nil
}

func (m *loadedModel) Close() error {
	return m.file.Close()
}
