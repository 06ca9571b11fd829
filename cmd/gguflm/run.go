package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DenzoSOFTHub/gguf-infer/llm"
	"github.com/DenzoSOFTHub/gguf-infer/sample"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate one completion for a prompt",
		RunE:  runRun,
	}
	addSamplerFlags(cmd)
	cmd.Flags().String("prompt", "", "prompt text (required)")
	cmd.Flags().Int("max-tokens", 256, "maximum tokens to generate")
	cmd.Flags().StringSlice("stop", nil, "stop sequences")
	return cmd
}

func addSamplerFlags(cmd *cobra.Command) {
	cmd.Flags().Float32("temperature", 0.8, "sampling temperature; <=0 selects greedy argmax")
	cmd.Flags().Int("top-k", 40, "top-k restriction; 0 disables")
	cmd.Flags().Float32("top-p", 0.95, "nucleus probability mass")
	cmd.Flags().Float32("repetition-penalty", 1.1, "repetition penalty; 1.0 disables")
	cmd.Flags().Int64("seed", 42, "RNG seed")
}

func samplerParams(cmd *cobra.Command) sample.Params {
	temp, _ := cmd.Flags().GetFloat32("temperature")
	topK, _ := cmd.Flags().GetInt("top-k")
	topP, _ := cmd.Flags().GetFloat32("top-p")
	rep, _ := cmd.Flags().GetFloat32("repetition-penalty")
	seed, _ := cmd.Flags().GetInt64("seed")
	return sample.Params{
		Temperature:       temp,
		TopK:              topK,
		TopP:              topP,
		RepetitionPenalty: rep,
		Seed:              seed,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	if prompt == "" {
		return fmt.Errorf("gguflm: --prompt is required")
	}
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	stops, _ := cmd.Flags().GetStringSlice("stop")

	m, err := loadModel(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	req := llm.Request{
		Messages:      []llm.Message{{Role: "user", Text: prompt}},
		MaxTokens:     maxTokens,
		Sampler:       samplerParams(cmd),
		StopSequences: stops,
		Stream: func(text string, id int) bool {
			fmt.Print(text)
			return true
		},
	}

	resp, err := m.engine.Generate(req)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Fprintf(cmd.ErrOrStderr(), "\n[%d tokens, %.1f tok/s]\n", resp.TokenCount, resp.TokensPerSec)
	return nil
}
