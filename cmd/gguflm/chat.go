package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/DenzoSOFTHub/gguf-infer/llm"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat REPL",
		RunE:  runChat,
	}
	addSamplerFlags(cmd)
	cmd.Flags().Int("max-tokens", 512, "maximum tokens per reply")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")

	m, err := loadModel(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	var history []llm.Message
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("gguflm chat — empty line to quit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			return nil
		}
		history = append(history, llm.Message{Role: "user", Text: line})

		req := llm.Request{
			Messages:  history,
			MaxTokens: maxTokens,
			Sampler:   samplerParams(cmd),
			Stream: func(text string, id int) bool {
				fmt.Print(text)
				return true
			},
		}
		resp, err := m.engine.Generate(req)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "gguflm: generate error: %v\n", err)
			continue
		}
		fmt.Println()
		history = append(history, llm.Message{Role: "assistant", Text: resp.Text})
	}
}
