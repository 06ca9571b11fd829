// Command gguflm is the CLI entry point (A2): run (one-shot
// completion), chat (REPL loop), and inspect (GGUF metadata/tensor
// directory dump), built on Cobra in the teacher's cmd/cmd.go style.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DenzoSOFTHub/gguf-infer/envconfig"
)

func newCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	root := &cobra.Command{
		Use:           "gguflm",
		Short:         "Local GGUF inference engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("model", envconfig.ModelPath(), "path to a GGUF model file (GGUFLM_MODEL_PATH)")
	root.PersistentFlags().Int("context-length", envconfig.ContextLength(), "max context length (GGUFLM_CONTEXT_LENGTH)")
	root.PersistentFlags().Int("workers", envconfig.Workers(), "worker goroutines for parallel ops (GGUFLM_WORKERS)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newInspectCmd())
	return root
}

func main() {
	slog.SetLogLoggerLevel(envconfig.LogLevel())
	if err := newCLI().Execute(); err != nil {
		slog.Error("gguflm: fatal", "err", err)
		os.Exit(1)
	}
}
