package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/DenzoSOFTHub/gguf-infer/envconfig"
	"github.com/DenzoSOFTHub/gguf-infer/gguf"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump a GGUF file's metadata and tensor directory",
		RunE:  runInspect,
	}
	cmd.Flags().Bool("tensors", false, "also list every tensor (name, type, shape)")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("model")
	if path == "" {
		return fmt.Errorf("gguflm: no model path given (--model or GGUFLM_MODEL_PATH)")
	}
	withTensors, _ := cmd.Flags().GetBool("tensors")

	f, err := gguf.Open(path, envconfig.MaxArraySize())
	if err != nil {
		return err
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version: %d\n", f.Version)
	fmt.Fprintf(out, "architecture: %s\n", f.KV.Architecture())
	fmt.Fprintf(out, "tensors: %d\n\n", len(f.Tensors.Items()))

	fmt.Fprintln(out, "metadata:")
	for pair := f.KeyOrder.Oldest(); pair != nil; pair = pair.Next() {
		printKV(out, pair)
	}

	if withTensors {
		fmt.Fprintln(out, "\ntensor directory:")
		for _, t := range f.Tensors.Items() {
			fmt.Fprintf(out, "  %-40s %-8s %v\n", t.Name, t.Type(), t.Shape)
		}
	}
	return nil
}

func printKV(out io.Writer, pair *orderedmap.Pair[string, any]) {
	if v, ok := pair.Value.([]string); ok && len(v) > 5 {
		fmt.Fprintf(out, "  %-40s [%d strings]\n", pair.Key, len(v))
		return
	}
	fmt.Fprintf(out, "  %-40s %v\n", pair.Key, pair.Value)
}
