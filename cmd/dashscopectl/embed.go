package main

import (
	"fmt"
	"strings"

	"github.com/BaSui01/dashscope-starter/llm"
	"github.com/BaSui01/dashscope-starter/llm/embedding"
	"github.com/spf13/cobra"
)

// embedResult embed 命令的结构化输出
type embedResult struct {
	Dimensions int       `json:"dimensions" yaml:"dimensions"`
	Vector     []float32 `json:"vector" yaml:"vector"`
}

func newEmbedCmd(opts *rootOptions) *cobra.Command {
	var preview int

	cmd := &cobra.Command{
		Use:   "embed <text>",
		Short: "Embed text with the primary embedding model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			provider, err := llm.Unique[embedding.Provider](s.registry)
			if err != nil {
				return fmt.Errorf("embedding model unavailable: %w", err)
			}

			vector, err := provider.Embed(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			result := embedResult{Dimensions: len(vector), Vector: truncate(vector, preview)}

			w := cmd.OutOrStdout()
			if opts.output != formatTable {
				return render(w, opts.output, result, "", nil, nil)
			}
			fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d dimensions", result.Dimensions)))
			fmt.Fprintln(w, result.Vector)
			return nil
		},
	}

	cmd.Flags().IntVar(&preview, "preview", 8, "number of leading components to print, 0 for all")
	return cmd
}

func truncate(v []float32, n int) []float32 {
	if n <= 0 || n >= len(v) {
		return v
	}
	return v[:n]
}
