package main

import (
	"fmt"
	"strings"

	"github.com/BaSui01/dashscope-starter/llm"
	"github.com/BaSui01/dashscope-starter/llm/chat"
	"github.com/spf13/cobra"
)

// chatResult chat 命令的结构化输出
type chatResult struct {
	Model        string `json:"model" yaml:"model"`
	Content      string `json:"content" yaml:"content"`
	FinishReason string `json:"finish_reason,omitempty" yaml:"finish-reason,omitempty"`
	InputTokens  int    `json:"input_tokens" yaml:"input-tokens"`
	OutputTokens int    `json:"output_tokens" yaml:"output-tokens"`
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var model string
	var temperature float64

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send one prompt to the assembled chat model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			m, err := llm.Unique[*chat.Model](s.registry)
			if err != nil {
				return fmt.Errorf("chat model unavailable: %w", err)
			}

			prompt := chat.NewPrompt(strings.Join(args, " "))
			if model != "" || cmd.Flags().Changed("temperature") {
				o := &chat.Options{Model: model}
				if cmd.Flags().Changed("temperature") {
					o.Temperature = &temperature
				}
				prompt.Options = o
			}

			resp, err := m.Call(cmd.Context(), prompt)
			if err != nil {
				return err
			}
			result := chatResult{
				Model:        resp.Model,
				Content:      resp.Message.Content,
				FinishReason: resp.FinishReason,
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
			}

			w := cmd.OutOrStdout()
			if opts.output != formatTable {
				return render(w, opts.output, result, "", nil, nil)
			}
			fmt.Fprintln(w, result.Content)
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%s · %d in / %d out tokens", result.Model, result.InputTokens, result.OutputTokens)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "override the configured chat model")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "override the configured temperature")
	return cmd
}
