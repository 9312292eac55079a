package main

import (
	"strconv"

	"github.com/BaSui01/dashscope-starter/config"
	"github.com/BaSui01/dashscope-starter/llm/factory"
	"github.com/spf13/cobra"
)

// connectionView 单个能力的解析结果，API Key 已脱敏
type connectionView struct {
	Capability  string `json:"capability" yaml:"capability"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BaseURL     string `json:"base_url,omitempty" yaml:"base-url,omitempty"`
	APIKey      string `json:"api_key,omitempty" yaml:"api-key,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty" yaml:"workspace-id,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Show the effective connection of every capability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			views := resolveAll(cfg)

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				detail := v.APIKey
				if v.Error != "" {
					detail = errorStyle.Render(v.Error)
				}
				rows = append(rows, []string{v.Capability, strconv.FormatBool(v.Enabled), v.BaseURL, detail, v.WorkspaceID})
			}
			return render(cmd.OutOrStdout(), opts.output, views, "Resolved connections",
				[]string{"CAPABILITY", "ENABLED", "BASE URL", "API KEY", "WORKSPACE"}, rows)
		},
	}
}

// resolveAll 解析全部能力的连接，不创建任何客户端
func resolveAll(cfg *config.Config) []connectionView {
	asm := factory.NewAssembler(cfg.Environment, cfg.Properties, nil)
	views := make([]connectionView, 0, len(factory.Capabilities()))
	for _, tag := range factory.Capabilities() {
		v := connectionView{Capability: string(tag), Enabled: asm.Enabled(tag)}
		conn, err := factory.ResolveConnection(&cfg.Properties.Connection, factory.ParentOf(cfg.Properties, tag), tag)
		if err != nil {
			v.Error = err.Error()
		} else {
			masked := conn.Masked()
			v.BaseURL, v.APIKey, v.WorkspaceID = masked.BaseURL, masked.APIKey, masked.WorkspaceID
		}
		views = append(views, v)
	}
	return views
}
