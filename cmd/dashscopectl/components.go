package main

import (
	"github.com/BaSui01/dashscope-starter/llm"
	"github.com/BaSui01/dashscope-starter/llm/factory"
	"github.com/spf13/cobra"
)

// componentsReport components 命令的结构化输出
type componentsReport struct {
	Components []llm.ComponentInfo `json:"components" yaml:"components"`
	Outcomes   map[string]string   `json:"outcomes" yaml:"outcomes"`
}

func newComponentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "components",
		Short: "Run auto-wiring and list the registered components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			report := componentsReport{
				Components: s.registry.List(),
				Outcomes:   s.assemblyOutcomes(),
			}

			w := cmd.OutOrStdout()
			if opts.output != formatTable {
				return render(w, opts.output, report, "", nil, nil)
			}

			rows := make([][]string, 0, len(report.Components))
			for _, c := range report.Components {
				primary := ""
				if c.Primary {
					primary = "yes"
				}
				rows = append(rows, []string{c.Name, c.Type, primary})
			}
			if err := render(w, formatTable, nil, "Registered components",
				[]string{"NAME", "TYPE", "PRIMARY"}, rows); err != nil {
				return err
			}

			outcomeRows := make([][]string, 0, len(report.Outcomes))
			for _, tag := range factory.Capabilities() {
				outcomeRows = append(outcomeRows, []string{string(tag), report.Outcomes[string(tag)]})
			}
			return render(w, formatTable, nil, "Assembly outcomes",
				[]string{"CAPABILITY", "OUTCOME"}, outcomeRows)
		},
	}
}
