package main

import (
	"fmt"
	"strings"

	"github.com/BaSui01/dashscope-starter/config"
	"github.com/spf13/cobra"
)

// rootOptions 所有子命令共享的全局参数
type rootOptions struct {
	configPath string
	envPrefix  string
	sets       []string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "dashscopectl",
		Short: "Inspect and exercise DashScope auto-wiring",
		Long: `dashscopectl loads spring.ai.dashscope.* properties from a config file,
the environment and --set flags, then runs the same conditional assembly an
application would run at startup.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	cmd.SetVersionTemplate(fmt.Sprintf("dashscopectl %s (commit %s, built %s)\n", Version, GitCommit, BuildTime))

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .yml or .properties)")
	pf.StringVar(&opts.envPrefix, "env-prefix", "", "prefix for environment variables, e.g. APP")
	pf.StringArrayVar(&opts.sets, "set", nil, "explicit property key=value, may be repeated")
	pf.StringVarP(&opts.output, "output", "o", formatTable, "output format: table, yaml or json")

	cmd.AddCommand(
		newResolveCmd(opts),
		newComponentsCmd(opts),
		newChatCmd(opts),
		newEmbedCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig 按 默认值 → 配置文件 → 环境变量 → --set 的优先级加载配置
func (o *rootOptions) loadConfig() (*config.Config, error) {
	explicit, err := parseSets(o.sets)
	if err != nil {
		return nil, err
	}
	if err := validateFormat(o.output); err != nil {
		return nil, err
	}
	return config.NewLoader().
		WithConfigPath(o.configPath).
		WithEnvPrefix(o.envPrefix).
		WithProperties(explicit).
		WithValidator(func(c *config.Config) error { return c.Validate() }).
		Load()
}

// parseSets 解析 --set key=value
func parseSets(sets []string) (map[string]string, error) {
	out := make(map[string]string, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", s)
		}
		out[key] = value
	}
	return out, nil
}
