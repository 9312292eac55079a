// =============================================================================
// dashscopectl 命令行入口
// =============================================================================
// 加载 DashScope 配置、执行自动装配并检查结果
//
// 使用方法:
//
//	dashscopectl resolve                          # 查看各能力解析后的连接
//	dashscopectl components --config app.yaml     # 装配并列出注册的组件
//	dashscopectl chat "你好"                       # 用装配出的对话模型发起一次调用
//	dashscopectl embed "hello world"              # 计算一段文本的向量
//	dashscopectl version                          # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// 版本信息（构建时注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
