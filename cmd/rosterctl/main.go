// SchedulAI 排班命令行工具
// 主程序入口
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fpapale/schedulai/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "rosterctl",
	Short: "排班规格的离线校验与求解工具",
	Long:  "rosterctl 在本地完成排班规格的校验、规范化与求解，不经过服务端，适合在流水线中做规格门禁或离线跑批。",
}

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 日志走 stderr，保证 stdout 只输出结果 JSON
	logger.Init(logger.Config{
		Level:  envOrDefault("LOG_LEVEL", "warn"),
		Format: "console",
		Output: "stderr",
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
