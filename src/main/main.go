package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "bouncebot/src/cex/binance"
	tradingcmd "bouncebot/src/cmd"
	"bouncebot/src/config"

	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-config/configs"
	"github.com/xpwu/go-log/log"
)

// configEnv 显式指定配置文件所在目录
const configEnv = "BOUNCEBOT_HOME"

func main() {
	configs.SetConfigurator(&configs.JsonConfig{})
	chdirToConfig()

	if err := configs.ReadWithErr(); err != nil {
		// 没有配置文件时写出一份默认配置
		if printErr := configs.Print(); printErr != nil {
			fmt.Printf("❌ 生成默认配置文件失败: %v\n", printErr)
			os.Exit(1)
		}
		fmt.Println("📝 已生成默认 config.json，请修改后重新运行")
		os.Exit(1)
	}

	if err := config.AppConfig.Validate(); err != nil {
		fmt.Printf("❌ 配置验证失败: %v\n", err)
		os.Exit(1)
	}

	_, logger := log.WithCtx(context.Background())
	logger.PushPrefix("BounceBot")
	logger.Info("反弹交易机器人启动", "cex", config.AppConfig.Trading.CEX,
		"mode", config.AppConfig.Trading.Mode, "timeframe", config.AppConfig.Trading.Timeframe)

	tradingcmd.RegisterAllTradingCommands()
	cmd.Run()
}

// chdirToConfig 切换到配置文件所在目录
//
// 查找顺序：BOUNCEBOT_HOME，可执行文件目录，当前目录。都没有时保持当前目录，由 configs 生成默认配置。
func chdirToConfig() {
	var dirs []string
	if home := os.Getenv(configEnv); home != "" {
		dirs = append(dirs, home)
	}
	if execPath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(execPath))
	}

	for _, dir := range dirs {
		if _, err := os.Stat(filepath.Join(dir, "config.json")); err == nil {
			_ = os.Chdir(dir)
			return
		}
	}
}
