package cmd

import (
	"fmt"
	"os"
	"strings"

	"bouncebot/src/cex"
	"bouncebot/src/config"
)

// resolvePairs 解析命令行交易对列表，为空时使用配置中的全部交易对
func resolvePairs(list string) ([]cex.TradingPair, error) {
	if strings.TrimSpace(list) == "" {
		names := make([]string, 0, len(config.AppConfig.Symbols))
		for _, symbol := range config.AppConfig.Symbols {
			names = append(names, symbol.TradingPair().String())
		}
		list = strings.Join(names, ",")
	}
	return config.AppConfig.ResolveTradingPairs(list)
}

// exitOnError 打印错误并退出
func exitOnError(prefix string, err error) {
	if err == nil {
		return
	}
	fmt.Printf("❌ %s: %v\n", prefix, err)
	os.Exit(1)
}
