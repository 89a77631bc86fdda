package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bouncebot/src/cex"
	"bouncebot/src/config"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterPingCmd 注册ping测试命令
func RegisterPingCmd() {
	var verbose bool
	var account bool
	var timeout int

	cmd.RegisterCmd("ping", "test connectivity to the configured exchange API", func(args *arg.Arg) {
		args.Bool(&verbose, "v", "verbose output with detailed information")
		args.Bool(&account, "a", "also check account access (requires API keys, needed for live trading)")
		args.Int(&timeout, "t", "timeout in seconds (default: 10)")
		args.Parse()

		if timeout <= 0 {
			timeout = 10
		}

		err := runPingTest(verbose, account, timeout)
		if err != nil {
			fmt.Printf("❌ Ping test failed: %v\n", err)
			return
		}
		fmt.Println("✅ Ping test successful!")
	})
}

// runPingTest 执行ping测试
func runPingTest(verbose, account bool, timeoutSeconds int) error {
	client, err := cex.CreateCEXClient(config.AppConfig.Trading.CEX)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Println("🌐 交易所API连通性测试")
		fmt.Println("================================")
		fmt.Printf("📡 交易所: %s\n", client.GetName())
		fmt.Printf("⏰ 超时时间: %d秒\n", timeoutSeconds)
		fmt.Println()
		fmt.Print("🔄 正在测试连接...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	startTime := time.Now()
	err = client.Ping(ctx)
	latency := time.Since(startTime)

	if err != nil {
		if verbose {
			fmt.Printf("\n❌ 连接失败: %v\n", err)
			fmt.Printf("⏱️ 测试耗时: %v\n", latency)
		}
		return err
	}

	if verbose {
		fmt.Printf(" 完成!\n")
		fmt.Printf("⏱️ 响应延迟: %v\n", latency)
		fmt.Printf("🌍 网络质量: %s\n", latencyQuality(latency))
	}

	if account {
		return checkAccount(ctx, client)
	}
	return nil
}

// checkAccount 读取账户余额，确认 API 密钥可用于实盘
func checkAccount(ctx context.Context, client cex.CEXClient) error {
	balances, err := client.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account access failed: %w", err)
	}

	quote := strings.ToUpper(config.AppConfig.Trading.Quote)
	fmt.Printf("🔑 账户可访问，共 %d 种资产\n", len(balances))
	for _, balance := range balances {
		if !balance.Total().IsPositive() {
			continue
		}
		marker := " "
		if strings.ToUpper(balance.Asset) == quote {
			marker = "💵"
		}
		fmt.Printf("%s %-8s free=%s locked=%s\n", marker, balance.Asset, balance.Free.String(), balance.Locked.String())
	}
	return nil
}

func latencyQuality(latency time.Duration) string {
	switch {
	case latency < 100*time.Millisecond:
		return "优秀"
	case latency < 300*time.Millisecond:
		return "良好"
	case latency < time.Second:
		return "一般"
	default:
		return "较差"
	}
}
