package binance

import (
	"time"

	"bouncebot/src/cex"

	"github.com/adshao/go-binance/v2"
)

// BinanceFactory Binance工厂实现
type BinanceFactory struct{}

// CreateClient 按 ConfigValue 创建客户端
func (f *BinanceFactory) CreateClient() (cex.CEXClient, error) {
	config := &ConfigValue

	baseURL := config.BaseURL
	if config.Testnet {
		binance.UseTestnet = true
		baseURL = ""
	}

	return NewClient(config.APIKey, config.SecretKey, baseURL, time.Duration(config.Timeout)*time.Second), nil
}

func init() {
	cex.RegisterCEXFactory("binance", &BinanceFactory{})
}
