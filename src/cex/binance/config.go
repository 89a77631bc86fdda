package binance

import (
	"github.com/xpwu/go-config/configs"
)

// Config 币安配置
type Config struct {
	APIKey    string `json:"api_key"`    // API密钥
	SecretKey string `json:"secret_key"` // API私钥
	BaseURL   string `json:"base_url"`   // API地址
	Timeout   int    `json:"timeout"`    // 请求超时时间(秒)
	Testnet   bool   `json:"testnet"`    // 使用测试网（REST 与 websocket 同时切换）
}

// ConfigValue 币安配置实例
var ConfigValue = Config{
	APIKey:    "",
	SecretKey: "",
	BaseURL:   "https://api.binance.com",
	Timeout:   10,
	Testnet:   false,
}

func init() {
	configs.Unmarshal(&ConfigValue)
}
