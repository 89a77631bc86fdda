package trading

import (
	"github.com/xpwu/go-config/configs"
)

// SystemConfig 交易系统运行配置
type SystemConfig struct {
	StrategyName           string  `json:"strategy_name"`            // 回测记录中的策略名称
	RecentTrades           int     `json:"recent_trades"`            // 结果中显示的最近成交数
	ShutdownTimeoutSeconds int     `json:"shutdown_timeout_seconds"` // 退出平仓的超时时间
	MinRestoreNotional     float64 `json:"min_restore_notional"`     // 按账户余额恢复持仓的最小市值，过滤零头
}

// SystemConfigValue 交易系统配置实例
var SystemConfigValue = SystemConfig{
	StrategyName:           "bounce",
	RecentTrades:           10,
	ShutdownTimeoutSeconds: 30,
	MinRestoreNotional:     10.0,
}

func init() {
	configs.Unmarshal(&SystemConfigValue)
}
