package cex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradingPair 标准化的交易对
type TradingPair struct {
	Base  string // 基础货币，如 BTC, ETH, SOL
	Quote string // 计价货币，如 USDT, USDC
}

// String 返回标准化的交易对字符串表示
func (tp TradingPair) String() string {
	return tp.Base + "/" + tp.Quote
}

// Symbol 返回交易所使用的无分隔符代码，如 BTCUSDT
func (tp TradingPair) Symbol() string {
	return strings.ToUpper(tp.Base) + strings.ToUpper(tp.Quote)
}

// ParseTradingPair 解析 "BTC/USDT" 形式的交易对
func ParseTradingPair(s string) (TradingPair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TradingPair{}, fmt.Errorf("invalid trading pair: %q (expected BASE/QUOTE)", s)
	}
	return TradingPair{Base: strings.ToUpper(parts[0]), Quote: strings.ToUpper(parts[1])}, nil
}

// KlineData 标准化的K线数据，OpenTime 作为K线时间戳
type KlineData struct {
	TradingPair         TradingPair     `json:"trading_pair"`
	OpenTime            time.Time       `json:"open_time"`              // 开盘时间
	Open                decimal.Decimal `json:"open"`                   // 开盘价
	High                decimal.Decimal `json:"high"`                   // 最高价
	Low                 decimal.Decimal `json:"low"`                    // 最低价
	Close               decimal.Decimal `json:"close"`                  // 收盘价
	Volume              decimal.Decimal `json:"volume"`                 // 成交量
	CloseTime           time.Time       `json:"close_time"`             // 收盘时间
	QuoteVolume         decimal.Decimal `json:"quote_volume"`           // 成交额
	TakerBuyVolume      decimal.Decimal `json:"taker_buy_volume"`       // 主动买入成交量
	TakerBuyQuoteVolume decimal.Decimal `json:"taker_buy_quote_volume"` // 主动买入成交额
}

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderRequest 下单请求
type OrderRequest struct {
	TradingPair   TradingPair     `json:"trading_pair"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price,omitempty"` // 限价单时需要
	ClientOrderID string          `json:"client_order_id,omitempty"`
}

// OrderResult 订单结果
type OrderResult struct {
	TradingPair   TradingPair     `json:"trading_pair"`
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Side          OrderSide       `json:"side"`
	Status        string          `json:"status"`
	Type          OrderType       `json:"type"`
	TransactTime  time.Time       `json:"transact_time"`
}

// AccountBalance 账户余额
type AccountBalance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Total 可用加冻结
func (b *AccountBalance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// CEXClient 中心化交易所客户端接口
type CEXClient interface {
	// GetName 获取交易所名称
	GetName() string

	// GetKlines 获取最近 limit 根K线
	GetKlines(ctx context.Context, pair TradingPair, interval string, limit int) ([]*KlineData, error)

	// GetKlinesWithTimeRange 获取指定时间范围的K线数据
	GetKlinesWithTimeRange(ctx context.Context, pair TradingPair, interval string, startTime, endTime time.Time, limit int) ([]*KlineData, error)

	// PlaceOrder 下单
	PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResult, error)

	// GetAccount 获取账户余额
	GetAccount(ctx context.Context) ([]*AccountBalance, error)

	// Ping 测试连接
	Ping(ctx context.Context) error
}

// KlineHandler 收到一根已收盘K线时回调
type KlineHandler func(kline *KlineData)

// KlineStreamer 实时K线推送
type KlineStreamer interface {
	// SubscribeKlines 订阅已收盘K线，返回的 stop 用于取消订阅；done 在连接结束时关闭
	SubscribeKlines(ctx context.Context, pair TradingPair, interval string, handler KlineHandler, errHandler func(error)) (done <-chan struct{}, stop func(), err error)
}
