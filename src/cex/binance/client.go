package binance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bouncebot/src/cex"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// Client Binance客户端实现
type Client struct {
	client *binance.Client
}

// NewClient 创建Binance客户端，baseURL 为空时使用库默认地址
func NewClient(apiKey, secretKey, baseURL string, timeout time.Duration) *Client {
	binanceClient := binance.NewClient(apiKey, secretKey)
	if baseURL != "" {
		binanceClient.BaseURL = baseURL
	}
	if timeout > 0 {
		binanceClient.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{client: binanceClient}
}

// GetName 获取交易所名称
func (c *Client) GetName() string {
	return "binance"
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// convertKlineData 转换Binance K线数据为标准格式
func convertKlineData(kline *binance.Kline, pair cex.TradingPair) *cex.KlineData {
	return &cex.KlineData{
		TradingPair:         pair,
		OpenTime:            time.UnixMilli(kline.OpenTime).UTC(),
		Open:                parseDecimal(kline.Open),
		High:                parseDecimal(kline.High),
		Low:                 parseDecimal(kline.Low),
		Close:               parseDecimal(kline.Close),
		Volume:              parseDecimal(kline.Volume),
		CloseTime:           time.UnixMilli(kline.CloseTime).UTC(),
		QuoteVolume:         parseDecimal(kline.QuoteAssetVolume),
		TakerBuyVolume:      parseDecimal(kline.TakerBuyBaseAssetVolume),
		TakerBuyQuoteVolume: parseDecimal(kline.TakerBuyQuoteAssetVolume),
	}
}

// GetKlines 获取K线数据
func (c *Client) GetKlines(ctx context.Context, pair cex.TradingPair, interval string, limit int) ([]*cex.KlineData, error) {
	klines, err := c.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines from Binance: %w", err)
	}

	result := make([]*cex.KlineData, len(klines))
	for i, kline := range klines {
		result[i] = convertKlineData(kline, pair)
	}

	return result, nil
}

// GetKlinesWithTimeRange 获取指定时间范围的K线数据，按 limit 分页拉取
func (c *Client) GetKlinesWithTimeRange(ctx context.Context, pair cex.TradingPair, interval string, startTime, endTime time.Time, limit int) ([]*cex.KlineData, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	var allKlines []*cex.KlineData
	currentStart := startTime

	for currentStart.Before(endTime) {
		klines, err := c.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(interval).
			StartTime(currentStart.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get klines from Binance: %w", err)
		}

		if len(klines) == 0 {
			break
		}

		for _, kline := range klines {
			allKlines = append(allKlines, convertKlineData(kline, pair))
		}

		lastKline := klines[len(klines)-1]
		currentStart = time.UnixMilli(lastKline.CloseTime + 1)

		if len(klines) < limit {
			break
		}
	}

	return allKlines, nil
}

// PlaceOrder 下单
func (c *Client) PlaceOrder(ctx context.Context, order cex.OrderRequest) (*cex.OrderResult, error) {
	side := binance.SideTypeBuy
	if order.Side == cex.OrderSideSell {
		side = binance.SideTypeSell
	}

	service := c.client.NewCreateOrderService().
		Symbol(order.TradingPair.Symbol()).
		Side(side).
		Type(binance.OrderType(order.Type)).
		Quantity(order.Quantity.String())

	if order.ClientOrderID != "" {
		service = service.NewClientOrderID(order.ClientOrderID)
	}
	if order.Type == cex.OrderTypeLimit {
		service = service.Price(order.Price.String()).TimeInForce(binance.TimeInForceTypeGTC)
	}

	result, err := service.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place %s order on Binance: %w", order.Side, err)
	}

	return &cex.OrderResult{
		TradingPair:   order.TradingPair,
		OrderID:       fmt.Sprintf("%d", result.OrderID),
		ClientOrderID: result.ClientOrderID,
		Price:         averageFillPrice(result),
		Quantity:      parseDecimal(result.ExecutedQuantity),
		Side:          order.Side,
		Status:        string(result.Status),
		Type:          cex.OrderType(result.Type),
		TransactTime:  time.UnixMilli(result.TransactTime).UTC(),
	}, nil
}

// averageFillPrice 市价单的 Price 字段为0，用成交明细计算加权均价
func averageFillPrice(result *binance.CreateOrderResponse) decimal.Decimal {
	notional := decimal.Zero
	quantity := decimal.Zero
	for _, fill := range result.Fills {
		qty := parseDecimal(fill.Quantity)
		notional = notional.Add(parseDecimal(fill.Price).Mul(qty))
		quantity = quantity.Add(qty)
	}
	if quantity.IsPositive() {
		return notional.Div(quantity)
	}
	return parseDecimal(result.Price)
}

// GetAccount 获取账户信息
func (c *Client) GetAccount(ctx context.Context) ([]*cex.AccountBalance, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account from Binance: %w", err)
	}

	balances := make([]*cex.AccountBalance, 0, len(account.Balances))
	for _, balance := range account.Balances {
		balances = append(balances, &cex.AccountBalance{
			Asset:  balance.Asset,
			Free:   parseDecimal(balance.Free),
			Locked: parseDecimal(balance.Locked),
		})
	}

	return balances, nil
}

// Ping 测试连接
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("Binance ping failed: %w", err)
	}
	return nil
}
