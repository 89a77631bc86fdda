package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"bouncebot/src/cex"

	"github.com/shopspring/decimal"
)

var TestError = errors.New("test error")

// MockCEXClient 用于测试的CEX客户端mock
type MockCEXClient struct {
	mu sync.Mutex

	ShouldError bool
	OrderError  error
	CallCount   int

	// Klines 按交易对返回的K线，GetKlines 取最后 limit 根
	Klines   map[cex.TradingPair][]*cex.KlineData
	Balances []*cex.AccountBalance
	// FillPrice 非零时作为成交价，否则成交价为零（由执行器回退到意图价格）
	FillPrice decimal.Decimal
	Orders    []cex.OrderRequest
}

func (m *MockCEXClient) GetName() string {
	return "mock_cex"
}

func (m *MockCEXClient) GetKlines(ctx context.Context, pair cex.TradingPair, interval string, limit int) ([]*cex.KlineData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.ShouldError {
		return nil, TestError
	}
	klines := m.Klines[pair]
	if limit > 0 && len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}
	return klines, nil
}

func (m *MockCEXClient) GetKlinesWithTimeRange(ctx context.Context, pair cex.TradingPair, interval string, startTime, endTime time.Time, limit int) ([]*cex.KlineData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.ShouldError {
		return nil, TestError
	}
	var result []*cex.KlineData
	for _, kline := range m.Klines[pair] {
		if !kline.OpenTime.Before(startTime) && !kline.OpenTime.After(endTime) {
			result = append(result, kline)
		}
	}
	return result, nil
}

func (m *MockCEXClient) PlaceOrder(ctx context.Context, order cex.OrderRequest) (*cex.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.ShouldError {
		return nil, TestError
	}
	if m.OrderError != nil {
		return nil, m.OrderError
	}
	m.Orders = append(m.Orders, order)
	return &cex.OrderResult{
		TradingPair:   order.TradingPair,
		OrderID:       "mock_order",
		ClientOrderID: order.ClientOrderID,
		Price:         m.FillPrice,
		Quantity:      order.Quantity,
		Side:          order.Side,
		Status:        "FILLED",
		Type:          order.Type,
	}, nil
}

func (m *MockCEXClient) GetAccount(ctx context.Context) ([]*cex.AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.ShouldError {
		return nil, TestError
	}
	return m.Balances, nil
}

func (m *MockCEXClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.ShouldError {
		return TestError
	}
	return nil
}

// OrderCount 已下单数量
func (m *MockCEXClient) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

// MockStreamer 用于测试的K线推送mock，Push 把K线交给订阅者
type MockStreamer struct {
	mu         sync.Mutex
	handlers   map[cex.TradingPair]cex.KlineHandler
	dones      map[cex.TradingPair]chan struct{}
	Subscribes int
}

func NewMockStreamer() *MockStreamer {
	return &MockStreamer{
		handlers: make(map[cex.TradingPair]cex.KlineHandler),
		dones:    make(map[cex.TradingPair]chan struct{}),
	}
}

func (m *MockStreamer) SubscribeKlines(ctx context.Context, pair cex.TradingPair, interval string, handler cex.KlineHandler, errHandler func(error)) (<-chan struct{}, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscribes++
	done := make(chan struct{})
	m.handlers[pair] = handler
	m.dones[pair] = done

	var once sync.Once
	return done, func() { once.Do(func() { close(done) }) }, nil
}

// Push 模拟推送一根已收盘K线，未订阅时返回 false
func (m *MockStreamer) Push(kline *cex.KlineData) bool {
	m.mu.Lock()
	handler, ok := m.handlers[kline.TradingPair]
	m.mu.Unlock()
	if !ok {
		return false
	}
	handler(kline)
	return true
}

// Subscribed 交易对是否已订阅
func (m *MockStreamer) Subscribed(pair cex.TradingPair) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[pair]
	return ok
}

// CreateTestKlines 按收盘价序列创建测试K线，开高低收相同
func CreateTestKlines(pair cex.TradingPair, startTime time.Time, interval time.Duration, closes ...float64) []*cex.KlineData {
	klines := make([]*cex.KlineData, len(closes))
	for i, c := range closes {
		klines[i] = CreateTestKline(pair, startTime.Add(time.Duration(i)*interval), interval, c)
	}
	return klines
}

// CreateTestKline 创建一根测试K线
func CreateTestKline(pair cex.TradingPair, openTime time.Time, interval time.Duration, closePrice float64) *cex.KlineData {
	price := decimal.NewFromFloat(closePrice)
	return &cex.KlineData{
		TradingPair: pair,
		OpenTime:    openTime,
		CloseTime:   openTime.Add(interval - time.Millisecond),
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		Volume:      decimal.NewFromInt(1000),
	}
}
