package cex

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCEXClient 实现 CEXClient 接口用于测试
type mockCEXClient struct {
	name string
}

func (m *mockCEXClient) GetName() string {
	return m.name
}

func (m *mockCEXClient) GetKlines(ctx context.Context, pair TradingPair, interval string, limit int) ([]*KlineData, error) {
	return []*KlineData{}, nil
}

func (m *mockCEXClient) GetKlinesWithTimeRange(ctx context.Context, pair TradingPair, interval string, startTime, endTime time.Time, limit int) ([]*KlineData, error) {
	return []*KlineData{}, nil
}

func (m *mockCEXClient) PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResult, error) {
	return &OrderResult{
		OrderID:      "mock_123",
		TradingPair:  order.TradingPair,
		Price:        order.Price,
		Quantity:     order.Quantity,
		Side:         order.Side,
		Status:       "FILLED",
		Type:         order.Type,
		TransactTime: time.Now(),
	}, nil
}

func (m *mockCEXClient) GetAccount(ctx context.Context) ([]*AccountBalance, error) {
	return nil, nil
}

func (m *mockCEXClient) Ping(ctx context.Context) error {
	return nil
}

type mockFactory struct {
	name string
	err  error
}

func (f *mockFactory) CreateClient() (CEXClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &mockCEXClient{name: f.name}, nil
}

func TestCreateCEXClient(t *testing.T) {
	RegisterCEXFactory("mock_ok", &mockFactory{name: "mock_ok"})
	RegisterCEXFactory("mock_broken", &mockFactory{err: errors.New("no credentials")})

	t.Run("registered factory", func(t *testing.T) {
		client, err := CreateCEXClient("mock_ok")
		require.NoError(t, err)
		assert.Equal(t, "mock_ok", client.GetName())
	})

	t.Run("unsupported cex", func(t *testing.T) {
		client, err := CreateCEXClient("nope")
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "unsupported CEX: nope")
	})

	t.Run("factory error is wrapped", func(t *testing.T) {
		_, err := CreateCEXClient("mock_broken")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no credentials")
	})
}

func TestGetSupportedCEXes_Sorted(t *testing.T) {
	RegisterCEXFactory("zz_mock", &mockFactory{name: "zz_mock"})
	RegisterCEXFactory("aa_mock", &mockFactory{name: "aa_mock"})

	names := GetSupportedCEXes()
	assert.Contains(t, names, "zz_mock")
	assert.Contains(t, names, "aa_mock")
	assert.IsIncreasing(t, names)
}

func TestFactoryRegistry_ConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RegisterCEXFactory("concurrent_mock", &mockFactory{name: "concurrent_mock"})
			_, _ = CreateCEXClient("concurrent_mock")
			_ = GetSupportedCEXes()
		}()
	}
	wg.Wait()

	client, err := CreateCEXClient("concurrent_mock")
	require.NoError(t, err)
	assert.Equal(t, "concurrent_mock", client.GetName())
}
