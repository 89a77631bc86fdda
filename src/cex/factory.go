package cex

import (
	"fmt"
	"sort"
	"sync"
)

// CEXFactory CEX工厂接口
type CEXFactory interface {
	CreateClient() (CEXClient, error)
}

var (
	factoryMu sync.RWMutex
	factories = make(map[string]CEXFactory)
)

// RegisterCEXFactory 注册CEX工厂，通常在交易所包的 init 中调用
func RegisterCEXFactory(name string, factory CEXFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// CreateCEXClient 创建CEX客户端
func CreateCEXClient(cexName string) (CEXClient, error) {
	factoryMu.RLock()
	factory, exists := factories[cexName]
	factoryMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unsupported CEX: %s", cexName)
	}

	client, err := factory.CreateClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cexName, err)
	}
	return client, nil
}

// GetSupportedCEXes 获取已注册的CEX列表（按名称排序）
func GetSupportedCEXes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	cexes := make([]string, 0, len(factories))
	for name := range factories {
		cexes = append(cexes, name)
	}
	sort.Strings(cexes)
	return cexes
}
