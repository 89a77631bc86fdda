package indicators

import "errors"

var (
	// ErrInsufficientData 数据不足，指标未定义
	ErrInsufficientData = errors.New("insufficient data for calculation")

	// ErrInvalidPeriod 无效周期错误
	ErrInvalidPeriod = errors.New("invalid period, must be greater than 0")

	// ErrDuplicateBar K线时间戳与窗口最新一根相同
	ErrDuplicateBar = errors.New("bar timestamp equals the latest bar")

	// ErrOutOfOrderBar K线时间戳早于窗口最新一根
	ErrOutOfOrderBar = errors.New("bar timestamp is older than the latest bar")

	// ErrExceedsCapacity 请求的K线数超过窗口容量
	ErrExceedsCapacity = errors.New("requested bars exceed window capacity")
)
