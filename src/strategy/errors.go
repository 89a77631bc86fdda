package strategy

import (
	"errors"
	"fmt"
	"time"

	"bouncebot/src/indicators"
)

var (
	// ErrDuplicateBar 重复时间戳的K线，按幂等处理
	ErrDuplicateBar = indicators.ErrDuplicateBar

	// ErrOutOfOrderBar 时间倒序的K线
	ErrOutOfOrderBar = indicators.ErrOutOfOrderBar

	// ErrInvalidBar 价格非正或高低价颠倒
	ErrInvalidBar = errors.New("malformed bar")

	// ErrInvalidPosition 恢复的持仓数据不合法
	ErrInvalidPosition = errors.New("malformed position")

	// ErrUnknownInstrument 未注册的交易对
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// DataError 输入数据问题：K线被跳过，引擎状态不变
type DataError struct {
	Instrument string
	Timestamp  time.Time
	Err        error
}

func (e *DataError) Error() string {
	if e.Timestamp.IsZero() {
		return fmt.Sprintf("data error [%s]: %v", e.Instrument, e.Err)
	}
	return fmt.Sprintf("data error [%s @ %s]: %v", e.Instrument, e.Timestamp.UTC().Format(time.RFC3339), e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// ConfigError 参数无效或互相矛盾，启动时即失败
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s %s", e.Field, e.Reason)
}

// StateInconsistency 调用方逻辑错误，例如空仓时要求平仓
type StateInconsistency struct {
	Instrument string
	Operation  string
	State      PositionState
	Reason     string
}

func (e *StateInconsistency) Error() string {
	return fmt.Sprintf("state inconsistency [%s]: %s while %s: %s", e.Instrument, e.Operation, e.State, e.Reason)
}

// IsDataError 判断是否为可跳过的数据错误
func IsDataError(err error) bool {
	var dataErr *DataError
	return errors.As(err, &dataErr)
}

// IsStateInconsistency 判断是否为状态不一致错误
func IsStateInconsistency(err error) bool {
	var stateErr *StateInconsistency
	return errors.As(err, &stateErr)
}
