package broker

import (
	"context"
	"errors"
	"net"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrRejected 表示订单被交易所或券商规则拒绝，原样上抛，不自动重试。
	ErrRejected = errors.New("broker: order rejected")
	// ErrOrderNotFound 表示改单或撤单的目标订单不存在。
	ErrOrderNotFound = errors.New("broker: order not found")
)

// IsRetryable 判断错误是否为暂时性 IO 错误（网络/超时）。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// IsRejection 判断错误是否为券商侧的订单拒绝。
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRejected) {
		return true
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.InvalidOrderErrType,
			ccxt.InsufficientFundsErrType,
			ccxt.OrderNotFillableErrType:
			return true
		default:
			return false
		}
	}

	return false
}
