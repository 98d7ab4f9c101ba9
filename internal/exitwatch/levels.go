package exitwatch

import (
	"errors"
	"math"
)

// Levels 为一次监控任务固定的离场价位，创建后不再重算。
type Levels struct {
	TargetPrice   float64
	StopLossPrice float64
}

// ComputeLevels 依据均价与偏移量计算离场价位，并对齐到最小报价单位：
// 目标价向上取整（不提前触发有利方向），止损价向下取整（不提前触发
// 不利方向）。
func ComputeLevels(averagePrice, offset, tickSize float64) (Levels, error) {
	if averagePrice <= 0 {
		return Levels{}, errors.New("exitwatch: 均价必须大于0")
	}
	if offset <= 0 {
		return Levels{}, errors.New("exitwatch: 偏移量必须大于0")
	}
	if tickSize <= 0 {
		return Levels{}, errors.New("exitwatch: 最小报价单位必须大于0")
	}

	return Levels{
		TargetPrice:   math.Ceil((averagePrice+offset)/tickSize) * tickSize,
		StopLossPrice: math.Floor((averagePrice-offset)/tickSize) * tickSize,
	}, nil
}
