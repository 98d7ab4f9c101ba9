package signal

import (
	"errors"
	"fmt"
	"strings"
)

// TradeSignal 表示从自由文本中抽取出的结构化交易信号。
type TradeSignal struct {
	Symbol  string  `json:"symbol"`
	Date    string  `json:"date"`
	Expiry  string  `json:"expiry"`
	Buy1    float64 `json:"Buy1"`
	Buy2    float64 `json:"Buy2"`
	SL1     float64 `json:"SL1"`
	SL2     float64 `json:"SL2"`
	Target1 float64 `json:"Target1"`
	Target2 float64 `json:"Target2"`
}

// Validate 校验信号字段合法性。
func (s TradeSignal) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return errors.New("symbol 不能为空")
	}
	if strings.TrimSpace(s.Expiry) == "" {
		return errors.New("expiry 不能为空")
	}
	if s.Buy1 <= 0 {
		return fmt.Errorf("Buy1 必须大于0，当前为 %f", s.Buy1)
	}
	if s.Buy2 < 0 {
		return fmt.Errorf("Buy2 不能为负，当前为 %f", s.Buy2)
	}
	if s.SL1 < 0 || s.SL2 < 0 {
		return errors.New("止损价不能为负")
	}
	if s.Target1 < 0 || s.Target2 < 0 {
		return errors.New("目标价不能为负")
	}
	return nil
}
