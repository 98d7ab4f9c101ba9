package signal

import (
	"strings"
	"time"
)

// DetermineExpiry 从信号文本推断期权到期日：文本含 "weekly" 时取最近的
// 周四（周度合约），否则取当月最后一个周四（月度合约）。
func DetermineExpiry(text string, today time.Time) time.Time {
	if strings.Contains(strings.ToLower(text), "weekly") {
		return nextThursday(today)
	}
	return lastThursdayOfMonth(today)
}

func nextThursday(day time.Time) time.Time {
	offset := (int(time.Thursday) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}

func lastThursdayOfMonth(day time.Time) time.Time {
	firstOfNext := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location()).AddDate(0, 1, 0)
	lastDay := firstOfNext.AddDate(0, 0, -1)
	offset := (int(lastDay.Weekday()) - int(time.Thursday) + 7) % 7
	return lastDay.AddDate(0, 0, -offset)
}
