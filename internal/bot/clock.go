package bot

import "time"

// Clock 抽象了时间读取和休眠，便于测试中推进虚拟时间而无需真实等待。
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// NewRealClock 返回使用系统时间的 Clock。
func NewRealClock() Clock {
	return realClock{}
}
