// wheel/wheel.go
package wheel

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Pockets 是轮盘上的格子数量 (0-36)
const Pockets = 37

// Color 是开奖号码的颜色分类
type Color string

const (
	ColorRed   Color = "red"
	ColorBlack Color = "black"
	ColorGreen Color = "green" // 0
)

// Order is the physical pocket order of a single-zero wheel, used only for display.
var Order = [Pockets]int{
	0, 32, 15, 19, 4, 21, 2, 25, 17, 34, 6, 27, 13, 36, 11, 30, 8, 23, 10,
	5, 24, 16, 33, 1, 20, 14, 31, 9, 22, 18, 29, 7, 28, 12, 35, 3, 26,
}

var redNumbers = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// Generator 产生开奖号码
type Generator interface {
	Draw() int
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func() int

func (f GeneratorFunc) Draw() int {
	return f()
}

// CryptoGenerator draws uniformly from [0, 36] using crypto/rand, so results
// cannot be predicted from earlier draws.
type CryptoGenerator struct{}

func (CryptoGenerator) Draw() int {
	n, err := rand.Int(rand.Reader, big.NewInt(Pockets))
	if err != nil {
		// crypto/rand 读取失败说明系统熵源不可用，无法安全继续
		panic("wheel: crypto/rand failed: " + err.Error())
	}
	return int(n.Int64())
}

// Outcome 一次开奖结果
type Outcome struct {
	Number    int   `json:"number"`
	Color     Color `json:"color"`
	Timestamp int64 `json:"timestamp"` // unix ms
}

// NewOutcome annotates a drawn number with its color and draw time.
func NewOutcome(number int, at time.Time) Outcome {
	return Outcome{
		Number:    number,
		Color:     ColorOf(number),
		Timestamp: at.UnixMilli(),
	}
}

// ColorOf 返回号码颜色，0 为绿色
func ColorOf(n int) Color {
	switch {
	case n == 0:
		return ColorGreen
	case redNumbers[n]:
		return ColorRed
	default:
		return ColorBlack
	}
}

// ParityOf returns "even" or "odd" for 1-36 and "" for zero.
func ParityOf(n int) string {
	if n <= 0 || n >= Pockets {
		return ""
	}
	if n%2 == 0 {
		return ParityEven
	}
	return ParityOdd
}

// RangeOf returns "low" (1-18), "high" (19-36), or "" for zero.
func RangeOf(n int) string {
	switch {
	case n >= 1 && n <= 18:
		return RangeLow
	case n >= 19 && n <= 36:
		return RangeHigh
	default:
		return ""
	}
}

// DozenOf returns 1, 2 or 3 for the band containing n, and 0 for zero.
func DozenOf(n int) int {
	if n <= 0 || n >= Pockets {
		return 0
	}
	return (n-1)/12 + 1
}
