package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, NormalCDF(0), 1e-12)
	assert.InDelta(t, 0.8413447460685429, NormalCDF(1), 1e-12)
	assert.InDelta(t, 0.9772498680518208, NormalCDF(2), 1e-12)
	assert.InDelta(t, 1-NormalCDF(1.5), NormalCDF(-1.5), 1e-12)
}

// ν=1 的 t 分布即柯西分布，CDF 有闭式解 0.5 + atan(t)/π
func TestStudentTCDFCauchy(t *testing.T) {
	for _, x := range []float64{-5, -2, -0.5, 0, 0.5, 2, 5} {
		want := 0.5 + math.Atan(x)/math.Pi
		assert.InDelta(t, want, StudentTCDF(x, 1), 1e-9, "x=%v", x)
	}
}

// ν=2 闭式解 0.5 + t / (2·sqrt(2+t²))
func TestStudentTCDFTwoDoF(t *testing.T) {
	for _, x := range []float64{-4, -1, 0, 1, 4} {
		want := 0.5 + x/(2*math.Sqrt(2+x*x))
		assert.InDelta(t, want, StudentTCDF(x, 2), 1e-9, "x=%v", x)
	}
}

// 自由度很大时收敛到标准正态
func TestStudentTCDFNormalLimit(t *testing.T) {
	for _, x := range []float64{-3, -1, 0, 1, 3} {
		assert.InDelta(t, NormalCDF(x), StudentTCDF(x, 1e6), 1e-5, "x=%v", x)
	}
}

func TestStudentTCDFProperties(t *testing.T) {
	for _, nu := range []float64{1, 3, 5.5, 10, 30} {
		assert.InDelta(t, 0.5, StudentTCDF(0, nu), 1e-12)

		// 对称性 F(−t) = 1 − F(t)
		for _, x := range []float64{0.5, 1.7, 4} {
			assert.InDelta(t, 1-StudentTCDF(x, nu), StudentTCDF(-x, nu), 1e-9)
		}

		// 单调性
		prev := StudentTCDF(-8, nu)
		for x := -7.5; x <= 8; x += 0.5 {
			cur := StudentTCDF(x, nu)
			assert.GreaterOrEqual(t, cur, prev)
			prev = cur
		}
	}
}

// 尾部比正态厚：相同分位点的 t CDF 左尾概率更大
func TestStudentTCDFFatTails(t *testing.T) {
	assert.Greater(t, StudentTCDF(-3, 3), NormalCDF(-3))
	assert.Greater(t, StudentTCDF(-4, 5), NormalCDF(-4))
}

func TestRegularizedIncompleteBeta(t *testing.T) {
	// I_x(1,1) = x
	for _, x := range []float64{0, 0.25, 0.5, 0.75, 1} {
		assert.InDelta(t, x, RegularizedIncompleteBeta(1, 1, x), 1e-12)
	}

	// I_x(2,1) = x²
	assert.InDelta(t, 0.25, RegularizedIncompleteBeta(2, 1, 0.5), 1e-9)

	// 边界
	assert.Equal(t, 0.0, RegularizedIncompleteBeta(3, 4, 0))
	assert.Equal(t, 1.0, RegularizedIncompleteBeta(3, 4, 1))

	// 对称恒等式 I_x(a,b) = 1 − I_{1−x}(b,a)
	for _, x := range []float64{0.1, 0.3, 0.6, 0.9} {
		assert.InDelta(t, 1-RegularizedIncompleteBeta(4.5, 2.5, 1-x), RegularizedIncompleteBeta(2.5, 4.5, x), 1e-9)
	}
}
