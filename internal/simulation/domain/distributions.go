// Package domain 蒙特卡洛风险模拟的领域模型：相关价格模拟、t-copula 违约模拟与统计聚合
package domain

import "math"

// NormalCDF 标准正态分布函数 Φ(x)
func NormalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// StudentTCDF Student-t 分布函数，自由度 nu 可为非整数
// 通过正则化不完全贝塔函数计算：t≥0 时 F(t) = 1 − I_{ν/(ν+t²)}(ν/2, 1/2)/2
func StudentTCDF(t, nu float64) float64 {
	if math.IsNaN(t) || nu <= 0 {
		return math.NaN()
	}
	if math.IsInf(t, 1) {
		return 1
	}
	if math.IsInf(t, -1) {
		return 0
	}

	x := nu / (nu + t*t)
	p := 0.5 * RegularizedIncompleteBeta(nu/2, 0.5, x)
	if t >= 0 {
		return 1 - p
	}
	return p
}

// RegularizedIncompleteBeta 正则化不完全贝塔函数 I_x(a, b)
// 连分式展开（modified Lentz），精度优于 1e-10
func RegularizedIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	// 前置因子 x^a (1-x)^b / (a B(a,b))
	lnBeta, _ := math.Lgamma(a + b)
	lga, _ := math.Lgamma(a)
	lgb, _ := math.Lgamma(b)
	front := math.Exp(lnBeta - lga - lgb + a*math.Log(x) + b*math.Log(1-x))

	// 对称点之前直接展开，否则用 I_x(a,b) = 1 − I_{1−x}(b,a) 保证收敛
	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(a, b, x) / a
	}
	return 1 - front*betaContinuedFraction(b, a, 1-x)/b
}

// betaContinuedFraction 不完全贝塔函数的连分式部分
func betaContinuedFraction(a, b, x float64) float64 {
	const (
		maxIterations = 200
		epsilon       = 1e-14
		tiny          = 1e-30
	)

	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		// 偶数步
		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		// 奇数步
		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		delta := d * c
		h *= delta

		if math.Abs(delta-1) < epsilon {
			break
		}
	}

	return h
}
