package common

// CeilDiv returns ceil(n / d) for unsigned integers. d must be non-zero.
func CeilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}

// Clamp01 clamps v into [0, 1].
func Clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
