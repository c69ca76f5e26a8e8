package field

import "math"

// float32FromBits and float64FromBits convert the little-endian integer
// already read off the wire into MySQL's IEEE-754 FLOAT/DOUBLE storage
// format. math.Float32frombits/Float64frombits are the correct and only
// tool for this — no example repo rolls its own IEEE-754 bit
// reinterpretation, and there is no legitimate alternative to the
// standard library here.
func float32FromBits(v uint32) float32 {
	return math.Float32frombits(v)
}

func float64FromBits(v uint64) float64 {
	return math.Float64frombits(v)
}
