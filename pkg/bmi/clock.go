package bmi

import "math"

// stepTolerance is the fraction of a time step within which two model
// times are the same instant. Clocks built from float steps such as 0.1
// land a few ulps off the exact step boundary.
const stepTolerance = 1e-9

// TimeTolerance returns the largest difference between two times near t
// that still counts as equal on a clock advancing by step.
func TimeTolerance(t, step float64) float64 {
	return stepTolerance*math.Abs(step) + 1e-12*math.Abs(t)
}

// SameTime reports whether a and b are the same instant on a clock
// advancing by step.
func SameTime(a, b, step float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= TimeTolerance(math.Max(math.Abs(a), math.Abs(b)), step)
}

// StepsUntil returns how many Update calls advance current to at least
// target with the given step.
func StepsUntil(current, target, step float64) int {
	if !(step > 0) || !(target > current) || SameTime(current, target, step) {
		return 0
	}
	return clampSteps(math.Ceil((target-current)/step - stepTolerance))
}

// StepsWithin returns how many whole steps fit between current and end.
func StepsWithin(current, end, step float64) int {
	if !(step > 0) || !(end > current) {
		return 0
	}
	return clampSteps(math.Floor((end-current)/step + stepTolerance))
}

func clampSteps(n float64) int {
	switch {
	case math.IsNaN(n) || n <= 0:
		return 0
	case n > math.MaxInt32:
		return math.MaxInt32
	}
	return int(n)
}
