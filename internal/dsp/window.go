package dsp

import "math"

// fullScale is the peak amplitude of a 16-bit DDS sample.
const fullScale = 32767.0

// Hamming returns a Hamming window of length n.
// If n is less than two, an empty slice is returned.
func Hamming(n int) []float64 {
	if n < 2 {
		return []float64{}
	}
	win := make([]float64, n)
	for i := 0; i < n; i++ {
		win[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return win
}

// WindowIQ pairs in-phase and quadrature samples into normalized complex
// values and multiplies them with the window. All three lengths must match.
func WindowIQ(i, q []int16, window []float64) []complex128 {
	if len(i) != len(q) || len(i) != len(window) {
		return []complex128{}
	}
	out := make([]complex128, len(i))
	for n := range i {
		w := window[n] / fullScale
		out[n] = complex(float64(i[n])*w, float64(q[n])*w)
	}
	return out
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}
