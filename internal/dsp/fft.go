package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FFTShift returns the FFT output shifted so that DC is centered.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return []complex128{}
	}
	half := n / 2
	shifted := make([]complex128, 0, n)
	shifted = append(shifted, data[half:]...)
	return append(shifted, data[:half]...)
}

// Spectrum windows an I/Q capture with a Hamming window, normalizes by the
// window sum and returns the unshifted coefficients.
func Spectrum(i, q []int16) []complex128 {
	win := Hamming(len(i))
	windowed := WindowIQ(i, q, win)
	if len(windowed) == 0 {
		return []complex128{}
	}
	coeff := fourier.NewCmplxFFT(len(windowed)).Coefficients(nil, windowed)
	norm := complex(sum(win), 0)
	for k := range coeff {
		coeff[k] /= norm
	}
	return coeff
}

// DBFS converts coefficients to decibels relative to a full-scale tone.
func DBFS(coeff []complex128) []float64 {
	db := make([]float64, len(coeff))
	for k, v := range coeff {
		mag := cmplx.Abs(v)
		if mag == 0 {
			db[k] = math.Inf(-1)
			continue
		}
		db[k] = 20 * math.Log10(mag)
	}
	return db
}
