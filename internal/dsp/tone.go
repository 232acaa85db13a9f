package dsp

import (
	"errors"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Tone is the strongest spectral line of a capture.
type Tone struct {
	// FreqKHz is signed: negative tones rotate clockwise in the I/Q plane.
	FreqKHz   float64
	PowerDBFS float64
}

// ErrShortCapture is returned when there are too few samples to analyze.
var ErrShortCapture = errors.New("capture too short for tone estimate")

// ToneEstimator finds the dominant tone of debug captures. It keeps the
// window and FFT plan for its block size so repeated captures reuse them.
type ToneEstimator struct {
	mu            sync.Mutex
	size          int
	window        []float64
	windowSum     float64
	fft           *fourier.CmplxFFT
	sampleRateKHz float64
}

// NewToneEstimator analyzes the first size samples of every capture taken at
// sampleRateKHz.
func NewToneEstimator(size int, sampleRateKHz float64) *ToneEstimator {
	window := Hamming(size)
	return &ToneEstimator{
		size:          size,
		window:        window,
		windowSum:     sum(window),
		fft:           fourier.NewCmplxFFT(size),
		sampleRateKHz: sampleRateKHz,
	}
}

// Size returns the analysis block length.
func (e *ToneEstimator) Size() int { return e.size }

// Estimate returns the dominant tone of the capture. Captures shorter than
// the block size are analyzed whole with a one-off plan.
func (e *ToneEstimator) Estimate(i, q []int16) (Tone, error) {
	n := len(i)
	if len(q) < n {
		n = len(q)
	}
	if n < 3 {
		return Tone{}, ErrShortCapture
	}
	if n < e.size {
		return e.peak(Spectrum(i[:n], q[:n])), nil
	}

	windowed := WindowIQ(i[:e.size], q[:e.size], e.window)
	e.mu.Lock()
	coeff := e.fft.Coefficients(nil, windowed)
	e.mu.Unlock()
	norm := complex(e.windowSum, 0)
	for k := range coeff {
		coeff[k] /= norm
	}
	return e.peak(coeff), nil
}

// peak locates the largest bin and refines it by parabolic interpolation
// over the log magnitudes of its neighbours.
func (e *ToneEstimator) peak(coeff []complex128) Tone {
	n := len(coeff)
	best, bestMag := 0, -1.0
	for k, v := range coeff {
		if m := cmplx.Abs(v); m > bestMag {
			best, bestMag = k, m
		}
	}
	logMag := func(k int) float64 {
		m := cmplx.Abs(coeff[(k+n)%n])
		if m == 0 {
			return -300
		}
		return math.Log(m)
	}
	a, b, c := logMag(best-1), logMag(best), logMag(best+1)
	offset := 0.0
	if d := a - 2*b + c; d != 0 {
		offset = 0.5 * (a - c) / d
	}
	bin := float64(best) + offset
	if bin > float64(n)/2 {
		bin -= float64(n)
	}
	power := math.Inf(-1)
	if bestMag > 0 {
		power = 20 * math.Log10(bestMag)
	}
	return Tone{FreqKHz: bin * e.sampleRateKHz / float64(n), PowerDBFS: power}
}
