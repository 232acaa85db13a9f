package dsp

import (
	"errors"
	"math"
	"testing"
)

const rateKHz = 125000.0

func TestToneEstimatorOnBin(t *testing.T) {
	est := NewToneEstimator(1024, rateKHz)
	i, q := tone(4096, 4*40, 20000) // 40 cycles per 1024-sample block
	got, err := est.Estimate(i, q)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	want := 40 * rateKHz / 1024
	if math.Abs(got.FreqKHz-want) > 1 {
		t.Fatalf("tone = %.2f kHz, want %.2f", got.FreqKHz, want)
	}
	if got.PowerDBFS > 0 || got.PowerDBFS < -10 {
		t.Fatalf("unexpected power %.2f dBFS", got.PowerDBFS)
	}
}

func TestToneEstimatorBetweenBins(t *testing.T) {
	est := NewToneEstimator(1024, rateKHz)
	i, q := tone(1024, 40.3, fullScale)
	got, err := est.Estimate(i, q)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	binKHz := rateKHz / 1024
	want := 40.3 * binKHz
	if math.Abs(got.FreqKHz-want) > 0.2*binKHz {
		t.Fatalf("tone = %.2f kHz, want %.2f", got.FreqKHz, want)
	}
}

func TestToneEstimatorNegativeTone(t *testing.T) {
	est := NewToneEstimator(256, rateKHz)
	i, q := tone(256, -12, fullScale)
	got, err := est.Estimate(i, q)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	want := -12 * rateKHz / 256
	if math.Abs(got.FreqKHz-want) > 1 {
		t.Fatalf("tone = %.2f kHz, want %.2f", got.FreqKHz, want)
	}
}

func TestToneEstimatorShortCapture(t *testing.T) {
	est := NewToneEstimator(1024, rateKHz)
	i, q := tone(128, 8, fullScale)
	got, err := est.Estimate(i, q)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	want := 8 * rateKHz / 128
	if math.Abs(got.FreqKHz-want) > 1 {
		t.Fatalf("tone = %.2f kHz, want %.2f", got.FreqKHz, want)
	}
	if _, err := est.Estimate([]int16{1, 2}, []int16{1, 2}); !errors.Is(err, ErrShortCapture) {
		t.Fatalf("expected ErrShortCapture, got %v", err)
	}
}

func BenchmarkToneEstimator(b *testing.B) {
	est := NewToneEstimator(4096, rateKHz)
	i, q := tone(4096, 100, fullScale)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		est.Estimate(i, q)
	}
}
