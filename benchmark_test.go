package fibload

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// TestRun_SimpleOperation verifies the load runner visits every level.
func TestRun_SimpleOperation(t *testing.T) {
	var counter atomic.Int64

	op := func(ctx context.Context) error {
		counter.Add(1)
		return nil
	}

	cfg := DefaultBenchConfig()
	cfg.Duration = 200 * time.Millisecond
	cfg.Warmup = 50 * time.Millisecond
	cfg.Levels = []int{1, 2}

	results, err := Run(context.Background(), op, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	for i, n := range cfg.Levels {
		if results[i].N != n {
			t.Errorf("Expected N=%d, got N=%d", n, results[i].N)
		}
		if results[i].Operations == 0 {
			t.Errorf("No operations recorded for N=%d", n)
		}
		if int64(len(results[i].Latencies)) != results[i].Operations {
			t.Errorf("N=%d: %d latencies for %d operations", n, len(results[i].Latencies), results[i].Operations)
		}
	}
}

func TestRun_CountsErrors(t *testing.T) {
	boom := errors.New("boom")
	op := func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return boom
	}

	cfg := BenchConfig{Duration: 50 * time.Millisecond, Levels: []int{2}}
	results, err := Run(context.Background(), op, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if results[0].Operations != 0 {
		t.Errorf("Expected no successful operations, got %d", results[0].Operations)
	}
	if results[0].Errors == 0 {
		t.Error("Expected errors to be counted")
	}
	if !errors.Is(results[0].FirstError, boom) {
		t.Errorf("Expected first error boom, got %v", results[0].FirstError)
	}
}

func TestRun_InvalidLevel(t *testing.T) {
	op := func(ctx context.Context) error { return nil }
	if _, err := Run(context.Background(), op, BenchConfig{Duration: time.Millisecond, Levels: []int{0}}); err == nil {
		t.Error("Expected error for level 0")
	}
}

// TestCalculateStatistics verifies percentile calculations.
func TestCalculateStatistics(t *testing.T) {
	result := Result{
		N:          1,
		Duration:   time.Second,
		Operations: 5,
		Latencies: []time.Duration{
			500 * time.Microsecond,
			100 * time.Microsecond,
			300 * time.Microsecond,
			200 * time.Microsecond,
			400 * time.Microsecond,
		},
	}

	stats := CalculateStatistics(result)

	if stats.P50 != 300*time.Microsecond {
		t.Errorf("P50: expected 300µs, got %v", stats.P50)
	}
	if stats.Mean != 300*time.Microsecond {
		t.Errorf("Mean: expected 300µs, got %v", stats.Mean)
	}
	if stats.P99 != 500*time.Microsecond {
		t.Errorf("P99: expected 500µs, got %v", stats.P99)
	}
	// input must not be reordered
	if result.Latencies[0] != 500*time.Microsecond {
		t.Error("CalculateStatistics sorted the caller's slice")
	}

	if empty := CalculateStatistics(Result{}); empty != (Statistics{}) {
		t.Errorf("Expected zero statistics for no latencies, got %+v", empty)
	}
}

// TestFitUSL_LinearScaling tests USL fit with ideal linear data.
func TestFitUSL_LinearScaling(t *testing.T) {
	results := []Result{
		{N: 1, Throughput: 1000},
		{N: 2, Throughput: 2000},
		{N: 4, Throughput: 4000},
		{N: 8, Throughput: 8000},
	}

	coeffs, err := FitUSL(results)
	if err != nil {
		t.Fatalf("FitUSL failed: %v", err)
	}

	for _, r := range results {
		predicted := coeffs.PredictThroughput(r.N)
		if math.Abs(predicted-r.Throughput)/r.Throughput > 0.01 {
			t.Errorf("N=%d: measured=%.0f, predicted=%.0f", r.N, r.Throughput, predicted)
		}
	}
	if math.Abs(coeffs.Efficiency(8)-1) > 0.01 {
		t.Errorf("Expected efficiency ~1 at N=8, got %.4f", coeffs.Efficiency(8))
	}
}

// TestFitUSL_Coherency recovers known coefficients from exact USL data.
func TestFitUSL_Coherency(t *testing.T) {
	lambda, alpha, beta := 1000.0, 0.05, 0.002

	var results []Result
	for _, n := range []int{1, 2, 4, 8, 16, 32} {
		results = append(results, Result{N: n, Throughput: uslModel(float64(n), lambda, alpha, beta)})
	}

	coeffs, err := FitUSL(results)
	if err != nil {
		t.Fatalf("FitUSL failed: %v", err)
	}
	t.Logf("Coefficients: λ=%.2f, α=%.6f, β=%.6f, R²=%.4f",
		coeffs.Lambda, coeffs.Alpha, coeffs.Beta, coeffs.RSquared)

	if math.Abs(coeffs.Lambda-lambda) > 1 {
		t.Errorf("Expected λ ≈ %.0f, got %.2f", lambda, coeffs.Lambda)
	}
	if math.Abs(coeffs.Alpha-alpha) > 1e-3 {
		t.Errorf("Expected α ≈ %.3f, got %.6f", alpha, coeffs.Alpha)
	}
	if math.Abs(coeffs.Beta-beta) > 1e-4 {
		t.Errorf("Expected β ≈ %.3f, got %.6f", beta, coeffs.Beta)
	}
	if coeffs.RSquared < 0.999 {
		t.Errorf("Expected R² ≈ 1, got %.4f", coeffs.RSquared)
	}

	want := math.Sqrt((1 - alpha) / beta)
	if math.Abs(coeffs.PeakConcurrency()-want) > 0.5 {
		t.Errorf("Expected peak concurrency ≈ %.1f, got %.1f", want, coeffs.PeakConcurrency())
	}
}

func TestFitUSL_TooFewPoints(t *testing.T) {
	if _, err := FitUSL([]Result{{N: 1, Throughput: 1}, {N: 2, Throughput: 2}}); err == nil {
		t.Error("Expected error for two data points")
	}
}

func TestPeakConcurrency_NoCoherency(t *testing.T) {
	c := USLCoefficients{Lambda: 100, Alpha: 0.1}
	if !math.IsInf(c.PeakConcurrency(), 1) {
		t.Errorf("Expected +Inf without coherency cost, got %f", c.PeakConcurrency())
	}
}

func TestFib(t *testing.T) {
	want := []int64{1, 1, 1, 2, 3, 5, 8, 13, 21, 34, 55}
	for n, w := range want {
		if got := Fib(n); got != w {
			t.Errorf("Fib(%d): expected %d, got %d", n, w, got)
		}
	}
	if Fib(90) != 2880067194370816120 {
		t.Errorf("Fib(90): got %d", Fib(90))
	}
}

func TestFibonacciOperation(t *testing.T) {
	var method, url string
	var bodyBytes int64
	tr := transportFunc(func(ctx context.Context, m, u string, body io.Reader) (int64, error) {
		method, url = m, u
		if body != nil {
			n, _ := io.Copy(io.Discard, body)
			bodyBytes = n
		}
		return 8, nil
	})

	if err := FibonacciOperation(tr, "http://127.0.0.1:8888", 6, false)(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodGet || url != "http://127.0.0.1:8888/6" {
		t.Errorf("unexpected request %s %s", method, url)
	}

	if err := FibonacciOperation(tr, "http://127.0.0.1:8888", 6, true)(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodPost || bodyBytes != TotalBytes(6) {
		t.Errorf("expected POST with %d bytes, got %s with %d", TotalBytes(6), method, bodyBytes)
	}

	// wrong answer is an error
	if err := FibonacciOperation(tr, "http://127.0.0.1:8888", 7, false)(context.Background()); err == nil {
		t.Error("expected error for wrong result")
	}
}
