package fibload

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Operation is one unit of load. It must be safe for concurrent execution.
type Operation func(ctx context.Context) error

// Result holds the measurements for one concurrency level.
type Result struct {
	N          int             // Concurrent workers
	Duration   time.Duration   // Measured wall time
	Operations int64           // Successful operations
	Throughput float64         // Successful operations per second
	Latencies  []time.Duration // Per-operation latencies
	Errors     int64           // Failed operations
	FirstError error           // First failure seen, if any
}

// Statistics holds latency percentiles of a Result.
type Statistics struct {
	Mean   time.Duration
	Stddev time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
}

// USLCoefficients are the fitted Universal Scalability Law parameters:
//
//	C(N) = λN / (1 + α(N-1) + βN(N-1))
type USLCoefficients struct {
	Lambda   float64 // λ: throughput at N=1
	Alpha    float64 // α: contention
	Beta     float64 // β: coherency
	RSquared float64 // R²: goodness of fit
}

// BenchConfig controls a load run.
type BenchConfig struct {
	Duration time.Duration // Measurement time per level
	Warmup   time.Duration // Unmeasured time before each level
	Levels   []int         // Concurrency levels
	MaxProcs int           // GOMAXPROCS override, 0 keeps the runtime default
}

// DefaultBenchConfig returns the defaults used by the bench command.
func DefaultBenchConfig() BenchConfig {
	return BenchConfig{
		Duration: 10 * time.Second,
		Warmup:   2 * time.Second,
		Levels:   []int{1, 2, 4, 8, 16},
	}
}

// FibonacciOperation returns an operation that requests fib(n) from target
// (a base URL such as http://127.0.0.1:8888) and checks the answer.
func FibonacciOperation(t Transport, target string, n int, usePost bool) Operation {
	url := fmt.Sprintf("%s/%d", target, n)
	want := Fib(n)
	return func(ctx context.Context) error {
		var (
			got int64
			err error
		)
		if usePost {
			got, err = t.Fetch(ctx, http.MethodPost, url, NewWriter(n, nil))
		} else {
			got, err = t.Fetch(ctx, http.MethodGet, url, nil)
		}
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("fib(%d) = %d, want %d", n, got, want)
		}
		return nil
	}
}

// Fib computes fib(n) locally with fib(n) = 1 for n <= 2.
func Fib(n int) int64 {
	a, b := int64(1), int64(1)
	for i := 3; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// Run executes op at every configured concurrency level.
func Run(ctx context.Context, op Operation, cfg BenchConfig) ([]Result, error) {
	if cfg.MaxProcs > 0 {
		old := runtime.GOMAXPROCS(cfg.MaxProcs)
		defer runtime.GOMAXPROCS(old)
	}

	results := make([]Result, 0, len(cfg.Levels))
	for _, n := range cfg.Levels {
		if n < 1 {
			return nil, fmt.Errorf("invalid concurrency level %d", n)
		}
		if cfg.Warmup > 0 {
			warmCtx, cancel := context.WithTimeout(ctx, cfg.Warmup)
			runPhase(warmCtx, op, n)
			cancel()
		}

		measureCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
		results = append(results, runPhase(measureCtx, op, n))
		cancel()

		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("interrupted at N=%d: %w", n, err)
		}
	}
	return results, nil
}

// runPhase keeps n workers busy until ctx is done.
func runPhase(ctx context.Context, op Operation, n int) Result {
	var (
		wg         sync.WaitGroup
		operations atomic.Int64
		failures   atomic.Int64
		firstErr   error
		errOnce    sync.Once
		latencies  = make([][]time.Duration, n)
	)

	start := time.Now()
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for ctx.Err() == nil {
				opStart := time.Now()
				err := op(ctx)
				elapsed := time.Since(opStart)

				switch {
				case err == nil:
					operations.Add(1)
					latencies[w] = append(latencies[w], elapsed)
				case ctx.Err() != nil:
					// cut off by the end of the phase
				default:
					failures.Add(1)
					errOnce.Do(func() { firstErr = err })
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	all := make([]time.Duration, 0, operations.Load())
	for _, l := range latencies {
		all = append(all, l...)
	}

	return Result{
		N:          n,
		Duration:   elapsed,
		Operations: operations.Load(),
		Throughput: float64(operations.Load()) / elapsed.Seconds(),
		Latencies:  all,
		Errors:     failures.Load(),
		FirstError: firstErr,
	}
}

// CalculateStatistics computes mean, deviation and percentiles of the latencies.
func CalculateStatistics(result Result) Statistics {
	if len(result.Latencies) == 0 {
		return Statistics{}
	}

	sorted := slices.Clone(result.Latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	mean := sum / time.Duration(len(sorted))

	var variance float64
	for _, l := range sorted {
		d := float64(l - mean)
		variance += d * d
	}

	at := func(p int) time.Duration { return sorted[len(sorted)*p/100] }
	return Statistics{
		Mean:   mean,
		Stddev: time.Duration(math.Sqrt(variance / float64(len(sorted)))),
		P50:    at(50),
		P95:    at(95),
		P99:    at(99),
	}
}

// FitUSL fits λ, α and β by least squares on the linearised form
//
//	N/C(N) = 1/λ + (α/λ)(N-1) + (β/λ)N(N-1)
//
// A negative β (noise on near-linear data) is clamped to zero and the model
// is refitted with contention only.
func FitUSL(results []Result) (USLCoefficients, error) {
	if len(results) < 3 {
		return USLCoefficients{}, fmt.Errorf("need at least 3 data points, got %d", len(results))
	}

	// Normal equations: A^T A b = A^T y with rows [1, N-1, N(N-1)]
	var ata [3][3]float64
	var aty [3]float64
	points := 0
	for _, r := range results {
		if r.Throughput == 0 {
			continue
		}
		n := float64(r.N)
		row := [3]float64{1, n - 1, n * (n - 1)}
		y := n / r.Throughput
		for i := range row {
			for j := range row {
				ata[i][j] += row[i] * row[j]
			}
			aty[i] += row[i] * y
		}
		points++
	}
	if points < 3 {
		return USLCoefficients{}, fmt.Errorf("need at least 3 levels with throughput, got %d", points)
	}

	b, ok := solve3(ata, aty)
	if !ok {
		return USLCoefficients{Lambda: results[0].Throughput, Alpha: 0.01}, nil
	}
	lambda, alpha, beta := 1/b[0], b[1]/b[0], b[2]/b[0]

	if beta < 0 && alpha > 0 {
		// 2x2 system on the first two columns
		det := ata[0][0]*ata[1][1] - ata[0][1]*ata[1][0]
		if math.Abs(det) > 1e-10 {
			b0 := (ata[1][1]*aty[0] - ata[0][1]*aty[1]) / det
			b1 := (ata[0][0]*aty[1] - ata[1][0]*aty[0]) / det
			lambda, alpha, beta = 1/b0, b1/b0, 0
		}
	}

	var mean float64
	for _, r := range results {
		mean += r.Throughput
	}
	mean /= float64(len(results))

	var ssRes, ssTot float64
	for _, r := range results {
		d := r.Throughput - uslModel(float64(r.N), lambda, alpha, beta)
		ssRes += d * d
		ssTot += (r.Throughput - mean) * (r.Throughput - mean)
	}

	return USLCoefficients{
		Lambda:   lambda,
		Alpha:    alpha,
		Beta:     beta,
		RSquared: 1 - ssRes/ssTot,
	}, nil
}

// solve3 solves m x = v by Cramer's rule.
func solve3(m [3][3]float64, v [3]float64) ([3]float64, bool) {
	det := func(a [3][3]float64) float64 {
		return a[0][0]*(a[1][1]*a[2][2]-a[1][2]*a[2][1]) -
			a[0][1]*(a[1][0]*a[2][2]-a[1][2]*a[2][0]) +
			a[0][2]*(a[1][0]*a[2][1]-a[1][1]*a[2][0])
	}

	d := det(m)
	if math.Abs(d) < 1e-10 {
		return [3]float64{}, false
	}

	var x [3]float64
	for col := range x {
		c := m
		for row := range c {
			c[row][col] = v[row]
		}
		x[col] = det(c) / d
	}
	return x, true
}

func uslModel(n, lambda, alpha, beta float64) float64 {
	return (lambda * n) / (1 + alpha*(n-1) + beta*n*(n-1))
}

// PredictThroughput estimates throughput at concurrency n.
func (c USLCoefficients) PredictThroughput(n int) float64 {
	return uslModel(float64(n), c.Lambda, c.Alpha, c.Beta)
}

// Efficiency returns predicted over ideal linear throughput at n.
func (c USLCoefficients) Efficiency(n int) float64 {
	ideal := c.Lambda * float64(n)
	if ideal == 0 {
		return 0
	}
	return c.PredictThroughput(n) / ideal
}

// PeakConcurrency returns N* = sqrt((1-α)/β), the concurrency beyond which
// throughput falls. It is +Inf when β is zero.
func (c USLCoefficients) PeakConcurrency() float64 {
	if c.Beta <= 0 {
		return math.Inf(1)
	}
	return math.Sqrt((1 - c.Alpha) / c.Beta)
}
