// Package fibload is a self-referential HTTP load generator.
//
// # Overview
//
// A fibload server answers GET|POST /<n> with fib(n), where fib(n) = 1 for
// n <= 2. For larger n it does not compute anything itself: it asks two peers
// for fib(n-1) and fib(n-2) over HTTP and sums the answers. Every peer is the
// same process reached through a different loopback address, so one request
// grows into a tree of CallCount(n) dependent, concurrent exchanges.
//
// # Components
//
//   - Sequence, TotalBytes   - deterministic block layout of the payload for n
//   - Writer                 - streams the payload as a request body
//   - Verifier               - checks an inbound body byte by byte
//   - Dispatcher             - fans out the two child requests
//   - Router                 - the /<n> endpoint
//   - Rotation               - round-robin over 127.0.0.1..127.0.0.250
//   - Metrics, LatencyWindow - request counters and recent latency percentiles
//   - PrintInfo              - call count and upload size tables
//
// # Payload
//
// In POST mode every child request carries a body derived from the child's n
// alone. The body is 241+67n blocks; block i is 967*p bytes where p is the
// (i mod 25)-th prime below 100. Byte k of the stream is k mod 2. The receiver
// recomputes the expected length from n and verifies every byte, so sender
// and receiver never exchange a size:
//
//	v := fibload.NewVerifier(fibload.TotalBytes(n))
//	if err := v.Consume(body, buf, nil); err != nil {
//	    // *ContentMismatchError or *LengthMismatchError
//	}
//
// # Failures
//
// Nothing is retried. A corrupted or truncated body, a refused connection or
// a malformed child response fails the request and every ancestor waiting on
// it; the point is to surface transport problems under load, not to hide them.
//
// # Measuring
//
// Run drives an Operation at several concurrency levels and FitUSL fits the
// Universal Scalability Law to the throughput curve:
//
//	C(N) = λN / (1 + α(N-1) + βN(N-1))
//
// The bench command uses FibonacciOperation to send root requests to a
// running server that way and reports CheckScalability findings for the fit.
package fibload
