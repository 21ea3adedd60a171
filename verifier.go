package fibload

import "io"

// Verifier checks one inbound payload stream against the alternating 0/1
// pattern. Chunks may have any size and need not line up with blocks.
//
// A Verifier belongs to exactly one request body; it is not safe for
// concurrent use.
type Verifier struct {
	expected int64 // total bytes the stream must carry
	count    int64 // bytes accepted so far
	err      error // first failure, sticky
}

// NewVerifier creates a verifier for a stream of expectedTotal bytes.
func NewVerifier(expectedTotal int64) *Verifier {
	return &Verifier{expected: expectedTotal}
}

// Feed checks the next chunk of the stream. It fails on the first byte that
// breaks the pattern; once failed, every later call returns the same error.
func (v *Verifier) Feed(chunk []byte) error {
	if v.err != nil {
		return v.err
	}

	want := byte(v.count & 1)
	for i, b := range chunk {
		if b != want {
			v.err = &ContentMismatchError{
				Index:         v.count + int64(i),
				ExpectedTotal: v.expected,
				Expected:      want,
				Actual:        b,
				ChunkPos:      i,
			}
			v.count += int64(i)
			return v.err
		}
		want ^= 1
	}
	v.count += int64(len(chunk))
	return nil
}

// Write implements io.Writer so a body can be verified with io.Copy.
func (v *Verifier) Write(p []byte) (int, error) {
	if err := v.Feed(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Finish compares the number of bytes seen with the expected total. Call it
// once the stream has reached EOF.
func (v *Verifier) Finish() error {
	if v.err != nil {
		return v.err
	}
	if v.count != v.expected {
		v.err = &LengthMismatchError{Expected: v.expected, Actual: v.count}
	}
	return v.err
}

// Count returns the number of bytes accepted so far.
func (v *Verifier) Count() int64 {
	return v.count
}

// Expected returns the total the stream must carry.
func (v *Verifier) Expected() int64 {
	return v.expected
}

// Consume drains r through the verifier using buf as the read buffer and
// reports each accepted chunk to onChunk, which may be nil.
func (v *Verifier) Consume(r io.Reader, buf []byte, onChunk func(int)) error {
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := v.Feed(buf[:n]); ferr != nil {
				return ferr
			}
			if onChunk != nil {
				onChunk(n)
			}
		}
		if err == io.EOF {
			return v.Finish()
		}
		if err != nil {
			return err
		}
	}
}
