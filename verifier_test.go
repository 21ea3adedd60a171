package fibload

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func payload(t *testing.T, n int) []byte {
	t.Helper()
	data, err := io.ReadAll(NewWriter(n, nil))
	if err != nil {
		t.Fatalf("generate payload: %v", err)
	}
	return data
}

// feedChunks feeds data in chunks of the given sizes, cycling through them.
func feedChunks(v *Verifier, data []byte, sizes ...int) error {
	for i := 0; len(data) > 0; i++ {
		size := min(sizes[i%len(sizes)], len(data))
		if err := v.Feed(data[:size]); err != nil {
			return err
		}
		data = data[size:]
	}
	return v.Finish()
}

func TestVerifier_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 3} {
		data := payload(t, n)
		v := NewVerifier(TotalBytes(n))

		if err := feedChunks(v, data, 1, 4096, 32*1024, 12345); err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if v.Count() != TotalBytes(n) {
			t.Errorf("n=%d: expected count %d, got %d", n, TotalBytes(n), v.Count())
		}
	}
}

func TestVerifier_Consume(t *testing.T) {
	v := NewVerifier(TotalBytes(2))
	var seen int
	err := v.Consume(NewWriter(2, nil), make([]byte, 32*1024), func(n int) { seen += n })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if int64(seen) != TotalBytes(2) {
		t.Errorf("onChunk saw %d bytes, expected %d", seen, TotalBytes(2))
	}
}

func TestVerifier_Corruption(t *testing.T) {
	data := payload(t, 0)

	for _, idx := range []int{0, 1, 2900, 4096, len(data) - 1} {
		corrupt := bytes.Clone(data)
		corrupt[idx] ^= 1

		v := NewVerifier(int64(len(data)))
		err := feedChunks(v, corrupt, 4096)

		var mismatch *ContentMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("idx=%d: expected ContentMismatchError, got %v", idx, err)
		}
		if mismatch.Index != int64(idx) {
			t.Errorf("idx=%d: reported index %d", idx, mismatch.Index)
		}
		if mismatch.ChunkPos != idx%4096 {
			t.Errorf("idx=%d: expected chunk position %d, got %d", idx, idx%4096, mismatch.ChunkPos)
		}
		if mismatch.Expected != byte(idx%2) || mismatch.Actual != byte(idx%2)^1 {
			t.Errorf("idx=%d: expected=%d actual=%d", idx, mismatch.Expected, mismatch.Actual)
		}
		if mismatch.ExpectedTotal != int64(len(data)) {
			t.Errorf("idx=%d: expected total %d, got %d", idx, len(data), mismatch.ExpectedTotal)
		}
	}
}

func TestVerifier_FailureIsSticky(t *testing.T) {
	v := NewVerifier(4)
	first := v.Feed([]byte{0, 0})
	if first == nil {
		t.Fatal("expected mismatch")
	}
	if err := v.Feed([]byte{0, 1}); err != first {
		t.Errorf("expected the first error again, got %v", err)
	}
	if err := v.Finish(); err != first {
		t.Errorf("Finish should return the content error, got %v", err)
	}
}

func TestVerifier_Truncation(t *testing.T) {
	data := payload(t, 1)
	expected := int64(len(data))

	for _, k := range []int{1, 2, 1000} {
		v := NewVerifier(expected)
		err := feedChunks(v, data[:len(data)-k], 8192)

		var length *LengthMismatchError
		if !errors.As(err, &length) {
			t.Fatalf("k=%d: expected LengthMismatchError, got %v", k, err)
		}
		if length.Expected != expected {
			t.Errorf("k=%d: expected=%d, want %d", k, length.Expected, expected)
		}
		if length.Actual != expected-int64(k) {
			t.Errorf("k=%d: actual=%d, want %d", k, length.Actual, expected-int64(k))
		}
	}
}

func TestVerifier_ExtraBytes(t *testing.T) {
	data := append(payload(t, 0), 0, 1)
	v := NewVerifier(TotalBytes(0))

	var length *LengthMismatchError
	if err := feedChunks(v, data, 65536); !errors.As(err, &length) {
		t.Fatalf("expected LengthMismatchError, got %v", err)
	}
	if length.Actual != TotalBytes(0)+2 {
		t.Errorf("expected actual %d, got %d", TotalBytes(0)+2, length.Actual)
	}
}

func TestVerifier_Writer(t *testing.T) {
	v := NewVerifier(TotalBytes(1))
	if _, err := io.Copy(v, NewWriter(1, nil)); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if err := v.Finish(); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
}
