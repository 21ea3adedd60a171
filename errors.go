package fibload

import "fmt"

// ParseError reports a request path that does not carry a valid n.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid fibonacci parameter in path %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ContentMismatchError reports the first payload byte that broke the 0/1 pattern.
type ContentMismatchError struct {
	Index         int64 // global byte index of the bad byte
	ExpectedTotal int64 // bytes expected in the whole stream
	Expected      byte
	Actual        byte
	ChunkPos      int // position of the bad byte inside the chunk that carried it
}

func (e *ContentMismatchError) Error() string {
	return fmt.Sprintf("unexpected byte received! index=%d/%d, expected=%d, value=%d, chunkpos=%d",
		e.Index, e.ExpectedTotal, e.Expected, e.Actual, e.ChunkPos)
}

// LengthMismatchError reports a payload stream that ended with the wrong byte count.
type LengthMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("unexpected byte count received! expected=%d, received=%d", e.Expected, e.Actual)
}

// TransportError reports a failed child request. StatusCode is zero when no
// response was received.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request %s failed with status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("request %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
