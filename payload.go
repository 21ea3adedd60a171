package fibload

import (
	"io"
	"iter"
	"log/slog"
)

// Block layout constants.
//
// Block sizes are multiples of a prime so that a receiver reading with a
// fixed buffer size sees many different remainders at block boundaries.
const (
	baseBlocks = 241 // blocks sent even for n = 0
	blocksPerN = 67  // additional blocks per unit of n
	blockUnit  = 967 // every block is blockUnit * multiplier bytes
)

var multipliers = [...]int{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67, 71, 73, 79, 83, 89, 97,
}

// Block is one contiguous chunk of the payload for a given n.
type Block struct {
	Offset int64 // Running offset: bytes emitted before this block
	Size   int   // Block length in bytes
}

// BlockCount returns the number of blocks in the payload for n.
func BlockCount(n int) int {
	return baseBlocks + blocksPerN*n
}

// blockSize returns the size of the block at 1-based index i.
func blockSize(i int) int {
	return blockUnit * multipliers[i%len(multipliers)]
}

// Sequence returns the block layout for n. The sequence is a pure function of n
// and may be ranged over any number of times, concurrently.
func Sequence(n int) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		var offset int64
		for i := 1; i <= BlockCount(n); i++ {
			size := blockSize(i)
			if !yield(Block{Offset: offset, Size: size}) {
				return
			}
			offset += int64(size)
		}
	}
}

// TotalBytes returns the payload length for n by walking the full sequence.
func TotalBytes(n int) int64 {
	var total int64
	for b := range Sequence(n) {
		total += int64(b.Size)
	}
	return total
}

// ExpectedBytes returns the same value as TotalBytes without walking every
// block: each full cycle of multipliers contributes the same amount.
func ExpectedBytes(n int) int64 {
	var cycle int64
	for _, m := range multipliers {
		cycle += int64(m)
	}

	count := BlockCount(n)
	full, rest := count/len(multipliers), count%len(multipliers)

	units := int64(full) * cycle
	for i := 1; i <= rest; i++ {
		units += int64(multipliers[i])
	}
	return units * blockUnit
}

// fillBlock writes the alternating 0/1 pattern for a block into buf.
func fillBlock(buf []byte, offset int64) {
	v := byte(offset & 1)
	for i := range buf {
		buf[i] = v
		v ^= 1
	}
}

// Blocks returns the payload for n as a sequence of freshly allocated buffers,
// one per block.
func Blocks(n int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for b := range Sequence(n) {
			buf := make([]byte, b.Size)
			fillBlock(buf, b.Offset)
			if !yield(buf) {
				return
			}
		}
	}
}

// Writer streams the payload for n as an io.Reader. At most one block is held
// in memory at a time, so it can be handed to an HTTP client as a request body.
// A Writer has a single reader and is not safe for concurrent use.
type Writer struct {
	n      int
	logger *slog.Logger

	index  int    // 1-based index of the next block to generate
	offset int64  // running offset of the next block
	buf    []byte // current block
	pos    int    // read position inside buf
	done   bool
	copied int64
}

// NewWriter creates a payload stream for n.
func NewWriter(n int, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{n: n, logger: logger, index: 1}
}

// Read implements io.Reader.
func (w *Writer) Read(p []byte) (int, error) {
	if w.done {
		return 0, io.EOF
	}

	written := 0
	for written < len(p) {
		if w.pos == len(w.buf) && !w.advance() {
			w.done = true
			break
		}
		c := copy(p[written:], w.buf[w.pos:])
		w.pos += c
		written += c
	}
	w.copied += int64(written)

	if w.done {
		w.logger.Debug("wrote payload", "n", w.n, "bytes", w.copied)
		if written == 0 {
			return 0, io.EOF
		}
	}
	return written, nil
}

// advance generates the next block into buf, reusing its storage.
func (w *Writer) advance() bool {
	if w.index > BlockCount(w.n) {
		return false
	}
	size := blockSize(w.index)
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	w.buf = w.buf[:size]
	fillBlock(w.buf, w.offset)

	w.pos = 0
	w.offset += int64(size)
	w.index++
	return true
}

// Written returns the number of bytes handed out so far.
func (w *Writer) Written() int64 {
	return w.copied
}
