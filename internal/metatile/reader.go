package metatile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidMagic = errors.New("metatile: invalid magic")
	ErrTruncated    = errors.New("metatile: truncated file")
	ErrInvalidEntry = errors.New("metatile: invalid table of contents entry")
)

// Header is the fixed header of a metatile.
type Header struct {
	Count int32
	X     int32
	Y     int32
	Z     int32
}

// Entry locates one tile inside the container. Length 0 means no tile.
type Entry struct {
	Offset int32
	Length int32
}

// Metatile is a parsed container backed by a ReaderAt.
type Metatile struct {
	Header
	Entries []Entry

	r io.ReaderAt
}

// Read parses the header and table of contents of a container of the given
// size and checks that every entry lies inside it.
func Read(r io.ReaderAt, size int64) (*Metatile, error) {
	buf := make([]byte, HeaderSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	var fh fileHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &fh); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	if string(fh.Magic[:]) != Magic {
		return nil, ErrInvalidMagic
	}
	if fh.Count < 0 || HeaderSize+8*int64(fh.Count) > size {
		return nil, fmt.Errorf("%w: %d entries do not fit in %d bytes", ErrTruncated, fh.Count, size)
	}

	entries := make([]Entry, fh.Count)
	if fh.Count > 0 {
		tocData := make([]byte, 8*int(fh.Count))
		if _, err := r.ReadAt(tocData, HeaderSize); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		if err := binary.Read(bytes.NewReader(tocData), binary.LittleEndian, entries); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
	}

	for i, e := range entries {
		if e.Offset < 0 || e.Length < 0 || int64(e.Offset)+int64(e.Length) > size {
			return nil, fmt.Errorf("%w: entry %d (%d, %d) outside %d bytes", ErrInvalidEntry, i, e.Offset, e.Length, size)
		}
	}

	return &Metatile{
		Header:  Header{Count: fh.Count, X: fh.X, Y: fh.Y, Z: fh.Z},
		Entries: entries,
		r:       r,
	}, nil
}

// ReadBytes parses a container held in memory.
func ReadBytes(data []byte) (*Metatile, error) {
	return Read(bytes.NewReader(data), int64(len(data)))
}

// Tile returns the payload of entry i, or an empty slice for an absent tile.
func (m *Metatile) Tile(i int) ([]byte, error) {
	if i < 0 || i >= len(m.Entries) {
		return nil, fmt.Errorf("metatile: tile index %d out of range", i)
	}
	e := m.Entries[i]
	data := make([]byte, e.Length)
	if e.Length == 0 {
		return data, nil
	}
	if _, err := m.r.ReadAt(data, int64(e.Offset)); err != nil {
		return nil, err
	}
	return data, nil
}

// Index returns the entry index of tile (x, y), or -1 when it is not part of
// the grid.
func (m *Metatile) Index(x, y int) int {
	n := m.Size()
	dx, dy := x-int(m.X), y-int(m.Y)
	if n == 0 || dx < 0 || dy < 0 || dx >= n || dy >= n {
		return -1
	}
	return dx*n + dy
}

// Size returns the grid edge length, or 0 when the count is not a square.
func (m *Metatile) Size() int {
	n := 0
	for n*n < int(m.Count) {
		n++
	}
	if n*n != int(m.Count) {
		return 0
	}
	return n
}
