package rag

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
)

// matrixMagic prefixes every persisted embeddings file.
var matrixMagic = [4]byte{'M', 'C', 'E', 'V'}

const matrixVersion uint32 = 1

// Matrix is a dense row-major float32 matrix holding one embedding per row.
type Matrix struct {
	// Dim is the number of columns (the embedding dimension).
	Dim int
	// Data holds Rows()*Dim values.
	Data []float32
}

// NewMatrix packs vectors into a Matrix. All vectors must share a non-zero
// length.
func NewMatrix(vectors [][]float32) (*Matrix, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("rag: matrix: no vectors")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("rag: matrix: zero-length vector")
	}
	data := make([]float32, 0, dim*len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("rag: matrix: vector %d has dimension %d, want %d", i, len(v), dim)
		}
		data = append(data, v...)
	}
	return &Matrix{Dim: dim, Data: data}, nil
}

// Rows returns the number of vectors.
func (m *Matrix) Rows() int {
	if m == nil || m.Dim == 0 {
		return 0
	}
	return len(m.Data) / m.Dim
}

// Row returns a view of row i. The slice aliases the matrix storage.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Dim : (i+1)*m.Dim : (i+1)*m.Dim]
}

// WriteMatrix persists m to path atomically.
func WriteMatrix(path string, m *Matrix) error {
	return writeFileAtomic(path, m.encode)
}

// encode writes the on-disk form of m.
//
// Layout (little endian): magic[4] version:u32 dim:u32 rows:u32
// data:f32[rows*dim] crc32(data):u32.
func (m *Matrix) encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	header := []uint32{matrixVersion, uint32(m.Dim), uint32(m.Rows())}
	if _, err := bw.Write(matrixMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}
	sum := crc32.NewIEEE()
	if err := binary.Write(io.MultiWriter(bw, sum), binary.LittleEndian, m.Data); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, sum.Sum32()); err != nil {
		return err
	}
	return bw.Flush()
}

// Checksum returns the CRC-32 (IEEE) of the little-endian vector data, the
// same value [WriteMatrix] stores in the file trailer.
func (m *Matrix) Checksum() uint32 {
	sum := crc32.NewIEEE()
	var buf [4]byte
	for _, v := range m.Data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		sum.Write(buf[:])
	}
	return sum.Sum32()
}

// ReadMatrix loads a matrix written by [WriteMatrix]. A missing file returns
// an error satisfying errors.Is(err, fs.ErrNotExist); any structural problem
// returns an error wrapping [ErrCorrupt].
func ReadMatrix(path string) (*Matrix, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rag: read embeddings %s: %w", path, err)
	}

	const headerLen = 4 + 3*4
	if len(raw) < headerLen+4 {
		return nil, fmt.Errorf("%w: %s: truncated header", ErrCorrupt, path)
	}
	if !bytes.Equal(raw[:4], matrixMagic[:]) {
		return nil, fmt.Errorf("%w: %s: bad magic", ErrCorrupt, path)
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	dim := int(binary.LittleEndian.Uint32(raw[8:12]))
	rows := int(binary.LittleEndian.Uint32(raw[12:16]))
	if version != matrixVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, path, version)
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: %s: zero dimension", ErrCorrupt, path)
	}

	payload := raw[headerLen : len(raw)-4]
	if len(payload) != rows*dim*4 {
		return nil, fmt.Errorf("%w: %s: expected %d bytes of vectors, found %d", ErrCorrupt, path, rows*dim*4, len(payload))
	}
	if got, want := crc32.ChecksumIEEE(payload), binary.LittleEndian.Uint32(raw[len(raw)-4:]); got != want {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrCorrupt, path)
	}

	data := make([]float32, rows*dim)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return &Matrix{Dim: dim, Data: data}, nil
}
