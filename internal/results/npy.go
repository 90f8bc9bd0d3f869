// Package results persists flat numeric tables as NumPy .npy v1.0 files
// so runs can be analysed offline with numpy.load.
package results

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	DescrFloat64 = "<f8"
	DescrInt64   = "<i8"
)

var magic = []byte("\x93NUMPY")

// ErrRagged is returned for a matrix whose rows differ in length.
var ErrRagged = errors.New("rows differ in length")

// Array is a decoded .npy file. Exactly one of Float64 and Int64 is set,
// in C order.
type Array struct {
	Descr   string
	Shape   []int
	Float64 []float64
	Int64   []int64
}

// WriteFloat64Matrix writes rows as a (len(rows), cols) <f8 array.
// cols is used when rows is empty.
func WriteFloat64Matrix(w io.Writer, rows [][]float64, cols int) error {
	flat, cols, err := flatten(rows, cols)
	if err != nil {
		return err
	}
	return write(w, DescrFloat64, []int{len(rows), cols}, flat)
}

// WriteInt64Matrix writes rows as a (len(rows), cols) <i8 array.
func WriteInt64Matrix(w io.Writer, rows [][]int64, cols int) error {
	flat, cols, err := flatten(rows, cols)
	if err != nil {
		return err
	}
	return write(w, DescrInt64, []int{len(rows), cols}, flat)
}

// WriteInt64Vector writes v as a one-dimensional <i8 array.
func WriteInt64Vector(w io.Writer, v []int64) error {
	return write(w, DescrInt64, []int{len(v)}, v)
}

func flatten[T int64 | float64](rows [][]T, cols int) ([]T, int, error) {
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	flat := make([]T, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, 0, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), cols, ErrRagged)
		}
		flat = append(flat, row...)
	}
	return flat, cols, nil
}

func write(w io.Writer, descr string, shape []int, data any) error {
	if _, err := w.Write(header(descr, shape)); err != nil {
		return fmt.Errorf("write npy header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("write npy data: %w", err)
	}
	return nil
}

// header renders the magic, version and the padded dict. The total
// header length is a multiple of 64.
func header(descr string, shape []int) []byte {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shapeStr := "(" + strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	shapeStr += ")"

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeStr)
	pre := len(magic) + 2 + 2
	total := pre + len(dict) + 1
	if rem := total % 64; rem != 0 {
		total += 64 - rem
	}
	dict += strings.Repeat(" ", total-pre-len(dict)-1) + "\n"

	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(dict)))
	buf.WriteString(dict)
	return buf.Bytes()
}

var (
	descrRe   = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// Read decodes a v1.0 .npy stream of <f8 or <i8 values.
func Read(r io.Reader) (*Array, error) {
	pre := make([]byte, len(magic)+4)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, fmt.Errorf("read npy preamble: %w", err)
	}
	if !bytes.Equal(pre[:len(magic)], magic) {
		return nil, fmt.Errorf("not an npy file")
	}
	if pre[len(magic)] != 1 {
		return nil, fmt.Errorf("unsupported npy version %d.%d", pre[len(magic)], pre[len(magic)+1])
	}
	hlen := binary.LittleEndian.Uint16(pre[len(magic)+2:])
	hdr := make([]byte, hlen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}

	arr := &Array{}
	m := descrRe.FindSubmatch(hdr)
	if m == nil {
		return nil, fmt.Errorf("npy header has no descr")
	}
	arr.Descr = string(m[1])
	if m := fortranRe.FindSubmatch(hdr); m == nil || string(m[1]) != "False" {
		return nil, fmt.Errorf("only C-order arrays are supported")
	}
	m = shapeRe.FindSubmatch(hdr)
	if m == nil {
		return nil, fmt.Errorf("npy header has no shape")
	}
	n := 1
	for _, f := range strings.Split(string(m[1]), ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		d, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad npy shape %q: %w", m[1], err)
		}
		arr.Shape = append(arr.Shape, d)
		n *= d
	}

	switch arr.Descr {
	case DescrFloat64:
		arr.Float64 = make([]float64, n)
		if err := binary.Read(r, binary.LittleEndian, arr.Float64); err != nil {
			return nil, fmt.Errorf("read npy data: %w", err)
		}
	case DescrInt64:
		arr.Int64 = make([]int64, n)
		if err := binary.Read(r, binary.LittleEndian, arr.Int64); err != nil {
			return nil, fmt.Errorf("read npy data: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", arr.Descr)
	}
	return arr, nil
}

// Save creates path, including missing parent directories, and fills it
// with fn.
func Save(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Load reads the .npy file at path.
func Load(path string) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}
