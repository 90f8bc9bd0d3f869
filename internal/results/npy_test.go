package results

import (
	"bytes"
	"encoding/binary"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFloat64Matrix(&buf, [][]float64{{1, 2.5}, {3, 4}}, 2))

	b := buf.Bytes()
	require.True(t, bytes.HasPrefix(b, []byte("\x93NUMPY\x01\x00")))

	hlen := int(binary.LittleEndian.Uint16(b[8:10]))
	assert.Equal(t, 0, (10+hlen)%64, "data must start on a 64 byte boundary")
	hdr := string(b[10 : 10+hlen])
	assert.Contains(t, hdr, "'descr': '<f8'")
	assert.Contains(t, hdr, "'shape': (2, 2)")
	assert.Equal(t, byte('\n'), hdr[len(hdr)-1])
	assert.Len(t, b, 10+hlen+4*8)
}

func TestFloat64MatrixRoundTrip(t *testing.T) {
	rows := [][]float64{{0, 12.25}, {3, 1e6}, {1, 0.5}}
	var buf bytes.Buffer
	require.NoError(t, WriteFloat64Matrix(&buf, rows, 2))

	arr, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, DescrFloat64, arr.Descr)
	assert.Equal(t, []int{3, 2}, arr.Shape)
	assert.Equal(t, []float64{0, 12.25, 3, 1e6, 1, 0.5}, arr.Float64)
	assert.Nil(t, arr.Int64)
}

func TestInt64VectorRoundTrip(t *testing.T) {
	ids := []int64{9036492561357317169, 6514261184053120647, 0}
	var buf bytes.Buffer
	require.NoError(t, WriteInt64Vector(&buf, ids))

	assert.Contains(t, buf.String(), "'shape': (3,)")
	arr, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, arr.Shape)
	assert.Equal(t, ids, arr.Int64)
}

func TestEmptyMatrixKeepsColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInt64Matrix(&buf, nil, 2))

	arr, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, arr.Shape)
	assert.Empty(t, arr.Int64)
}

func TestRaggedRowsRejected(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFloat64Matrix(&buf, [][]float64{{1, 2}, {3}}, 2)
	assert.ErrorIs(t, err, ErrRagged)
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not numpy at all")))
	assert.Error(t, err)

	_, err = Read(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestSaveCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "today", "ids.npy")
	require.NoError(t, Save(path, func(w io.Writer) error {
		return WriteInt64Vector(w, []int64{1, 2, 3})
	}))

	arr, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, arr.Int64)
}
