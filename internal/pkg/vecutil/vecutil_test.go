package vecutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := Decode(Encode(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = Decode([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-6)
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	require.InDelta(t, -1.0, Cosine([]float32{1, 1}, []float32{-1, -1}), 1e-6)
	require.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	require.Zero(t, Cosine([]float32{1}, []float32{1, 1}))
}
