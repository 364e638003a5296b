// attention.go - Gemeinsamer Attention-Kern fuer Dense- und Varlen-Pfad
// Enthält: attendHead (Scores, Maske, Softmax, Gewichtung der Values)

package host

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

var negInf = float32(math.Inf(-1))

// attendHead computes softmax(q @ k^T * scale) @ v for one head and writes
// the result into out. keep reports whether query row i may attend key row
// j; nil keeps everything. Rows without any kept key produce zeros.
func attendHead(q, k, v, out blas32.General, scale float32, keep func(i, j int) bool) {
	if q.Rows == 0 || k.Rows == 0 || q.Cols == 0 {
		for i := range out.Rows {
			clear(out.Data[i*out.Stride : i*out.Stride+out.Cols])
		}
		return
	}

	scores := blas32.General{
		Rows:   q.Rows,
		Cols:   k.Rows,
		Stride: k.Rows,
		Data:   make([]float32, q.Rows*k.Rows),
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, scale, q, k, 0, scores)

	for i := range scores.Rows {
		row := scores.Data[i*scores.Stride : i*scores.Stride+scores.Cols]
		if keep != nil {
			for j := range row {
				if !keep(i, j) {
					row[j] = negInf
				}
			}
		}
		softmax(row)
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, scores, v, 0, out)
}

// softmax normalisiert row in place; komplett maskierte Zeilen werden 0
func softmax(row []float32) {
	maxVal := negInf
	for _, s := range row {
		maxVal = max(maxVal, s)
	}

	if math.IsInf(float64(maxVal), -1) {
		clear(row)
		return
	}

	var sum float64
	for j, s := range row {
		e := math.Exp(float64(s - maxVal))
		row[j] = float32(e)
		sum += e
	}

	inv := float32(1 / sum)
	for j := range row {
		row[j] *= inv
	}
}

func defaultScale(scale float64, headDim int) float32 {
	if scale == 0 {
		return float32(1 / math.Sqrt(float64(headDim)))
	}
	return float32(scale)
}
