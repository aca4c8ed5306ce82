package yolov3

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// ErrUnsupportedOutput is returned when a network output cannot be read as
// detection rows.
var ErrUnsupportedOutput = errors.New("unsupported detection output")

// TensorFromMat copies a 2-D CV_32F network output blob into a Tensor.
//
// Arguments:
//   - mat: The output blob. It is not modified or closed.
//
// Returns:
//   - The rows of the blob.
//   - An error if the blob is not a 2-D float32 matrix.
func TensorFromMat(mat gocv.Mat) (Tensor, error) {
	if mat.Empty() {
		return nil, nil
	}
	if mat.Type() != gocv.MatTypeCV32F {
		return nil, errors.Wrapf(ErrUnsupportedOutput, "mat type %v", mat.Type())
	}

	rows, cols := mat.Rows(), mat.Cols()
	out := make(Tensor, rows)
	for r := 0; r < rows; r++ {
		row := make(Row, cols)
		for c := 0; c < cols; c++ {
			row[c] = mat.GetFloatAt(r, c)
		}
		out[r] = row
	}

	return out, nil
}

// TensorFromDense reads detection rows from a dense tensor of shape
// (rows, cols) or (1, rows, cols). Float32 and float64 backings are accepted.
func TensorFromDense(d *tensor.Dense) (Tensor, error) {
	shape := d.Shape()
	var rows, cols int
	switch {
	case len(shape) == 2:
		rows, cols = shape[0], shape[1]
	case len(shape) == 3 && shape[0] == 1:
		rows, cols = shape[1], shape[2]
	default:
		return nil, errors.Wrapf(ErrUnsupportedOutput, "shape %v", shape)
	}

	if d.IsMaterializable() {
		// Views are copied out so the backing is read in row order.
		d = d.Materialize().(*tensor.Dense)
	}

	var values []float32
	switch backing := d.Data().(type) {
	case []float32:
		values = backing
	case []float64:
		values = make([]float32, len(backing))
		for i, v := range backing {
			values[i] = float32(v)
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedOutput, "dtype %v", d.Dtype())
	}
	if len(values) < rows*cols {
		return nil, errors.Wrapf(ErrUnsupportedOutput, "backing has %d values for shape %v", len(values), shape)
	}

	out := make(Tensor, rows)
	for r := 0; r < rows; r++ {
		row := make(Row, cols)
		copy(row, values[r*cols:(r+1)*cols])
		out[r] = row
	}

	return out, nil
}
