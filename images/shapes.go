// Package images - Image geometry and region utilities.
package images

import (
	"fmt"
	"image"
	"math"
)

// Rect is a detection box in pixel units, stored in corner form.
//
// X and Y are the top-left corner, W and H the extent. Coordinates may be
// negative or exceed the image until the box is validated with Inside.
type Rect struct {
	X, Y, W, H float64
}

// NewRectFromCenter builds a Rect from center-form coordinates.
//
// Arguments:
//   - cx, cy: The center of the box.
//   - w, h: The width and height of the box.
//
// Returns:
//   - The corner-form rectangle.
func NewRectFromCenter(cx, cy, w, h float64) Rect {
	return Rect{X: cx - w/2, Y: cy - h/2, W: w, H: h}
}

// Right returns the exclusive right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Area returns W*H, or zero for degenerate boxes.
func (r Rect) Area() float64 {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Inside reports whether the box lies fully inside a width x height image.
//
// The check is strict about every edge: a box touching the right or bottom
// border is accepted, a box crossing it is not. Boxes with a negative width
// or height are never inside.
func (r Rect) Inside(width, height int) bool {
	return r.W >= 0 &&
		r.H >= 0 &&
		r.X >= 0 &&
		r.Y >= 0 &&
		r.X+r.W <= float64(width) &&
		r.Y+r.H <= float64(height)
}

// Truncate converts the box to the pixel grid.
//
// Every component is truncated toward zero on its own, matching the
// integer rectangle OpenCV builds from a Rect2d, so the resulting width is
// int(W) and not int(X+W)-int(X).
//
// Returns:
//   - The integer rectangle.
//
// Example:
//
// ```go
//
//	r := Rect{X: 166.4, Y: 166.4, W: 83.2, H: 83.2}
//	fmt.Println(r.Truncate()) // (166,166)-(249,249)
//
// ```
func (r Rect) Truncate() image.Rectangle {
	x, y := int(r.X), int(r.Y)
	return image.Rect(x, y, x+int(r.W), y+int(r.H))
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.1f,%.1f %.1fx%.1f]", r.X, r.Y, r.W, r.H)
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// IoU is the area where the boxes overlap divided by the total area they
// cover together:
//
//	IoU = Area of Intersection / Area of Union
//
// The intersection starts at the larger of the two top-left corners and
// ends at the smaller of the two bottom-right corners. When either side of
// that rectangle is zero or negative the boxes do not overlap and the result
// is 0. The union follows inclusion-exclusion:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// Arguments:
//   - r: The first box.
//   - o: The box to compare against.
//
// Returns:
//   - A value in [0, 1]. Two degenerate boxes yield 0.
//
// Example:
//
// ```go
//
//	a := Rect{X: 0, Y: 0, W: 10, H: 10}
//	b := Rect{X: 5, Y: 5, W: 10, H: 10}
//	fmt.Printf("%f\n", CalculateIoU(a, b)) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float64 {
	ix1 := math.Max(r.X, o.X)
	iy1 := math.Max(r.Y, o.Y)
	ix2 := math.Min(r.Right(), o.Right())
	iy2 := math.Min(r.Bottom(), o.Bottom())

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0
	}

	return interArea / unionArea
}
