package frame

// Rect is a normalized bounding box: coordinates in [0, 1] with X1 < X2 and
// Y1 < Y2. Resolution-agnostic so boxes survive stream quality changes.
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether the rect is normalized and non-degenerate.
func (r Rect) Valid() bool {
	return r.X1 >= 0 && r.Y1 >= 0 && r.X2 <= 1 && r.Y2 <= 1 && r.X1 < r.X2 && r.Y1 < r.Y2
}

// Area returns the normalized area.
func (r Rect) Area() float64 {
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return 0
	}
	return (r.X2 - r.X1) * (r.Y2 - r.Y1)
}

// IoU returns the intersection-over-union with other, in [0, 1].
func (r Rect) IoU(other Rect) float64 {
	ix1 := max(r.X1, other.X1)
	iy1 := max(r.Y1, other.Y1)
	ix2 := min(r.X2, other.X2)
	iy2 := min(r.Y2, other.Y2)

	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := r.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
