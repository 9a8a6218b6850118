// Package layout resolves resolution-independent slot layouts to concrete
// pixel rectangles for a target canvas.
package layout

import (
	"fmt"
	"math"
	"sort"
)

// SlotRatio is one slot rectangle expressed as fractions of the canvas.
type SlotRatio struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Order int     `json:"order"`
}

// Frame is a named, immutable arrangement of slot rectangles plus
// canvas-independent metadata.
type Frame struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	SlotCount  int         `json:"slotCount"`
	Slots      []SlotRatio `json:"slots"`
	Background string      `json:"background,omitempty"`
	Overlay    string      `json:"overlay,omitempty"`
}

// Rect is a resolved pixel rectangle. W and H are always even; downstream
// video encoding rejects odd dimensions.
type Rect struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	W     int `json:"w"`
	H     int `json:"h"`
	Order int `json:"order"`
}

// Validate checks the frame's internal consistency. A mismatch is a
// configuration error caught at catalog load, not a runtime fault.
func (f *Frame) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("frame has no id")
	}
	if f.SlotCount != len(f.Slots) {
		return fmt.Errorf("frame %s: slotCount %d but %d positions", f.ID, f.SlotCount, len(f.Slots))
	}
	for i, s := range f.Slots {
		if s.W <= 0 || s.H <= 0 {
			return fmt.Errorf("frame %s: slot %d has empty extent", f.ID, i)
		}
		if s.X < 0 || s.Y < 0 || s.X+s.W > 1.0001 || s.Y+s.H > 1.0001 {
			return fmt.Errorf("frame %s: slot %d out of canvas", f.ID, i)
		}
	}
	return nil
}

// Resolve maps every slot ratio to pixel coordinates for the target canvas,
// ordered by stacking order.
func (f *Frame) Resolve(width, height int) []Rect {
	out := make([]Rect, 0, len(f.Slots))
	for _, s := range f.Slots {
		out = append(out, Rect{
			X:     roundPixel(s.X * float64(width)),
			Y:     roundPixel(s.Y * float64(height)),
			W:     nearestEven(s.W * float64(width)),
			H:     nearestEven(s.H * float64(height)),
			Order: s.Order,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Grid computes cols*rows equal ratio rectangles in row-major order.
// Padding is the outer margin ratio, gap the spacing ratio between cells;
// both apply per axis.
func Grid(cols, rows int, padding, gap float64) []SlotRatio {
	cellW := (1 - 2*padding - float64(cols-1)*gap) / float64(cols)
	cellH := (1 - 2*padding - float64(rows-1)*gap) / float64(rows)
	out := make([]SlotRatio, 0, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out = append(out, SlotRatio{
				X:     padding + float64(c)*(cellW+gap),
				Y:     padding + float64(r)*(cellH+gap),
				W:     cellW,
				H:     cellH,
				Order: r*cols + c,
			})
		}
	}
	return out
}

func roundPixel(v float64) int {
	return int(math.Round(v))
}

// nearestEven rounds toward the nearest even integer, rounding down on
// ties, and never returns less than 2 for a positive input.
func nearestEven(v float64) int {
	if v <= 0 {
		return 0
	}
	half := v / 2
	lower := math.Floor(half)
	if half-lower > 0.5 {
		lower++
	}
	n := int(lower) * 2
	if n < 2 {
		n = 2
	}
	return n
}
