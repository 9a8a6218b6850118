package layout

import "fmt"

// Catalog is the process-wide frame table. Immutable after construction;
// safe for concurrent reads.
type Catalog struct {
	frames map[string]*Frame
	order  []string
}

// NewCatalog validates every frame and rejects the whole catalog on the
// first inconsistency.
func NewCatalog(frames ...*Frame) (*Catalog, error) {
	c := &Catalog{frames: make(map[string]*Frame, len(frames))}
	for _, f := range frames {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.frames[f.ID]; dup {
			return nil, fmt.Errorf("duplicate frame id %s", f.ID)
		}
		c.frames[f.ID] = f
		c.order = append(c.order, f.ID)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (*Frame, bool) {
	f, ok := c.frames[id]
	return f, ok
}

func (c *Catalog) List() []*Frame {
	out := make([]*Frame, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.frames[id])
	}
	return out
}

// BuiltIn returns the default frame catalog shipped with the server.
func BuiltIn() *Catalog {
	c, err := NewCatalog(
		&Frame{
			ID:         "strip-4",
			Name:       "4-cut strip",
			SlotCount:  4,
			Slots:      Grid(1, 4, 0.04, 0.02),
			Background: "#111111",
		},
		&Frame{
			ID:         "grid-2x2",
			Name:       "2x2 grid",
			SlotCount:  4,
			Slots:      Grid(2, 2, 0.025, 0.0125),
			Background: "#FFFFFF",
		},
		&Frame{
			ID:         "single",
			Name:       "full frame",
			SlotCount:  1,
			Slots:      []SlotRatio{{X: 0, Y: 0, W: 1, H: 1, Order: 0}},
			Background: "#000000",
			Overlay:    "overlays/polaroid.png",
		},
		&Frame{
			ID:         "grid-2x3",
			Name:       "2x3 grid",
			SlotCount:  6,
			Slots:      Grid(2, 3, 0.03, 0.015),
			Background: "#FFFFFF",
		},
	)
	if err != nil {
		// Built-in frames are compile-time data; failing here is a bug.
		panic(err)
	}
	return c
}
