package domain

// ChromaKey holds the background-removal parameters shared with clients.
type ChromaKey struct {
	Enabled    bool    `json:"enabled"`
	Color      string  `json:"color" validate:"omitempty,hexcolor"`
	Similarity float64 `json:"similarity" validate:"gte=0,lte=1"`
	Smoothness float64 `json:"smoothness" validate:"gte=0,lte=1"`
}

// Timing holds the capture countdown parameters.
type Timing struct {
	CountdownSeconds int `json:"countdownSeconds" validate:"min=1,max=10"`
}

// Settings are the durable per-room capture options. They live on the room
// and survive guest turnover.
type Settings struct {
	Chroma      ChromaKey `json:"chromaKey"`
	Timing      Timing    `json:"timing"`
	AspectRatio string    `json:"aspectRatio"`
	LayoutID    string    `json:"layoutId"`
	TotalSlots  int       `json:"totalSlots"`
	// ComposeAll defers composition until every slot has both roles
	// present instead of merging slot by slot.
	ComposeAll bool `json:"composeAll"`
}

func DefaultSettings() Settings {
	return Settings{
		Chroma:      ChromaKey{Color: "#00FF00", Similarity: 0.4, Smoothness: 0.1},
		Timing:      Timing{CountdownSeconds: 3},
		AspectRatio: "3:4",
		LayoutID:    "strip-4",
		TotalSlots:  4,
	}
}

// SettingsPatch is the tagged settings-sync payload: one optional record per
// settings category. Nil fields are untouched. Display options are ephemeral
// and forwarded without persisting.
type SettingsPatch struct {
	Chroma      *ChromaKey     `json:"chromaKey,omitempty"`
	Timing      *Timing        `json:"timing,omitempty"`
	AspectRatio *string        `json:"aspectRatio,omitempty" validate:"omitempty,oneof=3:4 9:16 1:1 16:9"`
	LayoutID    *string        `json:"layoutId,omitempty"`
	TotalSlots  *int           `json:"totalSlots,omitempty" validate:"omitempty,min=1,max=16"`
	ComposeAll  *bool          `json:"composeAll,omitempty"`
	Display     map[string]any `json:"display,omitempty"`
}

// Durable reports whether the patch touches any persisted field.
func (p *SettingsPatch) Durable() bool {
	return p.Chroma != nil || p.Timing != nil || p.AspectRatio != nil ||
		p.LayoutID != nil || p.TotalSlots != nil || p.ComposeAll != nil
}

// Apply merges the patch into the settings.
func (s *Settings) Apply(p SettingsPatch) {
	if p.Chroma != nil {
		s.Chroma = *p.Chroma
	}
	if p.Timing != nil {
		s.Timing = *p.Timing
	}
	if p.AspectRatio != nil {
		s.AspectRatio = *p.AspectRatio
	}
	if p.LayoutID != nil {
		s.LayoutID = *p.LayoutID
	}
	if p.TotalSlots != nil {
		s.TotalSlots = *p.TotalSlots
	}
	if p.ComposeAll != nil {
		s.ComposeAll = *p.ComposeAll
	}
}
