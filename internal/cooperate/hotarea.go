package cooperate

// DefaultHotAreaWidth is the width in pixels of each edge band.
const DefaultHotAreaWidth = 10

// HotArea tracks which edge band the pointer is in. Left and right bands take
// precedence over top and bottom in the corners. Not safe for concurrent use.
type HotArea struct {
	width, height, band int32

	area   HotAreaType
	isEdge bool
}

// NewHotArea creates a tracker for a width x height screen.
func NewHotArea(width, height, band int32) *HotArea {
	if band <= 0 {
		band = DefaultHotAreaWidth
	}
	return &HotArea{width: width, height: height, band: band, area: HotAreaNone}
}

// Classify returns the band containing (x, y) and whether the point lies on the
// outermost pixel row or column.
func (h *HotArea) Classify(x, y int32) (HotAreaType, bool) {
	isEdge := x <= 0 || y <= 0 || x >= h.width-1 || y >= h.height-1
	switch {
	case x < h.band:
		return HotAreaLeft, isEdge
	case x >= h.width-h.band:
		return HotAreaRight, isEdge
	case y < h.band:
		return HotAreaTop, isEdge
	case y >= h.height-h.band:
		return HotAreaBottom, isEdge
	}
	return HotAreaNone, isEdge
}

// Update moves the pointer and reports whether the band or edge flag changed.
func (h *HotArea) Update(x, y int32) (area HotAreaType, isEdge, changed bool) {
	area, isEdge = h.Classify(x, y)
	changed = area != h.area || isEdge != h.isEdge
	h.area, h.isEdge = area, isEdge
	return area, isEdge, changed
}

// Current returns the last band.
func (h *HotArea) Current() HotAreaType {
	return h.area
}
