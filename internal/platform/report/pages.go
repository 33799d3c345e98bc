package report

// Cursor is the current page number and the vertical offset on that page.
type Cursor struct {
	Page int
	Y    float64
}

// PageManager owns the page sequence of one layout pass. It is not safe for
// concurrent use; every generation creates its own.
type PageManager struct {
	geom   Geometry
	pages  []Page
	cursor Cursor
}

// NewPageManager returns a manager with no pages yet.
func NewPageManager(geom Geometry) *PageManager {
	return &PageManager{geom: geom}
}

// StartNewPage appends a page numbered one past the previous page and moves
// the cursor to its top margin.
func (pm *PageManager) StartNewPage() Cursor {
	number := len(pm.pages) + 1
	pm.pages = append(pm.pages, Page{Number: number})
	pm.cursor = Cursor{Page: number, Y: pm.geom.MarginTop}
	return pm.cursor
}

// Cursor returns the current cursor.
func (pm *PageManager) Cursor() Cursor {
	return pm.cursor
}

// Fits reports whether a unit of the given height fits below the cursor
// without crossing the printable bottom.
func (pm *PageManager) Fits(height float64) bool {
	return pm.cursor.Y+height <= pm.geom.PrintableBottom()
}

// PageEmpty reports whether nothing has been placed on the current page.
func (pm *PageManager) PageEmpty() bool {
	if len(pm.pages) == 0 {
		return true
	}
	return len(pm.pages[len(pm.pages)-1].Placements) == 0
}

// Place records p on the current page at the cursor and advances the cursor
// by the placement height plus its style's trailing space. Place starts the
// first page if none exists.
func (pm *PageManager) Place(p Placement) Placement {
	if len(pm.pages) == 0 {
		pm.StartNewPage()
	}
	p.X = pm.geom.MarginLeft
	p.Y = pm.cursor.Y

	last := &pm.pages[len(pm.pages)-1]
	last.Placements = append(last.Placements, p)
	pm.cursor.Y += p.Height + p.Style.SpaceAfter
	return p
}

// Pages returns the pages laid out so far. The total is final only once the
// layout pass has consumed every block.
func (pm *PageManager) Pages() []Page {
	out := make([]Page, len(pm.pages))
	copy(out, pm.pages)
	return out
}
