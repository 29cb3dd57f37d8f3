package pdfexport

import "fmt"

// Geometry describes a portrait page and its uniform margin, in mm.
type Geometry struct {
	PageWidth  float64
	PageHeight float64
	Margin     float64
}

// A4 is the page used for record printing: 210x297mm with 15mm margins,
// leaving a 180x267mm content box.
var A4 = Geometry{PageWidth: 210, PageHeight: 297, Margin: 15}

// heightTolerance absorbs float error so content that is an exact multiple
// of the content height does not produce a trailing blank page.
const heightTolerance = 0.01

func (g Geometry) ContentWidth() float64  { return g.PageWidth - 2*g.Margin }
func (g Geometry) ContentHeight() float64 { return g.PageHeight - 2*g.Margin }

// Layout is the placement of one tall image across pages. The whole image
// is drawn on every page; Offsets holds its top edge y (mm) per page.
type Layout struct {
	ImageWidth  float64
	ImageHeight float64
	Offsets     []float64
}

func (l Layout) Pages() int { return len(l.Offsets) }

// Plan scales an image of widthPx x heightPx to the content width and
// computes the per-page vertical offsets. Page 1 puts the image at the top
// margin; each further page shifts it up by one content height.
func (g Geometry) Plan(widthPx, heightPx int) (Layout, error) {
	if widthPx <= 0 || heightPx <= 0 {
		return Layout{}, fmt.Errorf("invalid image size %dx%d", widthPx, heightPx)
	}
	cw, ch := g.ContentWidth(), g.ContentHeight()
	if cw <= 0 || ch <= 0 {
		return Layout{}, fmt.Errorf("margins leave no content area")
	}

	l := Layout{
		ImageWidth:  cw,
		ImageHeight: float64(heightPx) * cw / float64(widthPx),
	}

	l.Offsets = append(l.Offsets, g.Margin)
	left := l.ImageHeight - ch
	for left > heightTolerance {
		l.Offsets = append(l.Offsets, g.Margin-float64(len(l.Offsets))*ch)
		left -= ch
	}
	return l, nil
}

// SinglePageSize returns a page width x height (mm) matching the image
// aspect ratio at the given page width.
func SinglePageSize(pageWidth float64, widthPx, heightPx int) (float64, float64, error) {
	if widthPx <= 0 || heightPx <= 0 {
		return 0, 0, fmt.Errorf("invalid image size %dx%d", widthPx, heightPx)
	}
	return pageWidth, pageWidth * float64(heightPx) / float64(widthPx), nil
}
