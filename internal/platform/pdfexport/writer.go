package pdfexport

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/go-pdf/fpdf"
)

const snapshotImage = "snapshot"

var pngOptions = fpdf.ImageOptions{ImageType: "PNG"}

// WriteMultiPage writes img to w as an A4 portrait PDF, paginated per
// g.Plan. The same embedded image is placed on every page at a shifted
// offset; the page box clips what falls outside.
func WriteMultiPage(w io.Writer, img image.Image, g Geometry) (Layout, error) {
	b := img.Bounds()
	layout, err := g.Plan(b.Dx(), b.Dy())
	if err != nil {
		return Layout{}, err
	}

	encoded, err := encodePNG(img)
	if err != nil {
		return Layout{}, err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: g.PageWidth, Ht: g.PageHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.RegisterImageOptionsReader(snapshotImage, pngOptions, bytes.NewReader(encoded))

	for _, y := range layout.Offsets {
		pdf.AddPage()
		pdf.ImageOptions(snapshotImage, g.Margin, y, layout.ImageWidth, layout.ImageHeight, false, pngOptions, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return Layout{}, fmt.Errorf("write pdf: %w", err)
	}
	return layout, nil
}

// WriteSinglePage writes img to w as one page whose height follows the
// image aspect ratio at pageWidth mm.
func WriteSinglePage(w io.Writer, img image.Image, pageWidth float64) error {
	b := img.Bounds()
	width, height, err := SinglePageSize(pageWidth, b.Dx(), b.Dy())
	if err != nil {
		return err
	}

	encoded, err := encodePNG(img)
	if err != nil {
		return err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.RegisterImageOptionsReader(snapshotImage, pngOptions, bytes.NewReader(encoded))
	pdf.AddPage()
	pdf.ImageOptions(snapshotImage, 0, 0, width, height, false, pngOptions, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
