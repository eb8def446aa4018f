package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptLine is one label/value pair printed on a receipt.
type ReceiptLine struct {
	Label string
	Value string
}

// Receipt describes a single-page booking receipt.
type Receipt struct {
	Title     string
	Reference string
	IssuedAt  time.Time
	Sections  []ReceiptSection
	Footer    string
}

// ReceiptSection groups lines under a heading.
type ReceiptSection struct {
	Heading string
	Lines   []ReceiptLine
}

// ReceiptRenderer renders receipts as A4 PDFs.
type ReceiptRenderer struct {
	font string
}

// NewReceiptRenderer constructs a renderer using the core Helvetica font.
func NewReceiptRenderer() *ReceiptRenderer {
	return &ReceiptRenderer{font: "Helvetica"}
}

// Render produces the PDF bytes for the receipt.
func (r *ReceiptRenderer) Render(receipt Receipt) ([]byte, error) {
	if receipt.Reference == "" {
		return nil, fmt.Errorf("receipt requires a reference")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetTitle(receipt.Title, true)
	pdf.AddPage()
	// Core fonts are cp1252; translate UTF-8 input so names with accents render.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(r.font, "B", 16)
	pdf.CellFormat(0, 10, tr(receipt.Title), "", 1, "L", false, 0, "")

	pdf.SetFont(r.font, "", 9)
	pdf.CellFormat(0, 6, tr("Reference: "+receipt.Reference), "", 1, "L", false, 0, "")
	if !receipt.IssuedAt.IsZero() {
		pdf.CellFormat(0, 6, "Issued: "+receipt.IssuedAt.UTC().Format(time.RFC1123), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	for _, section := range receipt.Sections {
		if section.Heading != "" {
			pdf.SetFont(r.font, "B", 11)
			pdf.SetFillColor(235, 235, 235)
			pdf.CellFormat(0, 8, tr(section.Heading), "", 1, "L", true, 0, "")
		}
		pdf.SetFont(r.font, "", 10)
		for _, line := range section.Lines {
			pdf.CellFormat(60, 7, tr(line.Label), "B", 0, "L", false, 0, "")
			pdf.CellFormat(0, 7, tr(line.Value), "B", 1, "R", false, 0, "")
		}
		pdf.Ln(3)
	}

	if receipt.Footer != "" {
		pdf.Ln(4)
		pdf.SetFont(r.font, "I", 8)
		pdf.MultiCell(0, 5, tr(receipt.Footer), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
