// Package contractpdf renders influencer agreements to PDF.
package contractpdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Ampplex/InfluencerFlow-sub001/model"
	"github.com/go-pdf/fpdf"
)

// MaxImageBytes bounds a fetched signature image
const MaxImageBytes = 5 << 20

var (
	ErrMissingField     = errors.New("missing required field")
	ErrUnsupportedImage = errors.New("unsupported signature image format")
	ErrFetchFailed      = errors.New("signature image fetch failed")
)

// RenderError reports why a contract could not be rendered
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render contract: %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Signature is the optional image placed in the signature block. Data wins
// over URL; URL is fetched only when Data is empty.
type Signature struct {
	Data []byte
	URL  string
}

// Renderer turns contract data into a single-page PDF
type Renderer struct {
	httpClient *http.Client
}

func NewRenderer(fetchTimeout time.Duration) *Renderer {
	return &Renderer{
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

// NewRendererWithClient uses client for signature fetches
func NewRendererWithClient(client *http.Client) *Renderer {
	return &Renderer{httpClient: client}
}

const (
	pageMargin     = 20.0
	lineHeight     = 6.0
	signatureWidth = 60.0
	signatureMaxH  = 25.0
	// gap above the block, then line, gap and label below it
	signatureLead  = 16.0
	signatureLabel = 2.0 + 5.0
)

// Render produces the PDF bytes for data, embedding sig when provided
func (r *Renderer) Render(ctx context.Context, data model.ContractData, sig *Signature) ([]byte, error) {
	if missing := data.MissingParties(); len(missing) > 0 {
		return nil, &RenderError{Op: "validate", Err: fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))}
	}

	var image []byte
	if sig != nil {
		image = sig.Data
		if len(image) == 0 && sig.URL != "" {
			fetched, err := r.fetch(ctx, sig.URL)
			if err != nil {
				return nil, &RenderError{Op: "fetch signature", Err: err}
			}
			image = fetched
		}
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle("Influencer Marketing Agreement", true)
	pdf.SetAuthor("InfluencerFlow", true)
	pdf.SetSubject(fmt.Sprintf("%s x %s", data.BrandName, data.InfluencerName), true)

	var placed *signatureImage
	if len(image) > 0 {
		var err error
		if placed, err = registerSignature(pdf, image); err != nil {
			return nil, &RenderError{Op: "embed signature", Err: err}
		}
	}

	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageWidth, _ := pdf.GetPageSize()
	contentWidth := pageWidth - 2*pageMargin

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(contentWidth, 10, tr("Influencer Marketing Agreement"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	heading := func(title string) {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(contentWidth, 8, tr(title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
	}
	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(contentWidth, lineHeight, tr(label), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(contentWidth, lineHeight, tr(orPlaceholder(value)), "", "L", false)
		pdf.Ln(1)
	}

	heading("Parties")
	pdf.MultiCell(contentWidth, lineHeight, tr(fmt.Sprintf(
		"This agreement is entered into between %s (the \"Brand\") and %s (the \"Influencer\").",
		data.BrandName, data.InfluencerName)), "", "L", false)

	heading("Scope of Work")
	field("Deliverables", data.Deliverables)
	field("Timeline", data.Timeline)

	heading("Compensation")
	field("Rate", FormatAmount(data.Rate))
	field("Payment Terms", data.PaymentTerms)

	if strings.TrimSpace(data.SpecialRequirements) != "" {
		heading("Special Requirements")
		pdf.MultiCell(contentWidth, lineHeight, tr(data.SpecialRequirements), "", "L", false)
	}

	drawSignatureBlock(pdf, placed)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{Op: "write", Err: err}
	}
	return buf.Bytes(), nil
}

type signatureImage struct {
	opts fpdf.ImageOptions
	w, h float64
}

func registerSignature(pdf *fpdf.Fpdf, image []byte) (*signatureImage, error) {
	imageType, err := detectImageType(image)
	if err != nil {
		return nil, err
	}

	opts := fpdf.ImageOptions{ImageType: imageType}
	info := pdf.RegisterImageOptionsReader("signature", opts, bytes.NewReader(image))
	if pdf.Err() || info == nil {
		err := pdf.Error()
		pdf.ClearError()
		return nil, fmt.Errorf("decode %s image: %v", strings.ToLower(imageType), err)
	}

	w := signatureWidth
	h := signatureWidth
	if info.Width() > 0 {
		h = w * info.Height() / info.Width()
	}
	if h > signatureMaxH {
		w = w * signatureMaxH / h
		h = signatureMaxH
	}
	return &signatureImage{opts: opts, w: w, h: h}, nil
}

// drawSignatureBlock draws the optional image, the signature line and its
// label as one unit, starting a new page when they would not fit above the
// bottom margin. It returns the y of the line.
func drawSignatureBlock(pdf *fpdf.Fpdf, sig *signatureImage) float64 {
	pageWidth, pageHeight := pdf.GetPageSize()

	need := signatureLead + signatureLabel
	if sig != nil {
		need += sig.h + 1
	}
	if pdf.GetY()+need > pageHeight-pageMargin {
		pdf.AddPage()
	} else {
		pdf.Ln(signatureLead)
	}

	if sig != nil {
		y := pdf.GetY()
		pdf.ImageOptions("signature", pageMargin, y, sig.w, sig.h, false, sig.opts, 0, "")
		pdf.SetY(y + sig.h + 1)
	}

	lineY := pdf.GetY()
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.3)
	pdf.Line(pageMargin, lineY, pageMargin+signatureWidth+20, lineY)
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(pageWidth-2*pageMargin, 5, "Signature", "", 1, "L", false, 0, "")
	return lineY
}

func detectImageType(b []byte) (string, error) {
	switch {
	case bytes.HasPrefix(b, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "PNG", nil
	case bytes.HasPrefix(b, []byte{0xFF, 0xD8}):
		return "JPG", nil
	}
	return "", ErrUnsupportedImage
}

func (r *Renderer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(body) > MaxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrFetchFailed, MaxImageBytes)
	}
	return body, nil
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// FormatAmount renders a rate with two decimals and thousands separators
func FormatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}
