// Package render turns model-produced HTML into a printable PDF.
package render

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"

	ec "github.com/evoronina/konspekt/pkgs/errors"
)

// NormalizeHTML cleans up a model completion into a standalone HTML
// document. Chat models tend to wrap output in a markdown code fence and
// to omit the document title; both are fixed here.
func NormalizeHTML(raw, title string) (string, error) {
	raw = stripCodeFence(raw)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", ec.ErrRender.Clone().
			WithDetails("completion is not parsable as HTML").
			Warp(err)
	}

	head := doc.Find("head")
	if head.Find(`meta[charset]`).Length() == 0 {
		head.PrependHtml(`<meta charset="utf-8">`)
	}
	if strings.TrimSpace(head.Find("title").Text()) == "" {
		head.Find("title").Remove()
		head.AppendHtml("<title></title>")
		head.Find("title").SetText(title)
	}

	body := doc.Find("body")
	if body.Find("h1").Length() == 0 {
		body.PrependHtml("<h1></h1>")
		body.Find("h1").First().SetText(title)
	}

	html, err := doc.Html()
	if err != nil {
		return "", ec.ErrRender.Clone().Warp(err)
	}
	return html, nil
}

// stripCodeFence removes a surrounding ```html ... ``` fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// Drop the language tag on the opening fence line.
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Renderer converts HTML documents to PDF via the wkhtmltopdf binary.
type Renderer struct {
	dpi        uint
	marginInMM uint
}

func NewRenderer() *Renderer {
	return &Renderer{dpi: 300, marginInMM: 15}
}

func (r *Renderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, ec.ErrRender.Clone().
			WithDetails("wkhtmltopdf binary not available").
			Warp(err)
	}

	pdfg.Dpi.Set(r.dpi)
	pdfg.MarginTop.Set(r.marginInMM)
	pdfg.MarginBottom.Set(r.marginInMM)
	pdfg.MarginLeft.Set(r.marginInMM)
	pdfg.MarginRight.Set(r.marginInMM)
	pdfg.PageSize.Set(wkhtmltopdf.PageSizeA4)

	page := wkhtmltopdf.NewPageReader(strings.NewReader(html))
	page.Encoding.Set("utf-8")
	pdfg.AddPage(page)

	if err := pdfg.CreateContext(ctx); err != nil {
		return nil, ec.ErrRender.Clone().
			WithDetails("wkhtmltopdf failed").
			Warp(err)
	}
	return pdfg.Bytes(), nil
}
