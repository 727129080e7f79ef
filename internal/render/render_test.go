package render_test

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/evoronina/konspekt/internal/render"
)

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestNormalizeHTML(t *testing.T) {
	t.Run("strips markdown code fence", func(t *testing.T) {
		raw := "```html\n<html><body><h1>Графы</h1><p>конспект</p></body></html>\n```"
		html, err := render.NormalizeHTML(raw, "Графы")
		require.NoError(t, err)
		require.NotContains(t, html, "```")
		require.Contains(t, html, "<p>конспект</p>")
	})

	t.Run("prepends missing h1 with the lecture title", func(t *testing.T) {
		raw := "<html><body><p>конспект</p></body></html>"
		html, err := render.NormalizeHTML(raw, "Теория графов")
		require.NoError(t, err)

		doc := parse(t, html)
		h1 := doc.Find("body > h1").First()
		require.Equal(t, "Теория графов", h1.Text())
		require.Equal(t, 0, h1.PrevAll().Length())
	})

	t.Run("keeps an existing h1", func(t *testing.T) {
		raw := "<html><body><h1>Своё название</h1></body></html>"
		html, err := render.NormalizeHTML(raw, "Другое")
		require.NoError(t, err)

		doc := parse(t, html)
		require.Equal(t, 1, doc.Find("h1").Length())
		require.Equal(t, "Своё название", doc.Find("h1").Text())
	})

	t.Run("adds charset and title to head", func(t *testing.T) {
		raw := "<html><head></head><body><h1>Лекция</h1></body></html>"
		html, err := render.NormalizeHTML(raw, "Лекция")
		require.NoError(t, err)

		doc := parse(t, html)
		require.Equal(t, 1, doc.Find(`head meta[charset]`).Length())
		require.Equal(t, "Лекция", doc.Find("head title").Text())
	})

	t.Run("bare fragment is wrapped into a document", func(t *testing.T) {
		html, err := render.NormalizeHTML("<p>только абзац</p>", "Лекция")
		require.NoError(t, err)

		doc := parse(t, html)
		require.Equal(t, "Лекция", doc.Find("body h1").First().Text())
		require.Equal(t, "только абзац", doc.Find("body p").Text())
	})
}
