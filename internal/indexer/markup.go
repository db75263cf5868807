package indexer

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Extracted is plain text pulled out of a marked-up body.
type Extracted struct {
	Title string // first top-level heading, empty if none
	Text  string
}

// ParseFormat maps a request value to a Format. Empty means plain text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatHTML, "htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// Markup converts markdown and HTML bodies to plain text.
type Markup struct {
	md goldmark.Markdown
}

// NewMarkup creates a converter with GFM tables enabled.
func NewMarkup() *Markup {
	return &Markup{
		md: goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

// Extract returns the plain text of body.
func (m *Markup) Extract(body string, format Format) (Extracted, error) {
	switch format {
	case FormatMarkdown:
		return m.markdown([]byte(body)), nil
	case FormatHTML:
		return htmlText(body)
	case FormatText, "":
		return Extracted{Text: body}, nil
	default:
		return Extracted{}, fmt.Errorf("unsupported format %q", format)
	}
}

func (m *Markup) markdown(content []byte) Extracted {
	doc := m.md.Parser().Parse(text.NewReader(content))

	var out Extracted
	var b strings.Builder
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			heading := nodeText(node, content)
			if out.Title == "" && node.Level <= 2 {
				out.Title = heading
			}
			newline()
			b.WriteString(heading)
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(node.Segment.Value(content))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString(" ")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			newline()
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Write(line.Value(content))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.List, *ast.ListItem, *ast.Blockquote:
			newline()
		case *extast.TableRow, *extast.TableHeader:
			newline()
			b.WriteString(tableRowText(node, content))
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	out.Text = b.String()
	return out
}

// nodeText concatenates the text beneath n.
func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// tableRowText formats a table row's cells with pipe separators.
func tableRowText(row ast.Node, content []byte) string {
	var cells []string
	for c := row.FirstChild(); c != nil; c = c.NextSibling() {
		if _, ok := c.(*extast.TableCell); ok {
			cells = append(cells, nodeText(c, content))
		}
	}
	return strings.Join(cells, " | ")
}

func htmlText(body string) (Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Extracted{}, fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	doc.Find("head").Remove()

	// Separate block elements so adjacent blocks do not run together.
	doc.Find("p, div, li, br, h1, h2, h3, h4, h5, h6, tr, td, th, section, article").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return Extracted{Title: title, Text: doc.Find("body").Text()}, nil
}
