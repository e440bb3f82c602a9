// Package extract implements readable-content extraction from page HTML.
//
// The classifier only needs the part of a page a human would call "the
// content", so extraction prefers semantic landmarks (<main>, <article>)
// and falls back to text-density analysis, then to the raw body text.
// The pipeline: raw HTML → parse → landmarks/density → clean → text.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed page with its head metadata pre-extracted.
type Document struct {
	Title           string
	MetaDescription string
	MetaKeywords    string

	root *html.Node
}

// Result is the output of readable-content extraction.
type Result struct {
	Text string // clean extracted text
	HTML string // extracted subtree HTML
}

// Parse parses raw HTML and extracts head metadata.
func Parse(rawHTML []byte) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse HTML: %w", err)
	}

	d := &Document{root: root}
	d.Title = findTitle(root)
	d.MetaDescription = findMeta(root, "description")
	d.MetaKeywords = findMeta(root, "keywords")
	return d, nil
}

// Readable extracts the main readable content: semantic landmarks first,
// density scoring second. Returns nil when nothing of at least minLen
// clean characters is found; callers then use FallbackText.
func (d *Document) Readable(minLen int) *Result {
	if minLen <= 0 {
		minLen = 50
	}

	// Semantic landmarks (<main>, then <article>).
	if nodes := findLandmarks(d.root); len(nodes) > 0 {
		var allText, allHTML []string
		for _, n := range nodes {
			if isBoilerplate(n) {
				continue
			}
			text := CleanText(collectText(n))
			if len(text) >= minLen {
				allText = append(allText, text)
				allHTML = append(allHTML, renderNode(n))
			}
		}
		if len(allText) > 0 {
			return &Result{
				Text: strings.Join(allText, "\n\n"),
				HTML: strings.Join(allHTML, "\n"),
			}
		}
	}

	// Density scoring over the body.
	body := findBody(d.root)
	if body == nil {
		body = d.root
	}
	if best := findDensestNode(body, minLen); best != nil {
		text := CleanText(collectText(best))
		if len(text) >= minLen {
			return &Result{Text: text, HTML: renderNode(best)}
		}
	}
	return nil
}

// FallbackText returns the first non-empty of <main>, <article>, <body>
// text, together with the element name it came from. Truncation is the
// caller's concern (stabilization and snapshot use different bounds).
func (d *Document) FallbackText() (text, source string) {
	for _, tag := range []atom.Atom{atom.Main, atom.Article, atom.Body} {
		nodes := findAllByTag(d.root, tag)
		if len(nodes) == 0 {
			continue
		}
		t := CleanText(collectText(nodes[0]))
		if t != "" {
			return t, nodes[0].Data
		}
	}
	return "", ""
}

// findTitle extracts the page <title> text.
func findTitle(root *html.Node) string {
	var title string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			f(c)
		}
	}
	f(root)
	return title
}

// findMeta extracts the content of <meta name="..." content="...">.
func findMeta(root *html.Node, name string) string {
	var content string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			var metaName, metaContent string
			for _, a := range n.Attr {
				switch a.Key {
				case "name":
					metaName = strings.ToLower(a.Val)
				case "content":
					metaContent = a.Val
				}
			}
			if metaName == name {
				content = strings.TrimSpace(metaContent)
				return
			}
		}
		for c := n.FirstChild; c != nil && content == ""; c = c.NextSibling {
			f(c)
		}
	}
	f(root)
	return content
}

// renderNode serialises an HTML node subtree back to a string.
func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// collectText extracts all visible text from a node subtree.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// findLandmarks returns <main> elements, or <article> elements when no
// <main> exists.
func findLandmarks(root *html.Node) []*html.Node {
	for _, tag := range []atom.Atom{atom.Main, atom.Article} {
		if nodes := findAllByTag(root, tag); len(nodes) > 0 {
			return nodes
		}
	}
	return nil
}

func findAllByTag(root *html.Node, tag atom.Atom) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

// findBody returns the <body> element from a parsed document.
func findBody(root *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return body
}
