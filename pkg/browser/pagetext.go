package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PageSummary is the text outline of a page handed to the model when it
// asks to read rather than look. Links and form controls keep enough
// detail to be actionable without a screenshot.
type PageSummary struct {
	URL         string
	Title       string
	Description string
	Text        string
	Truncated   bool
}

// String renders the summary as the tool-result text.
func (p *PageSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nTitle: %s\n", p.URL, p.Title)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	b.WriteString("\n")
	b.WriteString(p.Text)
	if p.Truncated {
		b.WriteString("\n[content truncated]")
	}
	return b.String()
}

// SummarizePage parses raw HTML and extracts a readable text outline:
// headings and body text in document order, links as "text (href)", and
// form controls as bracketed descriptors. Script, style, and other
// non-content subtrees are dropped entirely.
func SummarizePage(rawHTML string, maxLength int) (*PageSummary, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("browser: parse page html: %w", err)
	}

	summary := &PageSummary{}
	ex := &extractor{maxLength: maxLength}
	ex.walk(doc, summary)

	summary.Text = strings.TrimSpace(ex.out.String())
	summary.Truncated = ex.truncated
	return summary, nil
}

type extractor struct {
	out       strings.Builder
	length    int
	maxLength int
	truncated bool
}

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"svg":      true,
	"template": true,
}

var headingTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func (e *extractor) walk(n *html.Node, summary *PageSummary) {
	if e.truncated {
		return
	}

	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		e.write(collapseSpace(n.Data))
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedTags[tag] {
			return
		}
		switch tag {
		case "title":
			if summary.Title == "" {
				summary.Title = textContent(n)
			}
			return
		case "meta":
			if attr(n, "name") == "description" && summary.Description == "" {
				summary.Description = strings.TrimSpace(attr(n, "content"))
			}
			return
		case "a":
			e.writeLink(n)
			return
		case "input", "textarea", "select":
			e.writeControl(tag, n)
			return
		case "button":
			e.write(fmt.Sprintf("[button: %s]", textContent(n)))
			return
		case "br":
			e.newline()
			return
		}
		if headingTags[tag] {
			e.newline()
			e.write(fmt.Sprintf("# %s", textContent(n)))
			e.newline()
			return
		}
		if isBlockTag(tag) {
			e.newline()
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c, summary)
	}
}

func (e *extractor) writeLink(n *html.Node) {
	text := textContent(n)
	href := attr(n, "href")
	switch {
	case text == "" && href == "":
		return
	case href == "" || strings.HasPrefix(href, "#"):
		e.write(text)
	case text == "":
		e.write(fmt.Sprintf("(%s)", href))
	default:
		e.write(fmt.Sprintf("%s (%s)", text, href))
	}
}

func (e *extractor) writeControl(tag string, n *html.Node) {
	desc := tag
	if typ := attr(n, "type"); typ != "" {
		if typ == "hidden" {
			return
		}
		desc += " type=" + typ
	}
	if name := attr(n, "name"); name != "" {
		desc += " name=" + name
	}
	if placeholder := attr(n, "placeholder"); placeholder != "" {
		desc += fmt.Sprintf(" placeholder=%q", placeholder)
	}
	e.write("[" + desc + "]")
}

func (e *extractor) write(text string) {
	if text == "" || e.truncated {
		return
	}
	if e.length+len(text) > e.maxLength {
		remaining := e.maxLength - e.length
		if remaining > 0 {
			e.out.WriteString(text[:remaining])
			e.length = e.maxLength
		}
		e.truncated = true
		return
	}
	if e.length > 0 && !strings.HasSuffix(e.out.String(), "\n") {
		e.out.WriteString(" ")
	}
	e.out.WriteString(text)
	e.length += len(text)
}

func (e *extractor) newline() {
	if e.length == 0 || e.truncated {
		return
	}
	if !strings.HasSuffix(e.out.String(), "\n") {
		e.out.WriteString("\n")
	}
}

func isBlockTag(tag string) bool {
	switch tag {
	case "div", "p", "section", "article", "header", "footer", "nav",
		"main", "aside", "ul", "ol", "li", "table", "tr", "form",
		"fieldset", "blockquote", "pre":
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			if text := collapseSpace(node.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
