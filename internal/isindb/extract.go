package isindb

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/banking/refdata-service/pkg/identifier"
)

const (
	strongMarker    = "<strong>"
	clipboardMarker = `data-clipboard-text="`
	clipboardAttr   = "data-clipboard-text"
)

// scanText looks for an ISIN right after the first <strong> tag or the first
// data-clipboard-text attribute. Only a valid ISIN is returned.
func scanText(text string) string {
	for _, marker := range []string{strongMarker, clipboardMarker} {
		i := strings.Index(text, marker)
		if i < 0 {
			continue
		}
		start := i + len(marker)
		if len(text) < start+identifier.IsinLength {
			continue
		}
		if candidate := text[start : start+identifier.IsinLength]; identifier.IsValidIsin(candidate) {
			return candidate
		}
	}
	return ""
}

// parseDocument walks the HTML tree and returns the first valid ISIN found in
// a <strong> element or a data-clipboard-text attribute
func parseDocument(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var strong, clipboard string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if strong == "" && n.Data == "strong" {
				if text := strings.TrimSpace(textContent(n)); identifier.IsValidIsin(text) {
					strong = text
				}
			}
			if clipboard == "" {
				for _, attr := range n.Attr {
					if attr.Key == clipboardAttr && identifier.IsValidIsin(strings.TrimSpace(attr.Val)) {
						clipboard = strings.TrimSpace(attr.Val)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if strong != "" {
		return strong, nil
	}
	return clipboard, nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return sb.String()
}
