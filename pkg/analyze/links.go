package analyze

import (
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// relativeLinks returns the destinations of markdown links and images in body
// that point inside the skill. Links in code spans and fenced blocks are not
// links in the AST and so are never returned.
func relativeLinks(body []byte) []string {
	doc := goldmark.New().Parser().Parse(text.NewReader(body))

	var links []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest []byte
		switch node := n.(type) {
		case *ast.Link:
			dest = node.Destination
		case *ast.Image:
			dest = node.Destination
		default:
			return ast.WalkContinue, nil
		}
		if href := string(dest); isRelative(href) {
			links = append(links, href)
		}
		return ast.WalkContinue, nil
	})
	return links
}

func isRelative(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "/") {
		return false
	}
	if u, err := url.Parse(href); err == nil && u.Scheme != "" {
		return false
	}
	return true
}

// linkPath strips any fragment or query and cleans the path
func linkPath(href string) string {
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	return path.Clean(href)
}
