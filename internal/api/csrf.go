package api

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// ErrNoCSRFToken means the page carried neither a csrf-token meta tag nor a
// csrf_token form field.
var ErrNoCSRFToken = errors.New("api: no csrf token in page")

// CSRFTokenFromPage returns the content of <meta name="csrf-token">. Pages
// without the meta tag fall back to the first <input name="csrf_token">.
func CSRFTokenFromPage(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("api: parse page: %w", err)
	}

	var meta, input string
	var foundMeta, foundInput bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if foundMeta {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				if attr(n, "name") == "csrf-token" {
					meta, foundMeta = attr(n, "content"), true
					return
				}
			case "input":
				if !foundInput && attr(n, "name") == "csrf_token" {
					input, foundInput = attr(n, "value"), true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	switch {
	case foundMeta:
		return meta, nil
	case foundInput:
		return input, nil
	}
	return "", ErrNoCSRFToken
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
