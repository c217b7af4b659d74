package synthesis

import (
	"strings"

	"golang.org/x/net/html"
)

// looksLikeHTML reports whether a report should be reduced to visible text first
func looksLikeHTML(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	if len(head) > 512 {
		head = head[:512]
	}
	for _, marker := range []string{"<!doctype html", "<html", "<body", "<p>", "<p ", "<div", "<article"} {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

// VisibleText returns the readable text of a report. Plain text and markdown
// pass through unchanged.
func VisibleText(report string) (string, error) {
	if !looksLikeHTML(report) {
		return report, nil
	}
	doc, err := html.Parse(strings.NewReader(report))
	if err != nil {
		return "", err
	}
	return extractVisibleText(doc), nil
}

// extractVisibleText walks text nodes, skipping non-rendered elements. Block
// elements end with a newline so paragraphs stay separate sentences.
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "template", "head":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "br", "section", "article":
				buf.WriteString("\n")
			}
		}
	}

	walk(n)
	return buf.String()
}

// splitSentences splits on terminal punctuation followed by whitespace and on
// blank lines. Terminators inside square brackets never split, so a
// claim_ref list stays attached to its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	depth := 0

	flush := func() {
		s := strings.Join(strings.Fields(current.String()), " ")
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		}

		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' && depth == 0 {
			flush()
			continue
		}
		current.WriteRune(r)

		if depth == 0 && (r == '.' || r == '!' || r == '?') {
			if i+1 == len(runes) || isSpace(runes[i+1]) {
				// a trailing citation belongs to the sentence it follows
				if j := nextNonSpace(runes, i+1); j >= 0 && strings.HasPrefix(string(runes[j:]), "[claim_ref") {
					continue
				}
				flush()
			}
		}
		if depth == 0 && r == ']' {
			if j := nextNonSpace(runes, i+1); j < 0 || (isUpper(runes[j]) && precededByTerminator(runes, i)) {
				flush()
			}
		}
	}
	flush()

	return sentences
}

// precededByTerminator reports whether the bracket group closing at end
// follows a sentence terminator
func precededByTerminator(runes []rune, end int) bool {
	depth := 0
	for k := end; k >= 0; k-- {
		switch runes[k] {
		case ']':
			depth++
		case '[':
			depth--
			if depth == 0 {
				j := k - 1
				for j >= 0 && isSpace(runes[j]) {
					j--
				}
				return j >= 0 && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?')
			}
		}
	}
	return false
}

func nextNonSpace(runes []rune, from int) int {
	for j := from; j < len(runes); j++ {
		if !isSpace(runes[j]) {
			return j
		}
	}
	return -1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}
