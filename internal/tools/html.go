package tools

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// page is the readable content of an HTML document.
type page struct {
	Title string
	Text  string
	Links []string
}

// skipText holds elements whose text is never shown to a reader.
var skipText = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
}

// blockElems end a line of extracted text.
var blockElems = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Pre: true, atom.Blockquote: true,
}

// extractText tokenizes body and keeps visible text, one block per line.
func extractText(body []byte) (page, error) {
	var (
		p       page
		lines   []string
		cur     strings.Builder
		skip    int
		inTitle bool
	)
	flush := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return page{}, err
			}
			flush()
			p.Text = strings.Join(lines, "\n")
			return p, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch {
			case tok.DataAtom == atom.Title:
				inTitle = true
			case skipText[tok.DataAtom]:
				if tok.Type == html.StartTagToken {
					skip++
				}
			case tok.DataAtom == atom.A:
				for _, a := range tok.Attr {
					if a.Key == "href" && strings.HasPrefix(a.Val, "http") {
						p.Links = append(p.Links, a.Val)
					}
				}
			}
			if blockElems[tok.DataAtom] {
				flush()
			}

		case html.EndTagToken:
			tok := z.Token()
			switch {
			case tok.DataAtom == atom.Title:
				inTitle = false
			case skipText[tok.DataAtom] && skip > 0:
				skip--
			}
			if blockElems[tok.DataAtom] {
				flush()
			}

		case html.TextToken:
			text := string(z.Text())
			if inTitle {
				p.Title = strings.TrimSpace(p.Title + " " + strings.Join(strings.Fields(text), " "))
				continue
			}
			if skip > 0 {
				continue
			}
			cur.WriteString(text)
			cur.WriteByte(' ')
		}
	}
}
