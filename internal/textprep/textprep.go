// Package textprep turns markdown into text that reads well when spoken.
package textprep

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Stripper extracts speakable text from markdown.
type Stripper struct {
	skipCodeBlocks bool
	describeImages bool
	md             goldmark.Markdown
}

// Option configures a Stripper.
type Option func(*Stripper)

// WithCodeBlocks keeps a short placeholder for code blocks instead of
// dropping them.
func WithCodeBlocks(include bool) Option {
	return func(s *Stripper) {
		s.skipCodeBlocks = !include
	}
}

// WithImageDescriptions speaks image titles or alt text.
func WithImageDescriptions(describe bool) Option {
	return func(s *Stripper) {
		s.describeImages = describe
	}
}

// New creates a Stripper. By default code blocks are skipped and images are
// described.
func New(opts ...Option) *Stripper {
	s := &Stripper{
		skipCodeBlocks: true,
		describeImages: true,
		md:             goldmark.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	spaceRun  = regexp.MustCompile(`[ \t]+`)
	periodRun = regexp.MustCompile(`\s*\.(\s*\.)+`)
)

// Strip returns the plain text of markdown. Headings, paragraphs and list
// items end in a sentence break so the synthesizer pauses between them.
func (s *Stripper) Strip(markdown string) string {
	reader := text.NewReader([]byte(markdown))
	doc := s.md.Parser().Parse(reader)

	var buf strings.Builder
	s.walk(doc, reader.Source(), &buf)
	return clean(buf.String())
}

func (s *Stripper) walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		if !s.skipCodeBlocks {
			buf.WriteString("Code block omitted. ")
		}
		return

	case *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem:
		s.walkChildren(n, source, buf)
		endSentence(buf)
		return

	case *ast.Image:
		if !s.describeImages {
			return
		}
		buf.WriteString("Image")
		if len(n.Title) > 0 {
			buf.WriteString(": ")
			buf.Write(n.Title)
		} else if alt := childText(n, source); alt != "" {
			buf.WriteString(": ")
			buf.WriteString(alt)
		}
		endSentence(buf)
		return

	case *ast.Blockquote:
		buf.WriteString("Quote: ")
		s.walkChildren(n, source, buf)
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return

	case *ast.AutoLink:
		// URLs are not worth reading aloud.
		buf.WriteString("link")
		return
	}

	// Links, emphasis, lists and the document itself only contribute children.
	s.walkChildren(node, source, buf)
}

func (s *Stripper) walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		s.walk(c, source, buf)
	}
}

func childText(node ast.Node, source []byte) string {
	var b strings.Builder
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(b.String())
}

// endSentence terminates the text written so far unless it already ends in
// sentence punctuation.
func endSentence(buf *strings.Builder) {
	content := strings.TrimRight(buf.String(), " ")
	if content == "" {
		return
	}
	switch content[len(content)-1] {
	case '.', '!', '?', ':', ';':
		buf.WriteByte(' ')
	default:
		buf.WriteString(". ")
	}
}

func clean(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = spaceRun.ReplaceAllString(s, " ")
	s = periodRun.ReplaceAllString(s, ".")
	s = strings.ReplaceAll(s, " .", ".")
	return strings.TrimSpace(s)
}
