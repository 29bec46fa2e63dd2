package loader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

var (
	frameFence = []byte("---")
	bom        = []byte("\ufeff")
)

// parseMarkdown strips an optional YAML frontmatter block. Frontmatter keys
// become metadata extras; its title wins over the first heading.
func parseMarkdown(data []byte) (*parsed, error) {
	body, front, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	out := &parsed{Content: strings.TrimSpace(string(body)), ContentType: "text/markdown"}
	if len(front) > 0 {
		out.Extra = make(map[string]interface{}, len(front))
		for k, v := range front {
			if k == "title" {
				if s, ok := v.(string); ok {
					out.Title = strings.TrimSpace(s)
					continue
				}
			}
			out.Extra[k] = v
		}
	}
	if out.Title == "" {
		out.Title = firstHeading(body)
	}
	return out, nil
}

func splitFrontmatter(data []byte) ([]byte, map[string]interface{}, error) {
	data = bytes.TrimPrefix(data, bom)
	if !bytes.HasPrefix(data, frameFence) {
		return data, nil, nil
	}
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	if string(bytes.TrimSpace(firstLine)) != "---" {
		return data, nil, nil
	}
	rest := data[len(firstLine):]
	rest = bytes.TrimPrefix(rest, []byte("\n"))
	var end int
	closing := -1
	for off := 0; off <= len(rest); {
		lineEnd := bytes.IndexByte(rest[off:], '\n')
		var line []byte
		if lineEnd < 0 {
			line = rest[off:]
			end = len(rest)
		} else {
			line = rest[off : off+lineEnd]
			end = off + lineEnd + 1
		}
		if string(bytes.TrimSpace(line)) == "---" {
			closing = off
			break
		}
		if lineEnd < 0 {
			break
		}
		off = end
	}
	if closing < 0 {
		return data, nil, nil
	}
	front := map[string]interface{}{}
	if err := yaml.Unmarshal(rest[:closing], &front); err != nil {
		return nil, nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	return rest[end:], front, nil
}

func firstHeading(source []byte) string {
	reader := text.NewReader(source)
	doc := goldmark.New().Parser().Parse(reader)
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok {
			return strings.TrimSpace(string(h.Text(source)))
		}
	}
	return ""
}
