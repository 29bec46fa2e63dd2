package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	pptxMIME = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

type coreXML struct {
	Title string `xml:"title"`
}

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return zr, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, 64<<20))
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func parseDocx(data []byte) (*parsed, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	f := findZipFile(zr, "word/document.xml")
	if f == nil {
		return nil, fmt.Errorf("word/document.xml not found")
	}
	raw, err := readZipFile(f)
	if err != nil {
		return nil, err
	}
	var doc documentXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document.xml: %w", err)
	}
	lines := make([]string, 0, len(doc.Body.Paragraphs))
	for _, para := range doc.Body.Paragraphs {
		var sb strings.Builder
		for _, r := range para.Runs {
			for _, t := range r.Text {
				sb.WriteString(t.Content)
			}
		}
		lines = append(lines, sb.String())
	}
	return &parsed{
		Content:     strings.TrimSpace(strings.Join(lines, "\n")),
		Title:       coreTitle(zr),
		ContentType: docxMIME,
	}, nil
}

// parsePptx reads slide text in slide order, one paragraph per line and a
// blank line between slides.
func parsePptx(data []byte) (*parsed, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: f})
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("no slides found")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })
	parts := make([]string, 0, len(slides))
	for _, s := range slides {
		raw, err := readZipFile(s.file)
		if err != nil {
			return nil, err
		}
		text, err := drawingText(raw)
		if err != nil {
			return nil, fmt.Errorf("decode slide %d: %w", s.num, err)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return &parsed{
		Content:     strings.Join(parts, "\n\n"),
		Title:       coreTitle(zr),
		ContentType: pptxMIME,
	}, nil
}

// drawingText collects <a:t> runs, breaking lines at </a:p>.
func drawingText(raw []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		lines []string
		cur   strings.Builder
		inT   bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			inT = el.Name.Local == "t"
		case xml.EndElement:
			if el.Name.Local == "t" {
				inT = false
			}
			if el.Name.Local == "p" {
				if s := strings.TrimSpace(cur.String()); s != "" {
					lines = append(lines, s)
				}
				cur.Reset()
			}
		case xml.CharData:
			if inT {
				cur.Write(el)
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}

func coreTitle(zr *zip.Reader) string {
	f := findZipFile(zr, "docProps/core.xml")
	if f == nil {
		return ""
	}
	raw, err := readZipFile(f)
	if err != nil {
		return ""
	}
	var core coreXML
	if err := xml.Unmarshal(raw, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}
