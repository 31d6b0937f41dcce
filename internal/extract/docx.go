package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"docminer/internal/models"
)

func processDocx(path string) ([]models.ExtractedChunk, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx %s: %w", path, err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("docx %s: word/document.xml not found", path)
	}
	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	paras, err := bodyParagraphs(rc)
	if err != nil {
		return nil, fmt.Errorf("parse docx %s: %w", path, err)
	}
	kept := make([]string, 0, len(paras))
	for _, p := range paras {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	return []models.ExtractedChunk{newChunk(strings.Join(kept, "\n"), path, models.FormatDocx)}, nil
}

// bodyParagraphs returns the text of each top-level body paragraph. Table cells
// and text boxes are nested deeper and are not included.
func bodyParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		stack   []string
		paras   []string
		current *strings.Builder
		inText  bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case name == "p" && parentIs(stack, "body"):
				current = &strings.Builder{}
			case current != nil && inBodyRun(stack):
				switch name {
				case "t":
					inText = true
				case "tab":
					current.WriteString("\t")
				case "br", "cr":
					current.WriteString("\n")
				}
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			switch {
			case t.Name.Local == "t":
				inText = false
			case t.Name.Local == "p" && current != nil && parentIs(stack, "body"):
				paras = append(paras, current.String())
				current = nil
			}
		case xml.CharData:
			if inText && current != nil {
				current.Write(t)
			}
		}
	}
	return paras, nil
}

func parentIs(stack []string, name string) bool {
	return len(stack) > 0 && stack[len(stack)-1] == name
}

// inBodyRun reports whether the innermost element is a run directly under a body
// paragraph, optionally through a hyperlink.
func inBodyRun(stack []string) bool {
	n := len(stack)
	if n < 3 || stack[n-1] != "r" {
		return false
	}
	if stack[n-2] == "p" && stack[n-3] == "body" {
		return true
	}
	return n >= 4 && stack[n-2] == "hyperlink" && stack[n-3] == "p" && stack[n-4] == "body"
}
