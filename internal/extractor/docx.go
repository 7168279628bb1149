package extractor

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"docchat/internal/domain"
)

const documentPart = "word/document.xml"

// extractDOCX returns a single unit: body paragraphs, then table rows.
func extractDOCX(path string) ([]domain.Unit, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != documentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		paragraphs, rows, err := parseDocumentXML(rc)
		if err != nil {
			return nil, err
		}
		return []domain.Unit{{Kind: domain.KindText, Text: joinDocx(paragraphs, rows)}}, nil
	}
	return nil, errors.New("missing " + documentPart)
}

func joinDocx(paragraphs []string, rows [][]string) string {
	text := strings.Join(paragraphs, "\n")
	if len(rows) == 0 {
		return text
	}
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, " ")
	}
	return text + "\n" + strings.Join(lines, "\n")
}

// parseDocumentXML walks WordprocessingML and collects top-level paragraphs
// and the rows of top-level tables. Text inside a table cell never appears in
// the paragraph list.
func parseDocumentXML(r io.Reader) (paragraphs []string, rows [][]string, err error) {
	dec := xml.NewDecoder(r)
	var (
		para       strings.Builder
		inText     bool
		runDepth   int
		tableDepth int
		cell       []string
		row        []string
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell = nil
				}
			case "p":
				para.Reset()
			case "r":
				runDepth++
			case "t":
				inText = true
			case "tab":
				if runDepth > 0 {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if runDepth > 0 {
					para.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				runDepth--
			case "p":
				if tableDepth == 0 {
					paragraphs = append(paragraphs, para.String())
				} else {
					cell = append(cell, para.String())
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.Join(cell, "\n"))
				}
			case "tr":
				if tableDepth == 1 {
					rows = append(rows, row)
				}
			case "tbl":
				tableDepth--
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return paragraphs, rows, nil
}
