package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"docchat/internal/domain"
)

// extractPDF returns one text unit per page that has any text.
func extractPDF(ctx context.Context, path string) (units []domain.Unit, err error) {
	// The parser panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		units = append(units, domain.Unit{Kind: domain.KindText, Text: text, Page: i})
	}
	return units, nil
}
