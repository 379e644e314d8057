package extract

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExtractFile reads the source PDF and recovers table rows. Pages parse in
// parallel (they are independent) but results merge in document order, so
// downstream first-occurrence deduplication stays deterministic.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]RawRow, Diagnostics, error) {
	pages, err := e.readPages(ctx, path)
	if err != nil {
		return nil, Diagnostics{}, err
	}
	rows, diag, err := e.assemble(pages)
	if err != nil {
		return nil, diag, fmt.Errorf("%s: %w", path, err)
	}
	e.logger.Info("extraction finished",
		zap.Int("pages", diag.Pages),
		zap.Int("rows", len(rows)),
		zap.Int("page_gaps", len(diag.PageGaps)),
		zap.Int("tables", diag.TablesMatched),
		zap.Int("tables_mismatched", diag.TablesMismatched),
	)
	return rows, diag, nil
}

// readPages loads positioned text for every page.
func (e *Extractor) readPages(ctx context.Context, path string) ([][]line, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([][]line, total)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := 1; i <= total; i++ {
		g.Go(func() error {
			p := r.Page(i)
			if p.V.IsNull() {
				return nil
			}
			if rows := e.readPageRows(i, p.GetTextByRow); rows != nil {
				pages[i-1] = convertRows(rows)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// readPageRows reads one page's positioned text. Malformed content
// streams make the pdf library panic, so the read runs under recover:
// a broken page is a gap, not a crash.
func (e *Extractor) readPageRows(pageNo int, read func() (pdf.Rows, error)) (rows pdf.Rows) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("panic while reading page text",
				zap.Int("page", pageNo), zap.Any("panic", r))
			rows = nil
		}
	}()
	rows, err := read()
	if err != nil {
		e.logger.Warn("failed to read page text", zap.Int("page", pageNo), zap.Error(err))
		return nil
	}
	return rows
}

// convertRows maps pdf rows (top to bottom) onto extraction lines.
func convertRows(rows pdf.Rows) []line {
	// pdf.Rows come ordered by vertical position from the top of the page.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })

	lines := make([]line, 0, len(rows))
	for _, row := range rows {
		ln := make(line, 0, len(row.Content))
		for _, t := range row.Content {
			ln = append(ln, fragment{x: t.X, w: t.W, text: t.S})
		}
		if len(ln) > 0 {
			lines = append(lines, ln)
		}
	}
	return lines
}
