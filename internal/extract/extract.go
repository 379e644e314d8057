package extract

import (
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrNoRows is returned when the whole document yields no parseable rows.
// The extraction run is fatal in that case and no dataset is committed.
var ErrNoRows = errors.New("extraction produced no parseable rows")

// RawRow is one table row as extracted from the source document: cell
// strings aligned to the expected column layout (blank cells kept as ""
// so nutrient columns never shift), with provenance for diagnostics.
type RawRow struct {
	Page  int
	Table int
	Cells []string
}

// Diagnostics summarizes an extraction pass.
type Diagnostics struct {
	Pages            int
	PageGaps         []int // pages that yielded no rows
	TablesMatched    int
	TablesMismatched int // header regions whose column count did not match the schema
}

// Options configures table recovery.
type Options struct {
	// Columns is the expected column count; header regions with any other
	// count are reported and skipped rather than silently misaligned.
	Columns int
	// HeaderTokens identify a header line: all tokens must appear in the
	// lowercased joined text. The same signature skips repeated headers on
	// continuation pages.
	HeaderTokens []string
	// SpaceGap and CellGap (in points) split positioned text fragments
	// into words and cells. A gap below SpaceGap concatenates, between the
	// two joins with a space, at or above CellGap starts a new cell.
	SpaceGap float64
	CellGap  float64
}

// Extractor recovers table rows from positioned page text.
type Extractor struct {
	opts   Options
	logger *zap.Logger
}

// fragment is a positioned piece of text on a page line.
type fragment struct {
	x, w float64
	text string
}

// line is the fragments of one visual row, left to right.
type line []fragment

// cell is a merged run of fragments with its horizontal extent.
type cell struct {
	x, w float64
	text string
}

// column describes one recovered table column's horizontal span.
type column struct {
	start, end float64
}

// New creates an Extractor.
func New(opts Options, logger *zap.Logger) *Extractor {
	if opts.SpaceGap == 0 {
		opts.SpaceGap = 2.5
	}
	if opts.CellGap == 0 {
		opts.CellGap = 10
	}
	return &Extractor{opts: opts, logger: logger.Named("extract")}
}

// assemble turns per-page lines into raw rows, in document order. Column
// boundaries come from each header line; a page without its own header
// reuses the boundaries carried over from the previous table region.
func (e *Extractor) assemble(pages [][]line) ([]RawRow, Diagnostics, error) {
	var (
		rows     []RawRow
		diag     = Diagnostics{Pages: len(pages)}
		cols     []column
		skipping bool // inside a region whose header mismatched the schema
		table    int
	)

	for pageIdx, pageLines := range pages {
		pageNo := pageIdx + 1
		pageRows := 0

		for _, ln := range pageLines {
			cells := e.mergeCells(ln)
			if len(cells) == 0 {
				continue
			}

			if e.isHeader(cells) {
				if len(cells) != e.opts.Columns {
					diag.TablesMismatched++
					e.logger.Warn("column schema mismatch, skipping table region",
						zap.Int("page", pageNo),
						zap.Int("expected_columns", e.opts.Columns),
						zap.Int("got_columns", len(cells)),
					)
					cols = nil
					skipping = true
					continue
				}
				cols = boundaries(cells)
				skipping = false
				table++
				diag.TablesMatched++
				continue
			}

			if skipping || cols == nil {
				continue
			}

			rows = append(rows, RawRow{
				Page:  pageNo,
				Table: table,
				Cells: assign(cells, cols),
			})
			pageRows++
		}

		if pageRows == 0 {
			diag.PageGaps = append(diag.PageGaps, pageNo)
			e.logger.Warn("page yielded no rows", zap.Int("page", pageNo))
		}
	}

	if len(rows) == 0 {
		return nil, diag, ErrNoRows
	}
	return rows, diag, nil
}

// mergeCells merges a line's fragments into cells using the gap rules.
func (e *Extractor) mergeCells(ln line) []cell {
	if len(ln) == 0 {
		return nil
	}
	sorted := make(line, len(ln))
	copy(sorted, ln)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].x < sorted[j].x })

	var cells []cell
	cur := cell{x: sorted[0].x, w: sorted[0].w, text: sorted[0].text}
	for _, f := range sorted[1:] {
		gap := f.x - (cur.x + cur.w)
		switch {
		case gap >= e.opts.CellGap:
			cells = append(cells, cur)
			cur = cell{x: f.x, w: f.w, text: f.text}
		case gap >= e.opts.SpaceGap:
			cur.text += " " + f.text
			cur.w = f.x + f.w - cur.x
		default:
			cur.text += f.text
			cur.w = f.x + f.w - cur.x
		}
	}
	cells = append(cells, cur)

	out := cells[:0]
	for _, c := range cells {
		c.text = strings.TrimSpace(c.text)
		if c.text != "" {
			out = append(out, c)
		}
	}
	return out
}

// isHeader reports whether the cells carry the header-token signature.
func (e *Extractor) isHeader(cells []cell) bool {
	var b strings.Builder
	for _, c := range cells {
		b.WriteString(strings.ToLower(c.text))
		b.WriteByte(' ')
	}
	joined := b.String()
	for _, tok := range e.opts.HeaderTokens {
		if !strings.Contains(joined, tok) {
			return false
		}
	}
	return len(e.opts.HeaderTokens) > 0
}

// boundaries derives column spans from a header line's cells. Each column
// starts at its header cell and runs to the next header cell.
func boundaries(cells []cell) []column {
	cols := make([]column, len(cells))
	for i, c := range cells {
		cols[i].start = c.x
		if i+1 < len(cells) {
			cols[i].end = cells[i+1].x
		} else {
			cols[i].end = 1e18
		}
	}
	// The first column absorbs anything left of the header text.
	cols[0].start = 0
	return cols
}

// assign places cells into columns by horizontal center. Columns with no
// cell stay "" so downstream alignment is preserved; cells sharing a
// column are joined in order.
func assign(cells []cell, cols []column) []string {
	out := make([]string, len(cols))
	for _, c := range cells {
		center := c.x + c.w/2
		idx := len(cols) - 1
		for j, col := range cols {
			if center >= col.start && center < col.end {
				idx = j
				break
			}
		}
		if out[idx] == "" {
			out[idx] = c.text
		} else {
			out[idx] += " " + c.text
		}
	}
	return out
}
