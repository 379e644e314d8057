package extract

import (
	"errors"
	"testing"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

func TestReadPageRows(t *testing.T) {
	e := New(Options{Columns: 3, HeaderTokens: []string{"food"}}, zap.NewNop())

	t.Run("PanicBecomesGap", func(t *testing.T) {
		rows := e.readPageRows(4, func() (pdf.Rows, error) {
			panic("malformed content stream")
		})
		if rows != nil {
			t.Errorf("Expected nil rows for a panicking page, got %v", rows)
		}
	})

	t.Run("ErrorBecomesGap", func(t *testing.T) {
		rows := e.readPageRows(5, func() (pdf.Rows, error) {
			return nil, errors.New("bad xref")
		})
		if rows != nil {
			t.Errorf("Expected nil rows for an unreadable page, got %v", rows)
		}
	})

	t.Run("RowsPassThrough", func(t *testing.T) {
		want := pdf.Rows{&pdf.Row{Position: 700}}
		rows := e.readPageRows(6, func() (pdf.Rows, error) {
			return want, nil
		})
		if len(rows) != 1 || rows[0].Position != 700 {
			t.Errorf("Expected the page rows back, got %v", rows)
		}
	})
}
