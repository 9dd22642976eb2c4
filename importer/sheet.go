package importer

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shakinm/xlsReader/xls"
	"github.com/shakinm/xlsReader/xls/structure"
	"github.com/xuri/excelize/v2"

	"github.com/moreskylab/Sentio/recordstore"
)

// ErrNoTitleColumn is returned when no sheet has a title header.
var ErrNoTitleColumn = errors.New("no sheet has a title column")

var columnAliases = map[string]string{
	"title":      "title",
	"headline":   "title",
	"content":    "content",
	"body":       "content",
	"text":       "content",
	"created_at": "created_at",
	"created":    "created_at",
}

// sheetColumns maps header positions to article fields.
type sheetColumns struct {
	title, content, created int
}

func newSheetColumns(header []string) (sheetColumns, bool) {
	cols := sheetColumns{title: -1, content: -1, created: -1}
	for i, name := range header {
		switch columnAliases[strings.ToLower(strings.TrimSpace(name))] {
		case "title":
			if cols.title < 0 {
				cols.title = i
			}
		case "content":
			if cols.content < 0 {
				cols.content = i
			}
		case "created_at":
			if cols.created < 0 {
				cols.created = i
			}
		}
	}
	return cols, cols.title >= 0
}

// article builds an article from a data row; blank rows yield false.
func (c sheetColumns) article(sheet string, rowIdx int, row []string) (recordstore.Article, bool, error) {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	article := recordstore.Article{Title: cell(c.title), Content: cell(c.content)}
	if article.Title == "" && article.Content == "" {
		return article, false, nil
	}
	if raw := cell(c.created); raw != "" {
		created, err := parseCreated(raw)
		if err != nil {
			return article, false, fmt.Errorf("sheet %s row %d: %w", sheet, rowIdx, err)
		}
		article.CreatedAt = created
	}
	return article, true, nil
}

func parseCreated(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported created_at %q", value)
}

// sheetArticles converts every sheet with a title column.
func sheetArticles(sheets []string, rowsOf func(sheet string) [][]string) ([]recordstore.Article, error) {
	var out []recordstore.Article
	found := false
	for _, sheet := range sheets {
		rows := rowsOf(sheet)
		if len(rows) == 0 {
			continue
		}
		cols, ok := newSheetColumns(rows[0])
		if !ok {
			continue
		}
		found = true
		for i := 1; i < len(rows); i++ {
			article, ok, err := cols.article(sheet, i+1, rows[i]) // rows are 1-based
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, article)
			}
		}
	}
	if !found {
		return nil, ErrNoTitleColumn
	}
	return out, nil
}

func decodeExcel(_ string, data []byte) ([]recordstore.Article, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	return sheetArticles(f.GetSheetList(), func(sheet string) [][]string {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil
		}
		return rows
	})
}

func decodeXLS(_ string, data []byte) ([]recordstore.Article, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	var names []string
	sheets := make(map[string][][]string)
	for i := 0; i < wb.GetNumberSheets(); i++ {
		sheet, err := wb.GetSheet(i)
		if err != nil || sheet == nil {
			continue
		}
		var rows [][]string
		for _, row := range sheet.GetRows() {
			rows = append(rows, xlsRowValues(row.GetCols()))
		}
		names = append(names, sheet.GetName())
		sheets[sheet.GetName()] = rows
	}
	return sheetArticles(names, func(sheet string) [][]string { return sheets[sheet] })
}

func xlsRowValues(cols []structure.CellData) []string {
	out := make([]string, 0, len(cols))
	for _, col := range cols {
		val := col.GetString()
		if val == "" {
			if num := col.GetFloat64(); num != 0 {
				val = strconv.FormatFloat(num, 'f', -1, 64)
			} else if in := col.GetInt64(); in != 0 {
				val = strconv.FormatInt(in, 10)
			}
		}
		out = append(out, val)
	}
	return out
}
