package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"curator/internal/gallery"
	"curator/internal/textutil"
)

const titleColumns = 48

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// rankingTable renders ranked items with titles truncated by display width.
func rankingTable(items []*gallery.Item) string {
	if len(items) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(items))
	for i, item := range items {
		flagged := "-"
		if stats, ok := item.Stats(); ok {
			flagged = fmt.Sprintf("%d/%d", stats.Flagged, stats.Total)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			item.ID,
			textutil.Truncate(item.DisplayTitle(), titleColumns),
			fmt.Sprintf("%.1f%%", item.Score()),
			flagged,
		})
	}
	return renderTable(
		[]string{"#", "ID", "Title", "Score", "Flagged"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
	)
}
