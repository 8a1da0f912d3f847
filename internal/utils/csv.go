package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"btcFootprint/internal/domain"
)

var barHeader = []string{
	"open_time", "time", "open", "high", "low", "close", "volume", "delta", "bullish",
	"level_price", "level_bid", "level_ask", "level_significant", "level_in_body",
}

// WriteBarsToCSV writes one row per price level of each bar. A bar without levels
// gets a single row with empty level columns.
func WriteBarsToCSV(bars []domain.Bar, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteBars(file, bars); err != nil {
		return err
	}
	return file.Close()
}

// WriteBars writes bars as CSV to w.
func WriteBars(w io.Writer, bars []domain.Bar) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(barHeader); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			time.UnixMilli(b.Timestamp).UTC().Format(time.RFC3339),
			b.TimeLabel,
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
			formatFloat(b.Delta),
			strconv.FormatBool(b.Bullish),
		}
		if len(b.Levels) == 0 {
			if err := writer.Write(append(row, "", "", "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, l := range b.Levels {
			levelRow := append(row[:len(row):len(row)],
				formatFloat(l.Price),
				formatFloat(l.BidVolume),
				formatFloat(l.AskVolume),
				strconv.FormatBool(l.Significant),
				strconv.FormatBool(l.InBody),
			)
			if err := writer.Write(levelRow); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
