package reports

import (
	"encoding/csv"
	"fmt"
	"io"
)

const dateFormat = "2006-01-02"

var csvHeader = []string{"Date", "Group", "Description", "Category", "Total Amount", "Your Share", "Paid By"}

// WriteCSV writes one row per line of r, after a header row.
func WriteCSV(w io.Writer, r *Report) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, l := range r.Lines {
		record := []string{
			l.Date.Format(dateFormat),
			l.Group,
			l.Description,
			l.Category,
			l.Total.StringFixed(2),
			l.Share.StringFixed(2),
			l.PaidBy,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("write expense %s: %w", l.ExpenseID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
