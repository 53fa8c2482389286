package reports

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
)

// The core PDF fonts are Latin-1, so amounts use "Rs." rather than the rupee sign.
func money(d decimal.Decimal) string {
	return "Rs. " + d.StringFixed(2)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// BuildPDF renders r as an A4 report: header, summary, category breakdown and
// a table of expenses.
func BuildPDF(r *Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Hisaab-Kitaab Expense Report", false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 10, "Generated by Hisaab-Kitaab Expense Management System", "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Hisaab-Kitaab", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Expense Report", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, "Period: "+r.Period(), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated for: %s (%s)", r.UserName, r.UserEmail), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Generated on: "+r.GeneratedAt.Format("2006-01-02 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	total := TotalShare(r.Lines)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Total Expenses: %d", r.ExpenseCount))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Total Amount Spent: "+money(total))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Average per Expense: "+money(r.Average()))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Category Breakdown")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(70, 7, "Category")
	pdf.Cell(50, 7, "Amount")
	pdf.Cell(30, 7, "%")
	pdf.Ln(7)

	pdf.SetFont("Helvetica", "", 11)
	for _, c := range ByCategory(r.Lines) {
		pdf.Cell(70, 7, c.Label)
		pdf.Cell(50, 7, money(c.Amount))
		pdf.Cell(30, 7, c.Percent(total).StringFixed(1)+"%")
		pdf.Ln(7)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Expense Details")
	pdf.Ln(8)

	if len(r.Lines) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.Cell(0, 6, "No expenses found for this period.")
		pdf.Ln(6)
	} else {
		widths := []float64{22, 32, 36, 26, 24, 24, 26}

		pdf.SetFont("Helvetica", "B", 9)
		for i, h := range []string{"Date", "Group", "Description", "Category", "Total", "Share", "Paid By"} {
			pdf.CellFormat(widths[i], 7, h, "B", 0, "L", false, 0, "")
		}
		pdf.Ln(7)

		pdf.SetFont("Helvetica", "", 9)
		for _, l := range r.Lines {
			row := []string{
				l.Date.Format(dateFormat),
				truncate(l.Group, 18),
				truncate(l.Description, 20),
				truncate(l.Category, 14),
				money(l.Total),
				money(l.Share),
				truncate(l.PaidBy, 14),
			}
			for i, cell := range row {
				pdf.CellFormat(widths[i], 6, cell, "", 0, "L", false, 0, "")
			}
			pdf.Ln(6)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
