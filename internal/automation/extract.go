package automation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/nexconsult/sri-invoices/internal/utils"
)

var (
	accessKeyPattern = regexp.MustCompile(`(?:^|\D)(\d{49})(?:\D|$)`)
	seriesPattern    = regexp.MustCompile(`\d{3}-\d{3}-\d{9}`)
)

// column positions of the received-vouchers table
type columns struct {
	issuer int
	number int
	date   int
	amount int
}

// Positions used when the header cannot be read.
var defaultColumns = columns{issuer: 2, number: 1, date: 0, amount: 3}

// ParseResults reads the results table HTML into records. Rows without a
// valid access key are skipped; the returned count says how many.
func ParseResults(html string) ([]models.InvoiceRecord, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, fmt.Errorf("parse results table: %w", err)
	}

	cols := detectColumns(doc)
	seen := make(map[string]bool)
	var records []models.InvoiceRecord
	skipped := 0

	doc.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		if row.HasClass("ui-datatable-empty-message") {
			return
		}

		key, err := utils.ParseAccessKey(findAccessKey(row))
		if err != nil {
			skipped++
			return
		}
		if seen[key.Raw] {
			return
		}
		seen[key.Raw] = true

		cells := row.Find("td")
		cell := func(idx int) string {
			if idx < 0 || idx >= cells.Length() {
				return ""
			}
			return strings.TrimSpace(cells.Eq(idx).Text())
		}

		rec := models.InvoiceRecord{
			AccessKey:   key.Raw,
			IssuerRUC:   key.IssuerRUC,
			Series:      key.SeriesNumber(),
			IssueDate:   key.IssueDate,
			RowIndex:    i,
			XMLSelector: downloadSelector(row, i, "xml"),
			PDFSelector: downloadSelector(row, i, "pdf"),
		}

		if name := issuerName(cell(cols.issuer), key.IssuerRUC); name != "" {
			rec.IssuerName = name
		}
		if series := seriesPattern.FindString(cell(cols.number)); series != "" {
			rec.Series = series
		}
		if d, err := time.Parse("02/01/2006", firstToken(cell(cols.date))); err == nil {
			rec.IssueDate = d
		}
		if amount, ok := ParseAmount(cell(cols.amount)); ok {
			rec.Total = amount
		}

		records = append(records, rec)
	})

	return records, skipped, nil
}

// findAccessKey looks for a standalone 49-digit run in each cell, so digits
// of adjacent cells are never joined.
func findAccessKey(row *goquery.Selection) string {
	var key string
	row.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if m := accessKeyPattern.FindStringSubmatch(td.Text()); m != nil {
			key = m[1]
			return false
		}
		return true
	})
	return key
}

func detectColumns(doc *goquery.Document) columns {
	cols := columns{issuer: -1, number: -1, date: -1, amount: -1}
	headers := doc.Find("thead th")
	if headers.Length() == 0 {
		return defaultColumns
	}

	headers.Each(func(i int, th *goquery.Selection) {
		h := strings.ToLower(strings.TrimSpace(th.Text()))
		switch {
		case cols.issuer < 0 && (strings.Contains(h, "ruc") || strings.Contains(h, "emisor") || strings.Contains(h, "razón social")):
			cols.issuer = i
		case cols.date < 0 && strings.Contains(h, "fecha"):
			cols.date = i
		case cols.amount < 0 && (strings.Contains(h, "total") || strings.Contains(h, "importe") || strings.Contains(h, "valor")):
			cols.amount = i
		case cols.number < 0 && (strings.Contains(h, "número") || strings.Contains(h, "numero") || strings.Contains(h, "serie")):
			cols.number = i
		}
	})

	if cols.issuer < 0 && cols.date < 0 && cols.amount < 0 {
		return defaultColumns
	}
	return cols
}

// downloadSelector returns a selector for the row's control that triggers
// the download of kind ("xml" or "pdf"), or "" when there is none.
func downloadSelector(row *goquery.Selection, index int, kind string) string {
	suffix := "lnkXml"
	if kind == "pdf" {
		suffix = "lnkPdf"
	}
	if id, ok := row.Find(fmt.Sprintf(`a[id$="%s"]`, suffix)).First().Attr("id"); ok && id != "" {
		return fmt.Sprintf(`[id="%s"]`, id)
	}

	var selector string
	row.Find("td").EachWithBreak(func(col int, td *goquery.Selection) bool {
		td.Find(`a[onclick*="descargarArchivo"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			id, _ := a.Attr("id")
			onclick, _ := a.Attr("onclick")
			title, _ := a.Attr("title")
			hint := strings.ToLower(id + " " + onclick + " " + title + " " + a.Text())
			if !strings.Contains(hint, kind) {
				return true
			}
			if id != "" {
				selector = fmt.Sprintf(`[id="%s"]`, id)
			} else {
				selector = fmt.Sprintf(`%s:nth-child(%d) td:nth-child(%d) a:nth-of-type(%d)`, selResultRows, index+1, col+1, a.PrevAllFiltered("a").Length()+1)
			}
			return false
		})
		return selector == ""
	})
	return selector
}

// issuerName strips the RUC and separators from a "RUC - NAME" style cell.
func issuerName(cell, ruc string) string {
	name := strings.TrimSpace(strings.ReplaceAll(cell, ruc, ""))
	name = strings.Trim(name, "-–/ \n\t")
	return strings.Join(strings.Fields(name), " ")
}

func firstToken(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// ParseAmount reads amounts written either as 1,234.56 or 1.234,56.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(strings.NewReplacer("$", "", "USD", "", " ", "", "\u00a0", "").Replace(s))
	if s == "" {
		return 0, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
