package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"djassa/internal/core"
)

// parseEntryRows converts a values matrix (as returned by Sheets API) into ledger
// entries. Rows without a ref or a parseable date, including the header, are skipped.
func parseEntryRows(values [][]interface{}) []core.LedgerEntry {
	var out []core.LedgerEntry
	for _, raw := range values {
		row := toStrings(raw)
		if len(row) < 7 {
			continue
		}
		date, err := time.ParseInLocation("2006-01-02", row[0], time.UTC)
		if err != nil {
			continue
		}
		ref := row[6]
		if ref == "" {
			continue
		}
		qty, _ := strconv.Atoi(row[4])
		amount, ok := parseAmount(row[5])
		if !ok {
			continue
		}
		out = append(out, core.LedgerEntry{
			Date:     date,
			ShopName: row[1],
			Kind:     row[2],
			Label:    row[3],
			Quantity: qty,
			Amount:   amount,
			Ref:      ref,
		})
	}
	return out
}

// entryRow renders an entry in Header order.
func entryRow(e core.LedgerEntry) []interface{} {
	var qty interface{} = ""
	if e.Quantity > 0 {
		qty = e.Quantity
	}
	return []interface{}{e.Date.UTC().Format("2006-01-02"), e.ShopName, e.Kind, e.Label, qty, e.Amount, e.Ref}
}

// parseAmount accepts plain integers and sheet-formatted values such as "12 500" or "12,500".
func parseAmount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "FCFA")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', ',':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, false
		}
		return int64(f + 0.5), true
	}
	return v, true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
