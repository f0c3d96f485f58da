package sheets

import (
	"context"

	"djassa/internal/core"
)

// Ports for outbound adapters.
type (
	// EntryWriter appends one ledger entry as a spreadsheet row.
	EntryWriter interface {
		Append(ctx context.Context, e core.LedgerEntry) (rowRef string, err error)
	}

	// EntryLister reads back the entries exported for a year.
	EntryLister interface {
		ListEntries(ctx context.Context, year int) ([]core.LedgerEntry, error)
	}

	// Exporter is what the export worker needs from a backend.
	Exporter interface {
		EntryWriter
		EntryLister
	}
)

// Column headers of the export sheet, in order.
var Header = []string{"Date", "Boutique", "Type", "Libellé", "Quantité", "Montant (FCFA)", "Réf"}

// RefSet returns the set of refs present in entries.
func RefSet(entries []core.LedgerEntry) map[string]struct{} {
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		out[e.Ref] = struct{}{}
	}
	return out
}
