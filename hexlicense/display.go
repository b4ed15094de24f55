package hexlicense

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	statusValid   = color.New(color.FgGreen, color.Bold)
	statusInvalid = color.New(color.FgRed, color.Bold)
	offlineNotice = color.New(color.FgYellow)
)

// WriteSummary prints the last record in a human-readable block.
func (m *Manager) WriteSummary(w io.Writer) error {
	record := m.Record()
	if record == nil {
		_, err := fmt.Fprintln(w, "No license information available")
		return err
	}

	p := &summaryPrinter{w: w}
	p.line("\n=== LICENSE INFORMATION ===")
	if record.Valid {
		p.line("Status: %s", statusValid.Sprint("Valid"))
		p.line("Product: %s", m.cfg.ProductID)
		p.line("Owner: %s", record.Owner)
		if record.ExpiresAt != nil {
			p.line("Expires: %s (%d days left)",
				record.ExpiresAt.Format("2006-01-02"), daysLeft(*record.ExpiresAt, m.now()))
		} else {
			p.line("Expires: Never")
		}
		if len(record.Features) > 0 {
			p.line("Features:")
			for _, f := range record.Features {
				p.line("  - %s", f)
			}
		}
		if record.OfflineMode {
			p.line("Mode: %s", offlineNotice.Sprint("Offline (Limited functionality)"))
		}
	} else {
		p.line("Status: %s", statusInvalid.Sprint("Invalid"))
		msg := record.Error
		if msg == "" {
			msg = "Unknown error"
		}
		p.line("Error: %s", msg)
	}
	p.line("===========================\n")
	return p.err
}

// summaryPrinter keeps the first write error.
type summaryPrinter struct {
	w   io.Writer
	err error
}

func (p *summaryPrinter) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}
