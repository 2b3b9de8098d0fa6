package report

import (
	"bufio"
	"fmt"
	"io"

	"aaronromeo.com/mailtally/pkg/base"
)

const notAvailable = "N/A"

// Render writes the console summary, one block per tracked key.
func (r Report) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)

	label := "email"
	if r.Mode == base.ModeDomain {
		label = "domain"
	}

	for _, e := range r.Entries {
		fmt.Fprintf(bw, "\nSummary for %s: %s\n", label, e.Key)
		fmt.Fprintf(bw, "  Total emails sent: %d\n", e.Sent)
		fmt.Fprintf(bw, "  Total emails received: %d\n", e.Received)
		fmt.Fprintf(bw, "  Total emails exchanged: %d\n", e.Total)
		fmt.Fprintf(bw, "  First email: %s\n", orNotAvailable(e.FirstEmail()))
		fmt.Fprintf(bw, "  Last email: %s\n", orNotAvailable(e.LastEmail()))

		for _, p := range e.People {
			fmt.Fprintf(bw, "  %s - sent: %d, received: %d, total: %d\n", p.Address, p.Sent, p.Received, p.Total)
		}
	}

	return bw.Flush()
}

func orNotAvailable(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
