package report

import (
	"encoding/csv"
	"io"
	"slices"
	"strconv"
	"time"

	"aaronromeo.com/mailtally/pkg/base"
	"github.com/pkg/errors"
)

var (
	AddressColumns = []string{"Email Address", "Sent", "Received", "Total", "First Email", "Last Email"}
	DomainColumns  = []string{
		"Domain", "Person", "Sent", "Received", "Total", "First Email", "Last Email",
		"Total Emails Sent (Domain)", "Total Emails Received (Domain)", "Total Emails Exchanged (Domain)",
	}
)

// WriteCSV exports the report. Domain mode writes one row per person so a
// domain without people produces no rows.
func (r Report) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	switch r.Mode {
	case base.ModeAddress:
		if err := writer.Write(AddressColumns); err != nil {
			return errors.Wrap(err, "writing header")
		}
		for _, e := range r.Entries {
			row := []string{e.Key, itoa(e.Sent), itoa(e.Received), itoa(e.Total), e.FirstEmail(), e.LastEmail()}
			if err := writer.Write(row); err != nil {
				return errors.Wrapf(err, "writing row for %s", e.Key)
			}
		}
	case base.ModeDomain:
		if err := writer.Write(DomainColumns); err != nil {
			return errors.Wrap(err, "writing header")
		}
		for _, e := range r.Entries {
			for _, p := range e.People {
				row := []string{
					e.Key, p.Address, itoa(p.Sent), itoa(p.Received), itoa(p.Total),
					e.FirstEmail(), e.LastEmail(),
					itoa(e.Sent), itoa(e.Received), itoa(e.Total),
				}
				if err := writer.Write(row); err != nil {
					return errors.Wrapf(err, "writing row for %s/%s", e.Key, p.Address)
				}
			}
		}
	default:
		return errors.Errorf("unknown report mode %q", r.Mode)
	}

	writer.Flush()
	return writer.Error()
}

// ReadCSV parses a file produced by WriteCSV. The mode is taken from the
// header row. Dates come back as midnight UTC on the exported day.
func ReadCSV(r io.Reader) (Report, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return Report{}, errors.Wrap(err, "reading csv")
	}
	if len(records) == 0 {
		return Report{}, errors.New("empty report file")
	}

	header, rows := records[0], records[1:]
	switch {
	case slices.Equal(header, AddressColumns):
		return readAddressRows(rows)
	case slices.Equal(header, DomainColumns):
		return readDomainRows(rows)
	default:
		return Report{}, errors.Errorf("unrecognised report header %v", header)
	}
}

func readAddressRows(rows [][]string) (Report, error) {
	rep := Report{Mode: base.ModeAddress, Entries: make([]Entry, 0, len(rows))}
	for i, row := range rows {
		var (
			e   = Entry{Key: row[0]}
			err error
		)
		if e.Sent, e.Received, e.Total, err = atoi3(row[1], row[2], row[3]); err != nil {
			return Report{}, errors.Wrapf(err, "row %d", i+2)
		}
		if e.FirstSeen, e.LastSeen, err = parseDates(row[4], row[5]); err != nil {
			return Report{}, errors.Wrapf(err, "row %d", i+2)
		}
		rep.Entries = append(rep.Entries, e)
	}
	return rep, nil
}

func readDomainRows(rows [][]string) (Report, error) {
	rep := Report{Mode: base.ModeDomain}
	index := map[string]int{}

	for i, row := range rows {
		var (
			p   = Person{Address: row[1]}
			err error
		)
		if p.Sent, p.Received, p.Total, err = atoi3(row[2], row[3], row[4]); err != nil {
			return Report{}, errors.Wrapf(err, "row %d", i+2)
		}

		pos, ok := index[row[0]]
		if !ok {
			e := Entry{Key: row[0]}
			if e.FirstSeen, e.LastSeen, err = parseDates(row[5], row[6]); err != nil {
				return Report{}, errors.Wrapf(err, "row %d", i+2)
			}
			if e.Sent, e.Received, e.Total, err = atoi3(row[7], row[8], row[9]); err != nil {
				return Report{}, errors.Wrapf(err, "row %d", i+2)
			}
			pos = len(rep.Entries)
			index[row[0]] = pos
			rep.Entries = append(rep.Entries, e)
		}
		rep.Entries[pos].People = append(rep.Entries[pos].People, p)
	}
	return rep, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func atoi3(a, b, c string) (int, int, int, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, 0, err
	}
	z, err := strconv.Atoi(c)
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}

func parseDates(first, last string) (*time.Time, *time.Time, error) {
	f, err := parseDate(first)
	if err != nil {
		return nil, nil, err
	}
	l, err := parseDate(last)
	if err != nil {
		return nil, nil, err
	}
	return f, l, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing date %q", s)
	}
	return &t, nil
}
