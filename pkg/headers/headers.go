// Package headers decodes the FROM/TO/DATE header blocks returned by a
// header-only IMAP fetch.
package headers

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strings"
	"time"

	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/models/stats"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/pkg/errors"
)

// addressPattern is intentionally loose: it finds addresses inside display
// names and returns every occurrence in a header.
var addressPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// Layouts tried after the RFC 5322 parser gives up.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 02 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04 -0700",
	"02 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
}

// Fields holds the raw header values. An empty pointer means the header was
// not present in the block.
type Fields struct {
	From *string
	To   *string
	Date *string
}

// Parse reads a header block. RFC 2047 encoded words are decoded when the
// charset is known; otherwise the raw value is kept.
func Parse(r io.Reader) (Fields, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Fields{}, errors.Wrap(err, "reading header block")
	}
	raw = terminate(raw)

	tpHeader, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return Fields{}, errors.Wrap(err, "parsing header block")
	}
	header := mail.Header{Header: message.Header{Header: tpHeader}}

	return Fields{
		From: headerText(header, "From"),
		To:   headerText(header, "To"),
		Date: headerText(header, "Date"),
	}, nil
}

// terminate makes sure the block ends with the empty line the header reader
// expects. Servers usually send it, test fixtures often don't.
func terminate(raw []byte) []byte {
	switch {
	case len(raw) == 0:
		return []byte("\r\n")
	case bytes.HasSuffix(raw, []byte("\r\n\r\n")), bytes.HasSuffix(raw, []byte("\n\n")):
		return raw
	case bytes.HasSuffix(raw, []byte("\n")):
		return append(raw, "\r\n"...)
	default:
		return append(raw, "\r\n\r\n"...)
	}
}

func headerText(header mail.Header, key string) *string {
	if !header.Has(key) {
		return nil
	}
	value, err := header.Text(key)
	if err != nil {
		value = header.Get(key)
	}
	value = strings.TrimSpace(value)
	return &value
}

// ExtractAddresses returns every address-looking substring of value in order,
// duplicates included. Zero matches is not an error.
func ExtractAddresses(value string) []string {
	return addressPattern.FindAllString(value, -1)
}

// ParseDate parses a Date header value.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &base.DateParseError{Value: value, Err: errors.New("empty date")}
	}

	var h mail.Header
	h.Set("Date", value)
	t, err := h.Date()
	if err == nil && !t.IsZero() {
		return t, nil
	}

	for _, layout := range dateLayouts {
		if t, lerr := time.Parse(layout, value); lerr == nil {
			return t, nil
		}
	}

	if err == nil {
		err = errors.New("unrecognised date format")
	}
	return time.Time{}, &base.DateParseError{Value: value, Err: err}
}

// ToMessage turns decoded fields into an aggregator record. A date that cannot
// be parsed is reported through the returned error but the message is still
// usable: its Date is simply left nil.
func ToMessage(f Fields) (stats.Message, error) {
	var msg stats.Message
	if f.From != nil {
		msg.From = ExtractAddresses(*f.From)
	}
	if f.To != nil {
		msg.To = ExtractAddresses(*f.To)
	}

	if f.Date == nil {
		return msg, &base.DateParseError{Err: errors.New("missing date header")}
	}
	date, err := ParseDate(*f.Date)
	if err != nil {
		return msg, err
	}
	msg.Date = &date
	return msg, nil
}
