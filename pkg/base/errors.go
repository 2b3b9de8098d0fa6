package base

import "fmt"

// AuthError aborts the whole run. No report is produced.
type AuthError struct {
	Account string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SelectError means the mailbox could not be opened for a key.
type SelectError struct {
	Mailbox string
	Err     error
}

func (e *SelectError) Error() string {
	return fmt.Sprintf("selecting mailbox %q: %v", e.Mailbox, e.Err)
}

func (e *SelectError) Unwrap() error { return e.Err }

// SearchError skips one tracked key.
type SearchError struct {
	Key string
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("searching messages for %q: %v", e.Key, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// FetchError skips one batch.
type FetchError struct {
	FirstSeqNum uint32
	Size        int
	Err         error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching batch of %d starting at %d: %v", e.Size, e.FirstSeqNum, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DateParseError only disables date tracking for one message.
type DateParseError struct {
	Value string
	Err   error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("parsing date %q: %v", e.Value, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }
