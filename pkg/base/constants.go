package base

const (
	SERVICE_NAME        = "mailtally"
	UPTRACE_DSN_ENV_VAR = "UPTRACE_DSN"

	DefaultIMAPAddr    = "imap.gmail.com:993"
	DefaultMailbox     = "[Gmail]/All Mail"
	DefaultReportFile  = "email_stats.csv"
	DefaultBatchSize   = 50
	DefaultMaxMessages = 100000

	// Upper bound on a single FETCH sequence set.
	MaxBatchSize = 500
)

// HeaderFields are the only header fields requested from the server.
var HeaderFields = []string{"FROM", "TO", "DATE"}
