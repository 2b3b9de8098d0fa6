// Package commands wraps the report sinks (console, CSV, S3, webhook) as
// commands so the CLI can chain them.
package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"

	"aaronromeo.com/mailtally/internal/announcer"
	"aaronromeo.com/mailtally/pkg/report"
	"aaronromeo.com/mailtally/pkg/repositories"
	"aaronromeo.com/mailtally/pkg/storage"
	"aaronromeo.com/mailtally/pkg/utils"
	"github.com/pkg/errors"
)

// ReportCommand defines the interface for report operations using the Command pattern.
type ReportCommand interface {
	Execute(ctx context.Context, rep report.Report) error
	GetName() string
	GetDescription() string
}

// Locator is implemented by commands that persist the report somewhere.
type Locator interface {
	Location() string
}

// SummaryCommand prints the console summary.
type SummaryCommand struct {
	logger *slog.Logger
	out    io.Writer
}

func NewSummaryCommand(logger *slog.Logger, out io.Writer) ReportCommand {
	return &SummaryCommand{logger: logger, out: out}
}

func (c *SummaryCommand) Execute(ctx context.Context, rep report.Report) error {
	c.logger.InfoContext(ctx, "Executing summary command")
	return rep.Render(c.out)
}

func (c *SummaryCommand) GetName() string {
	return "summary"
}

func (c *SummaryCommand) GetDescription() string {
	return "Prints the per-key summary"
}

// ExportCommand writes the CSV export through a repository.
type ExportCommand struct {
	logger *slog.Logger
	repo   repositories.ReportRepository
}

func NewExportCommand(logger *slog.Logger, repo repositories.ReportRepository) *ExportCommand {
	return &ExportCommand{logger: logger, repo: repo}
}

func (c *ExportCommand) Execute(ctx context.Context, rep report.Report) error {
	c.logger.InfoContext(ctx, "Executing export command", slog.String("path", c.repo.Path()))
	return c.repo.Save(rep)
}

func (c *ExportCommand) GetName() string {
	return "export"
}

func (c *ExportCommand) GetDescription() string {
	return "Writes the report as CSV"
}

func (c *ExportCommand) Location() string {
	return c.repo.Path()
}

// UploadCommand copies the exported file to object storage. It must run after
// an ExportCommand for the same path.
type UploadCommand struct {
	logger   *slog.Logger
	uploader storage.Uploader
	fileMgr  utils.FileManager
	path     string
	location string
}

func NewUploadCommand(logger *slog.Logger, uploader storage.Uploader, fileMgr utils.FileManager, path string) *UploadCommand {
	return &UploadCommand{logger: logger, uploader: uploader, fileMgr: fileMgr, path: path}
}

func (c *UploadCommand) Execute(ctx context.Context, _ report.Report) error {
	c.logger.InfoContext(ctx, "Executing upload command", slog.String("path", c.path))

	data, err := c.fileMgr.ReadFile(c.path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", c.path)
	}

	location, err := c.uploader.Upload(ctx, filepath.Base(c.path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.location = location
	return nil
}

func (c *UploadCommand) GetName() string {
	return "upload"
}

func (c *UploadCommand) GetDescription() string {
	return "Uploads the CSV export to S3"
}

// Location is empty until Execute succeeds.
func (c *UploadCommand) Location() string {
	return c.location
}

// AnnounceCommand posts a one-line summary to the reporting webhook.
type AnnounceCommand struct {
	logger    *slog.Logger
	announcer announcer.Service
	observed  func() int
	locator   Locator
}

// NewAnnounceCommand reports the location of the last locator that has one.
func NewAnnounceCommand(logger *slog.Logger, a announcer.Service, observed func() int, locators ...Locator) *AnnounceCommand {
	c := &AnnounceCommand{logger: logger, announcer: a, observed: observed}
	if len(locators) > 0 {
		c.locator = chain(locators)
	}
	return c
}

type chain []Locator

func (l chain) Location() string {
	for i := len(l) - 1; i >= 0; i-- {
		if loc := l[i].Location(); loc != "" {
			return loc
		}
	}
	return ""
}

func (c *AnnounceCommand) Execute(ctx context.Context, rep report.Report) error {
	c.logger.InfoContext(ctx, "Executing announce command")

	location := "(not saved)"
	if c.locator != nil {
		if loc := c.locator.Location(); loc != "" {
			location = loc
		}
	}
	messages := 0
	if c.observed != nil {
		messages = c.observed()
	}
	return c.announcer.Do(ctx, rep.Mode, rep.Len(), messages, location)
}

func (c *AnnounceCommand) GetName() string {
	return "announce"
}

func (c *AnnounceCommand) GetDescription() string {
	return "Posts the run summary to the reporting webhook"
}

// CommandExecutor provides a way to execute commands on a report.
type CommandExecutor struct {
	logger *slog.Logger
}

func NewCommandExecutor(logger *slog.Logger) *CommandExecutor {
	return &CommandExecutor{logger: logger}
}

// ExecuteCommand executes a command on a report with logging and error handling.
func (e *CommandExecutor) ExecuteCommand(ctx context.Context, cmd ReportCommand, rep report.Report) error {
	e.logger.InfoContext(ctx, "Starting command execution",
		slog.String("command", cmd.GetName()),
		slog.String("description", cmd.GetDescription()))

	if err := cmd.Execute(ctx, rep); err != nil {
		e.logger.ErrorContext(ctx, "Command execution failed",
			slog.String("command", cmd.GetName()),
			slog.Any("error", utils.WrapError(err)))
		return err
	}

	e.logger.InfoContext(ctx, "Command execution completed successfully",
		slog.String("command", cmd.GetName()))
	return nil
}

// ExecuteCommands runs commands in order and stops at the first failure.
func (e *CommandExecutor) ExecuteCommands(ctx context.Context, commands []ReportCommand, rep report.Report) error {
	for _, cmd := range commands {
		if err := e.ExecuteCommand(ctx, cmd, rep); err != nil {
			return errors.Wrapf(err, "%s", cmd.GetName())
		}
	}
	return nil
}
