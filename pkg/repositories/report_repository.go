// Package repositories persists reports through a utils.FileManager.
package repositories

import (
	"bytes"
	"log/slog"
	"path/filepath"

	"aaronromeo.com/mailtally/pkg/report"
	"aaronromeo.com/mailtally/pkg/utils"
	"github.com/pkg/errors"
)

// ReportRepository stores and loads the CSV export.
type ReportRepository interface {
	Save(rep report.Report) error
	Load() (report.Report, error)
	Path() string
}

type FileReportRepository struct {
	fileManager utils.FileManager
	path        string
	logger      *slog.Logger
}

func NewFileReportRepository(fileManager utils.FileManager, path string, logger *slog.Logger) (*FileReportRepository, error) {
	if fileManager == nil {
		return nil, errors.New("requires file manager")
	}
	if path == "" {
		return nil, errors.New("requires report path")
	}
	if logger == nil {
		return nil, errors.New("requires slogger")
	}
	return &FileReportRepository{fileManager: fileManager, path: path, logger: logger}, nil
}

func (r *FileReportRepository) Path() string {
	return r.path
}

// Save writes rep as CSV, creating the parent directory if needed.
func (r *FileReportRepository) Save(rep report.Report) error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := r.fileManager.MkdirAll(dir, 0o755); err != nil {
			r.logger.Error("Failed to create report directory", slog.String("dir", dir), slog.Any("error", utils.WrapError(err)))
			return errors.Wrapf(err, "creating %s", dir)
		}
	}

	writer, err := r.fileManager.Create(r.path)
	if err != nil {
		r.logger.Error("Failed to create report file", slog.String("path", r.path), slog.Any("error", utils.WrapError(err)))
		return errors.Wrapf(err, "creating %s", r.path)
	}

	if err := rep.WriteCSV(writer); err != nil {
		_ = r.fileManager.Close()
		r.logger.Error("Failed to write report", slog.String("path", r.path), slog.Any("error", utils.WrapError(err)))
		return errors.Wrapf(err, "writing %s", r.path)
	}

	if err := r.fileManager.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", r.path)
	}

	r.logger.Info("CSV file saved", slog.String("path", r.path), slog.Int("entries", rep.Len()))
	return nil
}

// Load reads a previously saved report.
func (r *FileReportRepository) Load() (report.Report, error) {
	data, err := r.fileManager.ReadFile(r.path)
	if err != nil {
		return report.Report{}, errors.Wrapf(err, "reading %s", r.path)
	}

	rep, err := report.ReadCSV(bytes.NewReader(data))
	if err != nil {
		r.logger.Error("Failed to parse report", slog.String("path", r.path), slog.Any("error", utils.WrapError(err)))
		return report.Report{}, errors.Wrapf(err, "parsing %s", r.path)
	}
	return rep, nil
}
