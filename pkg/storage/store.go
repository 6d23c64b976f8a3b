package storage

import (
	"errors"

	"github.com/cuemby/shepherd/pkg/types"
)

// ErrNotFound is returned when a report does not exist
var ErrNotFound = errors.New("report not found")

// Filter narrows List results
type Filter struct {
	// Environment keeps only reports of this environment when set
	Environment types.Environment

	// Limit caps the number of results; zero means no limit
	Limit int
}

// ReportStore is the durable log of deployment reports
type ReportStore interface {
	// PutReport stores r under its deployment id, replacing any previous
	// report with the same id
	PutReport(r *types.Report) error

	GetReport(deploymentID string) (*types.Report, error)

	// ListReports returns reports newest first
	ListReports(f Filter) ([]*types.Report, error)

	DeleteReport(deploymentID string) error

	Close() error
}
