// Package backup captures a pointer to the previous deployment before any
// mutation so the rollback controller has a target.
package backup

import (
	"context"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/provision"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/rs/zerolog"
)

// StateReader is the read-only view of the provisioner
type StateReader interface {
	CurrentState(ctx context.Context) (*provision.PriorState, error)
}

// Manager snapshots the existing deployment
type Manager struct {
	reader StateReader
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a backup manager reading prior state from reader
func NewManager(reader StateReader) *Manager {
	return &Manager{
		reader: reader,
		logger: log.WithComponent("backup"),
		now:    time.Now,
	}
}

// Capture returns the current deployment as a Backup. It never fails: a
// first deployment or an unreadable prior state yields an empty backup.
func (m *Manager) Capture(ctx context.Context) *types.Backup {
	b := &types.Backup{CapturedAt: m.now()}

	prior, err := m.reader.CurrentState(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Could not read previous deployment, continuing without backup")
		return b
	}
	if prior == nil || len(prior.Addresses) == 0 {
		m.logger.Info().Msg("First deployment, nothing to back up")
		return b
	}

	b.Addresses = append([]string(nil), prior.Addresses...)
	b.Image = prior.Image
	b.State = prior.Handle

	m.logger.Info().
		Strs("addresses", b.Addresses).
		Str("image", b.Image).
		Bool("state_captured", len(b.State) > 0).
		Msg("Backup captured")
	return b
}
