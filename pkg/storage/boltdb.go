package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/shepherd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketReports = []byte("reports")
)

// BoltStore implements ReportStore using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) shepherd.db in dataDir. Parallel runs
// share the file, so opening waits up to lockTimeout for the file lock.
func NewBoltStore(dataDir string, lockTimeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "shepherd.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketReports); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketReports, err)
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Report operations
func (s *BoltStore) PutReport(r *types.Report) error {
	if r.DeploymentID == "" {
		return fmt.Errorf("report has no deployment id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReports)
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put([]byte(r.DeploymentID), data)
	})
}

func (s *BoltStore) GetReport(deploymentID string) (*types.Report, error) {
	var report types.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReports)
		data := b.Get([]byte(deploymentID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, deploymentID)
		}
		return json.Unmarshal(data, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *BoltStore) ListReports(f Filter) ([]*types.Report, error) {
	var reports []*types.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReports)
		return b.ForEach(func(k, v []byte) error {
			var report types.Report
			if err := json.Unmarshal(v, &report); err != nil {
				return err
			}
			if f.Environment != "" && report.Environment != f.Environment {
				return nil
			}
			reports = append(reports, &report)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
	if f.Limit > 0 && len(reports) > f.Limit {
		reports = reports[:f.Limit]
	}
	return reports, nil
}

func (s *BoltStore) DeleteReport(deploymentID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReports)
		return b.Delete([]byte(deploymentID))
	})
}

var _ ReportStore = (*BoltStore)(nil)
