/*
Package storage keeps the durable log of deployment reports in BoltDB.

Every terminal run writes one JSON-encoded types.Report into the "reports"
bucket of <data_dir>/shepherd.db, keyed by deployment id. `shepherd
history` reads them back newest first.

Runs for different environments may execute in parallel processes. BoltDB
holds an exclusive file lock while a database is open, so callers open the
store only for the duration of a read or write and pass a lock timeout:

	store, err := storage.NewBoltStore(cfg.DataDir, 5*time.Second)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.PutReport(&report)
*/
package storage
