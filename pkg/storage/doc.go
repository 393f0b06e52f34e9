// Package storage provides the persistent index of uploaded media files.
//
// The coordination registries (presence, groups, messages, typing, calls)
// are deliberately in-memory only; the upload index is the one piece that
// persists, because uploaded files outlive the process on disk and their
// records must stay resolvable.
//
// Usage:
//
//	store, err := storage.NewStore(cfg.Database)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
// The Store interface allows for alternative backends; SQLite is the
// default and MySQL is available for shared deployments.
package storage
