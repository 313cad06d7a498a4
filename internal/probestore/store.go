// Package probestore persists which probes have been seen on this host,
// so a probe can be recognized across re-enumerations even though its
// device node path changes.
package probestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/probelink/probelink/pkg/dap"
	"go.uber.org/zap"
)

const keyPrefix = "probes/"

// KnownProbe is one persisted probe record.
type KnownProbe struct {
	Probe       dap.ProbeInfo `json:"probe"`
	FirstSeenAt time.Time     `json:"firstSeenAt"`
	LastSeenAt  time.Time     `json:"lastSeenAt"`
}

type Store struct {
	log *zap.Logger
	db  *badger.DB
	now func() time.Time
}

func Open(log *zap.Logger, dir string, now func() time.Time) (*Store, error) {
	options := badger.DefaultOptions(dir)
	options.Logger = &badgerLogger{l: log.Named("badger")}
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open probe store: %w", err)
	}
	return &Store{log: log, db: db, now: now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// key identifies a probe by what is stable across replugs, so the
// hidraw node path is not part of it. When the serial is unreadable the
// path is the only thing telling two otherwise identical probes apart,
// at the cost of the record not surviving a replug.
func (s *Store) key(p dap.ProbeInfo) []byte {
	id := p.Serial
	if id == dap.UnknownAttribute {
		id = p.Path
	}
	return []byte(fmt.Sprintf("%s%04x:%04x/%s", keyPrefix, p.VendorID, p.ProductID, id))
}

// Touch records that the probe is currently attached, preserving the
// time it was first seen.
func (s *Store) Touch(probe dap.ProbeInfo) (KnownProbe, error) {
	var rec KnownProbe
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		key := s.key(probe)
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			rec = KnownProbe{FirstSeenAt: now}
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal probe record: %w", err)
			}
		}
		rec.Probe = probe
		if rec.FirstSeenAt.IsZero() {
			rec.FirstSeenAt = now
		}
		rec.LastSeenAt = now
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal probe record: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return KnownProbe{}, fmt.Errorf("failed to record probe: %w", err)
	}
	return rec, nil
}

// List returns every probe ever recorded on this host.
func (s *Store) List() ([]KnownProbe, error) {
	var records []KnownProbe
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte(keyPrefix)
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			var rec KnownProbe
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list probes: %w", err)
	}
	return records, nil
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}
