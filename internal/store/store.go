// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/bytedance/sonic"
	"go.etcd.io/bbolt"

	"github.com/BoostyLabs/txengine/bitcoin/commitreveal"
)

var (
	// ErrStore defines errors class for pending reveals store.
	ErrStore = errors.New("pending store")
	// ErrNotFound defines that there is no pending reveal for the commit transaction.
	ErrNotFound = errors.New("pending reveal not found")
)

var bucketPending = []byte("pending_reveals")

// BoltStore keeps pending reveals in bbolt database keyed by commit transaction id.
type BoltStore struct {
	db *bbolt.DB
}

var _ commitreveal.Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the database at path, creating parent directory if needed.
func OpenBoltStore(path string) (_ *BoltStore, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrStore, err)
		}
	}()

	if err = os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPending)
		return err
	})
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save puts pending reveal, replacing the previous one of the same commit.
func (s *BoltStore) Save(ctx context.Context, pending commitreveal.Pending) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pending.CommitTxID == "" {
		return errors.Join(ErrStore, errors.New("empty commit transaction id"))
	}

	data, err := sonic.Marshal(pending)
	if err != nil {
		return errors.Join(ErrStore, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Put([]byte(pending.CommitTxID), data)
	})
	if err != nil {
		return errors.Join(ErrStore, err)
	}

	return nil
}

// Delete removes pending reveal. Missing entry is not an error.
func (s *BoltStore) Delete(ctx context.Context, commitTxID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Delete([]byte(commitTxID))
	})
	if err != nil {
		return errors.Join(ErrStore, err)
	}

	return nil
}

// Get returns pending reveal of the commit transaction.
func (s *BoltStore) Get(ctx context.Context, commitTxID string) (*commitreveal.Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pending commitreveal.Pending
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPending).Get([]byte(commitTxID))
		if data == nil {
			return ErrNotFound
		}

		return sonic.Unmarshal(data, &pending)
	})
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}

	return &pending, nil
}

// List returns all pending reveals, oldest first.
func (s *BoltStore) List(ctx context.Context) ([]commitreveal.Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var list []commitreveal.Pending
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(_, data []byte) error {
			var pending commitreveal.Pending
			if err := sonic.Unmarshal(data, &pending); err != nil {
				return err
			}

			list = append(list, pending)

			return nil
		})
	})
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	return list, nil
}
