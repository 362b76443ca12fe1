/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package dlr

import (
	"context"
	"encoding/json"
	"log"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("dlr")

// BoltStorage keeps delivery reports in a local Bolt file: no server,
// no schema, good enough for a single-gateway deployment.
type BoltStorage struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

// NewBoltStorage makes a BoltStorage for the file.  Call Open before
// use.
func NewBoltStorage(filename string) (*BoltStorage, error) {
	return &BoltStorage{filename: filename}, nil
}

// Open opens the Bolt file.
func (s *BoltStorage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *BoltStorage) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStorage) logf(format string, args ...interface{}) {
	if s == nil {
		return
	}
	if s.Debug {
		log.Printf("BoltDB "+format, args...)
	}
}

func boltKey(smsc, ts, dst string) []byte {
	return []byte(smsc + "|" + ts + "|" + dst)
}

func (s *BoltStorage) Add(ctx context.Context, e *Entry) error {
	js, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.logf("Add %s", js)
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(boltBucket)
		if err != nil {
			return err
		}
		return b.Put(boltKey(e.SMSC, e.Timestamp, e.Destination), js)
	})
}

func (s *BoltStorage) Get(ctx context.Context, smsc, ts, dst string) (*Entry, error) {
	var e *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b == nil {
			return ErrNotFound
		}
		bs := b.Get(boltKey(smsc, ts, dst))
		if bs == nil {
			return ErrNotFound
		}
		e = &Entry{}
		return json.Unmarshal(bs, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *BoltStorage) Update(ctx context.Context, smsc, ts, dst string, status int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b == nil {
			return ErrNotFound
		}
		key := boltKey(smsc, ts, dst)
		bs := b.Get(key)
		if bs == nil {
			return ErrNotFound
		}
		var e Entry
		if err := json.Unmarshal(bs, &e); err != nil {
			return err
		}
		e.Status = status
		js, err := json.Marshal(&e)
		if err != nil {
			return err
		}
		return b.Put(key, js)
	})
}

func (s *BoltStorage) Remove(ctx context.Context, smsc, ts, dst string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b == nil {
			return ErrNotFound
		}
		key := boltKey(smsc, ts, dst)
		if b.Get(key) == nil {
			return ErrNotFound
		}
		return b.Delete(key)
	})
}

func (s *BoltStorage) Messages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b == nil {
			return nil
		}
		n = int64(b.Stats().KeyN)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *BoltStorage) Flush(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(boltBucket) == nil {
			return nil
		}
		return tx.DeleteBucket(boltBucket)
	})
}
