package db

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/996BC/btccrawler/crawler"
	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/utils"
)

const gcInterval = 10 * time.Minute

// BadgerStore is the embedded store, records survive between crawls on the same host
type BadgerStore struct {
	*badger.DB
	lm *utils.LoopMode
}

func OpenBadger(path string) (*BadgerStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty badger path")
	}

	dbpath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(dbpath, 0700); err != nil {
		return nil, err
	}
	if err = utils.AccessCheck(dbpath); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dbpath)
	opts = opts.WithLogger(nil)
	opts = opts.WithValueLogFileSize(64 << 20)
	opts = opts.WithMaxTableSize(16 << 20)

	b := &BadgerStore{
		lm: utils.NewLoop(),
	}
	b.DB, err = badger.Open(opts)
	if err != nil {
		return nil, b.wrapError(err)
	}

	b.start()
	return b, nil
}

func (b *BadgerStore) Close() error {
	b.stop()
	return b.DB.Close()
}

func (b *BadgerStore) SaveRecord(r *peer.Record) error {
	key := getPeerKey(r.Address)

	wf := func(tx *badger.Txn) error {
		var old *peer.Record
		item, err := tx.Get(key)
		switch err {
		case nil:
			if err := item.Value(func(val []byte) error {
				old = &peer.Record{}
				return json.Unmarshal(val, old)
			}); err != nil {
				return err
			}
		case badger.ErrKeyNotFound:
		default:
			return err
		}

		data, err := json.Marshal(merge(old, r))
		if err != nil {
			return err
		}
		return tx.Set(key, data)
	}

	return b.update(wf)
}

func (b *BadgerStore) GetRecord(addr peer.Address) (*peer.Record, error) {
	var result *peer.Record

	rf := func(tx *badger.Txn) error {
		item, err := tx.Get(getPeerKey(addr))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			result = &peer.Record{}
			return json.Unmarshal(val, result)
		})
	}

	return result, b.view(rf)
}

// Records returns all records ordered by address
func (b *BadgerStore) Records() ([]*peer.Record, error) {
	var result []*peer.Record

	rf := func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(peerPrefix); it.ValidForPrefix(peerPrefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				r := &peer.Record{}
				if err := json.Unmarshal(v, r); err != nil {
					return err
				}
				result = append(result, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	if err := b.view(rf); err != nil {
		return nil, err
	}
	sortRecords(result)
	return result, nil
}

func (b *BadgerStore) SaveSummary(s *crawler.Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	wf := func(tx *badger.Txn) error {
		return tx.Set(getSessionKey(s.SessionID), data)
	}
	return b.update(wf)
}

func (b *BadgerStore) GetSummary(id string) (*crawler.Summary, error) {
	var result *crawler.Summary

	rf := func(tx *badger.Txn) error {
		item, err := tx.Get(getSessionKey(id))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			result = &crawler.Summary{}
			return json.Unmarshal(val, result)
		})
	}

	return result, b.view(rf)
}

func (b *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	return b.wrapError(b.View(fn))
}

func (b *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	return b.wrapError(b.Update(fn))
}

func (b *BadgerStore) wrapError(err error) error {
	if err == nil {
		return nil
	}

	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}

	logger.Warn("badger error:%v\n", err)
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

func (b *BadgerStore) start() {
	b.lm.StartWorking()
	b.lm.Add()
	go b.gcLoop()
}

func (b *BadgerStore) stop() {
	b.lm.Stop()
}

func (b *BadgerStore) gcLoop() {
	defer b.lm.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.lm.D:
			return
		case <-ticker.C:
			b.runGC()
		}
	}
}

func (b *BadgerStore) runGC() {
	for {
		if err := b.RunValueLogGC(0.5); err != nil {
			if err != badger.ErrNoRewrite {
				logger.Debug("value log gc:%v\n", err)
			}
			return
		}
	}
}
