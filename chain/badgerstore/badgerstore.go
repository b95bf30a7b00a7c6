// Package badgerstore is a Badger-backed chain.Store for full nodes that
// need their header chain to survive a restart. It follows the common
// storage/badger convention of single-byte key prefixes plus a msgpack
// payload. Fork-finding is left to chain/forkfinder's generic parent-pointer
// walk, the same as sqlitestore.
package badgerstore

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/shieldfold/shieldnode/chain"
	model "github.com/shieldfold/shieldnode/model/chain"
	"github.com/shieldfold/shieldnode/verifier"
)

const (
	prefixHeaderByID byte = 0x01
	keyHead               = "head"
	keyGenesis            = "genesis"
)

// Store is a Badger-backed chain.Store. It does not implement
// chain.ForkFinder; wrap it with chain/forkfinder.New the same way
// sqlitestore is wrapped.
type Store struct {
	db        *badger.DB
	genesis   *model.Header
	validator verifier.Validator
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithValidator makes Put reject a header validator.ValidateHeader rejects,
// before it ever reaches disk. The default is verifier.AlwaysValid.
func WithValidator(v verifier.Validator) Option {
	return func(s *Store) { s.validator = v }
}

// Open opens (or creates) a badger database at path and returns a Store.
// If the database is empty, genesis is written as the store's genesis
// header and initial head. If it already contains a genesis header, genesis
// is ignored and the stored one is used instead — Open is idempotent across
// restarts.
func Open(path string, genesis *model.Header, opts_ ...Option) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: could not open database at %s: %w", path, err)
	}
	s := &Store{db: db, validator: verifier.AlwaysValid{}}
	for _, opt := range opts_ {
		opt(s)
	}

	err = db.Update(func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(keyGenesis))
		if getErr == nil {
			var id model.Identifier
			if err := item.Value(func(val []byte) error {
				copy(id[:], val)
				return nil
			}); err != nil {
				return err
			}
			existing, err := loadHeader(txn, headerByIDKey(id))
			if err != nil {
				return err
			}
			s.genesis = existing
			return nil
		}
		if getErr != badger.ErrKeyNotFound {
			return getErr
		}
		if err := putHeader(txn, headerByIDKey(genesis.Hash), genesis); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyGenesis), genesis.Hash[:]); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyHead), genesis.Hash[:]); err != nil {
			return err
		}
		s.genesis = genesis
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badgerstore: could not initialize genesis: %w", err)
	}
	return s, nil
}

// Close releases the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Genesis implements chain.Store.
func (s *Store) Genesis() *model.Header {
	return s.genesis
}

// Head implements chain.Store.
func (s *Store) Head(ctx context.Context) (*model.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var head *model.Header
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyHead))
		if err != nil {
			return err
		}
		var id model.Identifier
		if err := item.Value(func(val []byte) error {
			copy(id[:], val)
			return nil
		}); err != nil {
			return err
		}
		h, err := loadHeader(txn, headerByIDKey(id))
		if err != nil {
			return err
		}
		head = h
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: could not read head: %w", translate(err))
	}
	return head, nil
}

// ByID implements chain.Store.
func (s *Store) ByID(ctx context.Context, id model.Identifier) (*model.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var h *model.Header
	err := s.db.View(func(txn *badger.Txn) error {
		loaded, err := loadHeader(txn, headerByIDKey(id))
		if err != nil {
			return err
		}
		h = loaded
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return h, nil
}

// Put stores header. It does not move the head; call SetHead once the
// caller has decided header should become canonical. It rejects header if
// the store's Validator does.
func (s *Store) Put(ctx context.Context, header *model.Header) error {
	if err := s.validator.ValidateHeader(ctx, header); err != nil {
		return fmt.Errorf("badgerstore: header %s rejected: %w", header.Hash, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return putHeader(txn, headerByIDKey(header.Hash), header)
	})
}

// SetHead moves the store's canonical tip to id.
func (s *Store) SetHead(id model.Identifier) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := loadHeader(txn, headerByIDKey(id)); err != nil {
			return err
		}
		return txn.Set([]byte(keyHead), id[:])
	})
}

// IterateFrom implements chain.Store.
func (s *Store) IterateFrom(ctx context.Context, start, stop model.Identifier, inclusive bool) (chain.HeaderIterator, error) {
	if _, err := s.ByID(ctx, start); err != nil {
		return nil, err
	}
	if _, err := s.ByID(ctx, stop); err != nil {
		return nil, err
	}
	return &backwardIterator{store: s, cursor: start, stop: stop}, nil
}

// IterateTo implements chain.Store by walking stop back to start via
// parent pointers and reversing, the same approach chainmem uses over its
// in-memory map.
func (s *Store) IterateTo(ctx context.Context, start, stop model.Identifier, inclusive bool) (chain.HeaderIterator, error) {
	startHeader, err := s.ByID(ctx, start)
	if err != nil {
		return nil, err
	}
	stopHeader, err := s.ByID(ctx, stop)
	if err != nil {
		return nil, err
	}
	var path []*model.Header
	cur := stopHeader
	for {
		path = append(path, cur)
		if cur.Hash == startHeader.Hash {
			break
		}
		if cur.IsGenesis() {
			return nil, fmt.Errorf("badgerstore: %s is not a descendant of %s", stop, start)
		}
		cur, err = s.ByID(ctx, cur.PreviousHash)
		if err != nil {
			return nil, err
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return &sliceIterator{headers: path}, nil
}

type backwardIterator struct {
	store  *Store
	cursor model.Identifier
	stop   model.Identifier
	done   bool
}

func (it *backwardIterator) Next(ctx context.Context) (*model.Header, bool, error) {
	if it.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	h, err := it.store.ByID(ctx, it.cursor)
	if err != nil {
		return nil, false, err
	}
	if it.cursor == it.stop {
		it.done = true
		return h, true, nil
	}
	it.cursor = h.PreviousHash
	return h, true, nil
}

type sliceIterator struct {
	headers []*model.Header
	i       int
}

func (it *sliceIterator) Next(ctx context.Context) (*model.Header, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if it.i >= len(it.headers) {
		return nil, false, nil
	}
	h := it.headers[it.i]
	it.i++
	return h, true, nil
}

func headerByIDKey(id model.Identifier) []byte {
	key := make([]byte, 1+len(id))
	key[0] = prefixHeaderByID
	copy(key[1:], id[:])
	return key
}

// wireHeader is the on-disk encoding of a model.Header. Kept distinct from
// model.Header so the model package stays free of msgpack struct tags.
type wireHeader struct {
	Hash         []byte `msgpack:"hash"`
	PreviousHash []byte `msgpack:"previous_hash"`
	Sequence     uint64 `msgpack:"sequence"`
	TimestampUTC int64  `msgpack:"timestamp_unix_nano"`
	Payload      []byte `msgpack:"payload"`
}

func putHeader(txn *badger.Txn, key []byte, h *model.Header) error {
	wire := wireHeader{
		Hash:         h.Hash[:],
		PreviousHash: h.PreviousHash[:],
		Sequence:     h.Sequence,
		TimestampUTC: h.Timestamp.UnixNano(),
		Payload:      h.Payload,
	}
	data, err := msgpack.Marshal(&wire)
	if err != nil {
		return fmt.Errorf("badgerstore: could not encode header: %w", err)
	}
	return txn.Set(key, data)
}

func loadHeader(txn *badger.Txn, key []byte) (*model.Header, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var wire wireHeader
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &wire)
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: could not decode header: %w", err)
	}
	h := &model.Header{Sequence: wire.Sequence, Payload: wire.Payload}
	copy(h.Hash[:], wire.Hash)
	copy(h.PreviousHash[:], wire.PreviousHash)
	h.Timestamp = time.Unix(0, wire.TimestampUTC).UTC()
	return h, nil
}

func translate(err error) error {
	if err == badger.ErrKeyNotFound {
		return chain.ErrNotFound
	}
	return err
}

var _ chain.Store = (*Store)(nil)
