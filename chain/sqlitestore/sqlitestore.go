// Package sqlitestore is a SQLite-backed chain.Store for light/wallet-only
// nodes that want a durable header chain without running a separate
// database service. It uses database/sql with the mattn/go-sqlite3 driver,
// the same pairing withObsrvr-Flow uses for its embedded storage.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shieldfold/shieldnode/chain"
	model "github.com/shieldfold/shieldnode/model/chain"
	"github.com/shieldfold/shieldnode/verifier"
)

const schema = `
CREATE TABLE IF NOT EXISTS headers (
	hash          TEXT PRIMARY KEY,
	previous_hash TEXT NOT NULL,
	sequence      INTEGER NOT NULL,
	timestamp     INTEGER NOT NULL,
	payload       BLOB,
	UNIQUE(sequence, hash)
);
CREATE INDEX IF NOT EXISTS idx_headers_sequence ON headers(sequence);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is a SQLite-backed chain.Store.
type Store struct {
	db        *sql.DB
	genesis   *model.Header
	validator verifier.Validator
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithValidator makes Put reject a header validator.ValidateHeader rejects.
// The default is verifier.AlwaysValid.
func WithValidator(v verifier.Validator) Option {
	return func(s *Store) { s.validator = v }
}

// Open opens (or creates) a SQLite database at path. If empty, it is seeded
// with genesis as both the genesis header and the initial head.
func Open(path string, genesis *model.Header, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: could not open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: could not apply schema: %w", err)
	}
	s := &Store{db: db, validator: verifier.AlwaysValid{}}
	for _, opt := range opts {
		opt(s)
	}

	existing, err := s.metaGet("genesis")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if existing != "" {
		g, err := s.byIDHex(context.Background(), existing)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlitestore: could not load existing genesis: %w", err)
		}
		s.genesis = g
		return s, nil
	}

	if err := s.insertHeader(genesis); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.metaSet("genesis", genesis.Hash.Hex()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.metaSet("head", genesis.Hash.Hex()); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.genesis = genesis
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Genesis implements chain.Store.
func (s *Store) Genesis() *model.Header {
	return s.genesis
}

// Head implements chain.Store.
func (s *Store) Head(ctx context.Context) (*model.Header, error) {
	headHex, err := s.metaGet("head")
	if err != nil {
		return nil, err
	}
	if headHex == "" {
		return nil, fmt.Errorf("sqlitestore: no head recorded: %w", chain.ErrNotFound)
	}
	return s.byIDHex(ctx, headHex)
}

// ByID implements chain.Store.
func (s *Store) ByID(ctx context.Context, id model.Identifier) (*model.Header, error) {
	return s.byIDHex(ctx, id.Hex())
}

func (s *Store) byIDHex(ctx context.Context, hexID string) (*model.Header, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, previous_hash, sequence, timestamp, payload FROM headers WHERE hash = ?`, hexID)
	h, err := scanHeader(row)
	if err == sql.ErrNoRows {
		return nil, chain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: could not load header %s: %w", hexID, err)
	}
	return h, nil
}

// Put stores header. It does not move the head. It rejects header if the
// store's Validator does.
func (s *Store) Put(ctx context.Context, header *model.Header) error {
	if err := s.validator.ValidateHeader(ctx, header); err != nil {
		return fmt.Errorf("sqlitestore: header %s rejected: %w", header.Hash, err)
	}
	return s.insertHeader(header)
}

// SetHead moves the store's canonical tip to id.
func (s *Store) SetHead(id model.Identifier) error {
	if _, err := s.byIDHex(context.Background(), id.Hex()); err != nil {
		return err
	}
	return s.metaSet("head", id.Hex())
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

// IterateTo implements chain.Store.
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
			return nil, fmt.Errorf("sqlitestore: %s is not a descendant of %s", stop, start)
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

func (s *Store) insertHeader(h *model.Header) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO headers(hash, previous_hash, sequence, timestamp, payload) VALUES (?, ?, ?, ?, ?)`,
		h.Hash.Hex(), h.PreviousHash.Hex(), h.Sequence, h.Timestamp.UnixNano(), h.Payload,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: could not insert header %s: %w", h.Hash, err)
	}
	return nil
}

func (s *Store) metaGet(key string) (string, error) {
	row := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlitestore: could not read meta %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) metaSet(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("sqlitestore: could not write meta %s: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHeader(row rowScanner) (*model.Header, error) {
	var hashHex, prevHex string
	var sequence uint64
	var timestampNano int64
	var payload []byte
	if err := row.Scan(&hashHex, &prevHex, &sequence, &timestampNano, &payload); err != nil {
		return nil, err
	}
	hash, err := model.IdentifierFromHex(hashHex)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: corrupt hash: %w", err)
	}
	prev, err := model.IdentifierFromHex(prevHex)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: corrupt previous_hash: %w", err)
	}
	return &model.Header{
		Hash:         hash,
		PreviousHash: prev,
		Sequence:     sequence,
		Timestamp:    time.Unix(0, timestampNano).UTC(),
		Payload:      payload,
	}, nil
}

var _ chain.Store = (*Store)(nil)
