package mq

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
)

// PebbleStoreConfig configures a pebble-backed Store.
type PebbleStoreConfig struct {
	// Path is the on-disk directory pebble manages.
	Path string
	// Opts are passed through to pebble.Open. Nil uses pebble's defaults.
	Opts *pebble.Options
}

// pebbleStore is a Store backend durable across process restarts, for
// deployments that want outgoing QoS 1/2 state to survive a crash and not
// just a reconnect. Keys are the big-endian packet id so CreateStream's
// iteration order falls directly out of pebble's own key ordering.
type pebbleStore struct {
	db     *pebble.DB
	mu     sync.RWMutex
	closed bool
}

// NewPebbleStore opens (or creates) a pebble database at config.Path and
// returns a Store backed by it.
func NewPebbleStore(config PebbleStoreConfig) (Store, error) {
	opts := config.Opts
	if opts == nil {
		opts = &pebble.Options{ErrorIfExists: false}
	}

	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		return nil, err
	}

	return &pebbleStore{db: db}, nil
}

func pebbleKey(id uint16) []byte {
	var k [2]byte
	binary.BigEndian.PutUint16(k[:], id)
	return k[:]
}

func (p *pebbleStore) Put(id uint16, rec *storeRecord) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrStoreClosed
	}
	p.mu.RUnlock()

	data, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return p.db.Set(pebbleKey(id), data, pebble.Sync)
}

func (p *pebbleStore) Get(id uint16) (*storeRecord, bool, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, false, ErrStoreClosed
	}
	p.mu.RUnlock()

	data, closer, err := p.db.Get(pebbleKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer closer.Close()

	var rec storeRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (p *pebbleStore) Del(id uint16) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrStoreClosed
	}
	p.mu.RUnlock()

	return p.db.Delete(pebbleKey(id), pebble.Sync)
}

func (p *pebbleStore) CreateStream() (RestartableStream, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	p.mu.RUnlock()

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{0x00, 0x00},
		UpperBound: []byte{0xff, 0xff, 0x00},
	})
	if err != nil {
		return nil, err
	}
	iter.First()
	return &pebbleStream{iter: iter, started: true}, nil
}

func (p *pebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}

type pebbleStream struct {
	iter    *pebble.Iterator
	started bool
}

func (s *pebbleStream) Next() (uint16, *storeRecord, bool, error) {
	if !s.started {
		s.iter.Next()
	}
	s.started = false

	if !s.iter.Valid() {
		return 0, nil, false, s.iter.Error()
	}

	id := binary.BigEndian.Uint16(s.iter.Key())

	var rec storeRecord
	if err := cbor.Unmarshal(s.iter.Value(), &rec); err != nil {
		return 0, nil, false, err
	}

	return id, &rec, true, nil
}

func (s *pebbleStream) Close() error {
	return s.iter.Close()
}
