package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"rentguard/internal/booking/models"
	id "rentguard/pkg/domain"
)

// Key layout. External ids are printable, so a NUL byte separates them from
// the zero-padded booking id.
const (
	bookingKeyPrefix  = "booking:"
	tenantKeyPrefix   = "tenant:"
	propertyKeyPrefix = "property:"
	openKeyPrefix     = "open:"
	statusKeyPrefix   = "status:"
	nextIDKey         = "meta:next_id"
)

// LevelDB is a durable single-node registry. Bookings are stored as JSON and
// every index is a key with an empty value, written in the same batch.
type LevelDB struct {
	db *leveldb.DB

	idMu   sync.Mutex
	nextID uint64

	propertyLocks *keyedMutex
	bookingLocks  *keyedMutex
}

// OpenLevelDB opens (or creates) the registry at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb booking store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb booking path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb booking store: %w", err)
	}
	return newLevelDB(db)
}

// OpenLevelDBMemory opens a registry backed by goleveldb's in-memory storage.
func OpenLevelDBMemory() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open in-memory leveldb: %w", err)
	}
	return newLevelDB(db)
}

func newLevelDB(db *leveldb.DB) (*LevelDB, error) {
	s := &LevelDB{
		db:            db,
		propertyLocks: newKeyedMutex(),
		bookingLocks:  newKeyedMutex(),
	}
	raw, err := db.Get([]byte(nextIDKey), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("load booking id counter: %w", err)
	default:
		s.nextID = binary.BigEndian.Uint64(raw)
	}
	return s, nil
}

func (s *LevelDB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *LevelDB) Create(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	unlock := s.propertyLocks.Lock(string(b.PropertyID))
	defer unlock()

	open, err := s.scan(ctx, indexPrefix(openKeyPrefix, string(b.PropertyID)))
	if err != nil {
		return nil, err
	}
	if overlapsAny(open, b) {
		return nil, ErrOverlap
	}

	s.idMu.Lock()
	defer s.idMu.Unlock()

	stored := b.Clone()
	stored.ID = id.BookingID(s.nextID + 1)
	batch := new(leveldb.Batch)
	if err := putBooking(batch, stored); err != nil {
		return nil, err
	}
	batch.Put([]byte(nextIDKey), encodeUint64(uint64(stored.ID)))
	batch.Put(indexKey(tenantKeyPrefix, string(stored.TenantID), stored.ID), nil)
	batch.Put(indexKey(propertyKeyPrefix, string(stored.PropertyID), stored.ID), nil)
	batch.Put(indexKey(openKeyPrefix, string(stored.PropertyID), stored.ID), nil)
	batch.Put(indexKey(statusKeyPrefix, string(stored.Status), stored.ID), nil)
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("write booking: %w", err)
	}
	s.nextID = uint64(stored.ID)
	return stored, nil
}

func (s *LevelDB) Get(_ context.Context, bookingID id.BookingID) (*models.Booking, error) {
	return s.load(bookingID)
}

func (s *LevelDB) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Booking, error) {
	return s.scan(ctx, indexPrefix(tenantKeyPrefix, string(tenantID)))
}

func (s *LevelDB) ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Booking, error) {
	return s.scan(ctx, indexPrefix(propertyKeyPrefix, string(propertyID)))
}

func (s *LevelDB) ListByStatus(ctx context.Context, status models.Status) ([]*models.Booking, error) {
	return s.scan(ctx, indexPrefix(statusKeyPrefix, string(status)))
}

func (s *LevelDB) Update(_ context.Context, bookingID id.BookingID, fn UpdateFunc) (*models.Booking, error) {
	unlock := s.bookingLocks.Lock(bookingID.String())
	defer unlock()

	current, err := s.load(bookingID)
	if err != nil {
		return nil, err
	}
	next, err := applyUpdate(current, fn)
	if err != nil {
		return nil, err
	}

	batch := new(leveldb.Batch)
	if err := putBooking(batch, next); err != nil {
		return nil, err
	}
	if next.Status != current.Status {
		batch.Delete(indexKey(statusKeyPrefix, string(current.Status), bookingID))
		batch.Put(indexKey(statusKeyPrefix, string(next.Status), bookingID), nil)
		if !holdsDates(next) {
			batch.Delete(indexKey(openKeyPrefix, string(next.PropertyID), bookingID))
		}
	}
	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("write booking %s: %w", bookingID, err)
	}
	return next, nil
}

func (s *LevelDB) load(bookingID id.BookingID) (*models.Booking, error) {
	raw, err := s.db.Get(bookingKey(bookingID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, notFound(bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	var b models.Booking
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", bookingID, err)
	}
	return &b, nil
}

// scan loads every booking referenced by an index prefix, in id order.
func (s *LevelDB) scan(ctx context.Context, prefix []byte) ([]*models.Booking, error) {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []*models.Booking
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := iter.Key()
		bookingID := id.BookingID(binary.BigEndian.Uint64(key[len(key)-8:]))
		b, err := s.load(bookingID)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate %q: %w", prefix, err)
	}
	return out, nil
}

func putBooking(batch *leveldb.Batch, b *models.Booking) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode booking %s: %w", b.ID, err)
	}
	batch.Put(bookingKey(b.ID), raw)
	return nil
}

func bookingKey(bookingID id.BookingID) []byte {
	return append([]byte(bookingKeyPrefix), encodeUint64(uint64(bookingID))...)
}

func indexPrefix(prefix, value string) []byte {
	key := make([]byte, 0, len(prefix)+len(value)+1)
	key = append(key, prefix...)
	key = append(key, value...)
	return append(key, 0)
}

func indexKey(prefix, value string, bookingID id.BookingID) []byte {
	return append(indexPrefix(prefix, value), encodeUint64(uint64(bookingID))...)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
