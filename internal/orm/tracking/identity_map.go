package tracking

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

// identityMap resolves primary key values of one entity type hierarchy to
// entries. Hashing and equality use the comparers of the key properties.
type identityMap struct {
	key     *schema.Key
	buckets map[uint64][]*InternalEntityEntry
}

func newIdentityMap(key *schema.Key) *identityMap {
	return &identityMap{
		key:     key,
		buckets: make(map[uint64][]*InternalEntityEntry),
	}
}

func (im *identityMap) hash(values []interface{}) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for i, p := range im.key.Properties() {
		binary.LittleEndian.PutUint64(buf[:], p.Comparer().Hash(values[i]))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func (im *identityMap) equal(a, b []interface{}) bool {
	for i, p := range im.key.Properties() {
		if !p.Comparer().Equals(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (im *identityMap) find(values []interface{}) *InternalEntityEntry {
	for _, e := range im.buckets[im.hash(values)] {
		if im.equal(e.identityKey, values) {
			return e
		}
	}
	return nil
}

// add indexes e under its current key and returns the entry already
// holding that key, if any
func (im *identityMap) add(e *InternalEntityEntry) *InternalEntityEntry {
	values := e.keyValues(im.key.Properties())
	if existing := im.find(values); existing != nil && existing != e {
		return existing
	}
	e.identityKey = values
	h := im.hash(values)
	im.buckets[h] = append(im.buckets[h], e)
	return nil
}

func (im *identityMap) remove(e *InternalEntityEntry) {
	if e.identityKey == nil {
		return
	}
	h := im.hash(e.identityKey)
	bucket := im.buckets[h]
	for i, existing := range bucket {
		if existing == e {
			im.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(im.buckets[h]) == 0 {
		delete(im.buckets, h)
	}
	e.identityKey = nil
}
