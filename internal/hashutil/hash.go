// Package hashutil provides the deterministic u64 hashing used for a
// message's sequence tag and a quote's dedup hash. It follows the
// corpus's own preference (internal/data/envelope.go's checksum) for
// stdlib hashing over a third-party hash library.
package hashutil

import "hash/fnv"

// SequenceTag hashes an arbitrary per-message tag string into the u64
// carried by every entry of that message.
func SequenceTag(tag string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	return h.Sum64()
}

// QuoteHash hashes the fields that define "semantically identical" for
// ActiveQuoteTable skip-key suppression: volume, price, minQty, quoteId.
func QuoteHash(price, volume, minQty int64, quoteID string) uint64 {
	h := fnv.New64a()
	var buf [24]byte
	putInt64(buf[0:8], price)
	putInt64(buf[8:16], volume)
	putInt64(buf[16:24], minQty)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(quoteID))
	return h.Sum64()
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}
