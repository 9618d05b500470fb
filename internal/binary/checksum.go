package binary

import "encoding/binary"

// Lookup3 computes Bob Jenkins' lookup3 hashlittle with a zero seed. Every
// metadata record in a container ends with this checksum.
func Lookup3(data []byte) uint32 {
	a := uint32(0xdeadbeef) + uint32(len(data))
	b, c := a, a
	k := data

	for len(k) > 12 {
		a += binary.LittleEndian.Uint32(k[0:])
		b += binary.LittleEndian.Uint32(k[4:])
		c += binary.LittleEndian.Uint32(k[8:])
		a, b, c = mix(a, b, c)
		k = k[12:]
	}
	if len(k) == 0 {
		return c
	}

	var tail [12]byte
	copy(tail[:], k)
	a += binary.LittleEndian.Uint32(tail[0:])
	b += binary.LittleEndian.Uint32(tail[4:])
	c += binary.LittleEndian.Uint32(tail[8:])
	_, _, c = final(a, b, c)
	return c
}

// AppendChecksum appends the little-endian lookup3 checksum of data.
func AppendChecksum(data []byte) []byte {
	return binary.LittleEndian.AppendUint32(data, Lookup3(data))
}

// VerifyChecksum splits a record produced by AppendChecksum and reports
// whether the trailing checksum matches.
func VerifyChecksum(record []byte) ([]byte, bool) {
	if len(record) < 4 {
		return nil, false
	}
	body := record[:len(record)-4]
	return body, binary.LittleEndian.Uint32(record[len(body):]) == Lookup3(body)
}

func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= rotl(c, 4)
	c += b
	b -= a
	b ^= rotl(a, 6)
	a += c
	c -= b
	c ^= rotl(b, 8)
	b += a
	a -= c
	a ^= rotl(c, 16)
	c += b
	b -= a
	b ^= rotl(a, 19)
	a += c
	c -= b
	c ^= rotl(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) (uint32, uint32, uint32) {
	c ^= b
	c -= rotl(b, 14)
	a ^= c
	a -= rotl(c, 11)
	b ^= a
	b -= rotl(a, 25)
	c ^= b
	c -= rotl(b, 16)
	a ^= c
	a -= rotl(c, 4)
	b ^= a
	b -= rotl(a, 14)
	c ^= b
	c -= rotl(b, 24)
	return a, b, c
}

func rotl(x uint32, k uint) uint32 {
	return (x << k) | (x >> (32 - k))
}
