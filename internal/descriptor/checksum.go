package descriptor

import (
	"strconv"
	"strings"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// ChecksumLength is the number of characters after '#'.
const ChecksumLength = 8

const (
	inputCharset    = "0123456789()[],'/*abcdefgh@:$%{}IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

func polymod(c uint64, val int) uint64 {
	c0 := c >> 35
	c = ((c & 0x7ffffffff) << 5) ^ uint64(val)
	if c0&1 != 0 {
		c ^= 0xf5dee51989
	}
	if c0&2 != 0 {
		c ^= 0xa9fdca3312
	}
	if c0&4 != 0 {
		c ^= 0x1bab10e32d
	}
	if c0&8 != 0 {
		c ^= 0x3706b1677a
	}
	if c0&16 != 0 {
		c ^= 0x644d626ffd
	}
	return c
}

// Checksum computes the 8 character descriptor checksum of desc, which
// must not already carry one.
func Checksum(desc string) (string, error) {
	c := uint64(1)
	cls, clsCount := 0, 0

	for i, ch := range desc {
		pos := strings.IndexRune(inputCharset, ch)
		if pos < 0 {
			return "", walleterr.WithDetails(walleterr.ErrInvalidDescriptor, map[string]string{
				"position": strconv.Itoa(i),
				"reason":   "character outside descriptor charset",
			})
		}
		c = polymod(c, pos&31)
		cls = cls*3 + (pos >> 5)
		clsCount++
		if clsCount == 3 {
			c = polymod(c, cls)
			cls, clsCount = 0, 0
		}
	}
	if clsCount > 0 {
		c = polymod(c, cls)
	}
	for i := 0; i < ChecksumLength; i++ {
		c = polymod(c, 0)
	}
	c ^= 1

	out := make([]byte, ChecksumLength)
	for j := range out {
		out[j] = checksumCharset[(c>>(5*(7-j)))&31]
	}
	return string(out), nil
}

// AddChecksum returns desc followed by '#' and its checksum.
func AddChecksum(desc string) (string, error) {
	sum, err := Checksum(desc)
	if err != nil {
		return "", err
	}
	return desc + "#" + sum, nil
}

// SplitChecksum separates "body#checksum". When a checksum is present it
// is verified; hasChecksum reports whether one was found.
func SplitChecksum(text string) (body string, hasChecksum bool, err error) {
	body, sum, found := strings.Cut(text, "#")
	if !found {
		return body, false, nil
	}
	want, err := Checksum(body)
	if err != nil {
		return "", true, err
	}
	if sum != want {
		return "", true, walleterr.WithDetails(walleterr.ErrInvalidDescriptor, map[string]string{
			"checksum": sum,
			"reason":   "checksum mismatch",
		})
	}
	return body, true, nil
}
