// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

// BitmaskWords returns the number of uint64 words needed for n bits.
func BitmaskWords(n int) int {
	return (n + 63) >> 6
}

// SetBit sets bit i.
func SetBit(bitmask []uint64, i int) {
	bitmask[i>>6] |= 1 << (i & 63)
}

// ClearBit clears bit i.
func ClearBit(bitmask []uint64, i int) {
	bitmask[i>>6] &^= 1 << (i & 63)
}

// HasBit returns whether bit i is set.
func HasBit(bitmask []uint64, i int) bool {
	return bitmask[i>>6]&(1<<(i&63)) != 0
}

// onesPrefix returns the length of the leading run of ones of bitmask, and whether all
// set bits belong to it (1111000 is a prefix, 1101 is not).
func onesPrefix(bitmask []uint64) (count int, ok bool) {
	ended := false
	for _, word := range bitmask {
		j := 0
		for ; j < 64; j++ {
			if word&(1<<j) == 0 {
				break
			}
			if ended {
				return count, false
			}
		}
		count += j
		if j < 64 {
			ended = true
		}
		for ; j < 64; j++ {
			if word&(1<<j) != 0 {
				return count, false
			}
		}
	}
	return count, true
}

func firstWord(bitmask []uint64) uint64 {
	if len(bitmask) == 0 {
		return 0
	}
	return bitmask[0]
}
