package stubcache

import "math/bits"

const hashSeed uint32 = 5381

// hashBlob folds every byte with a rotate and xor.
func hashBlob(b []byte) uint32 {
	h := hashSeed
	for _, c := range b {
		h = bits.RotateLeft32(h, 5) ^ uint32(c)
	}
	return h
}
