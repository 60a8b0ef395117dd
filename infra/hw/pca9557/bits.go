package pca9557

// WriteBit returns b with bit set or cleared. All other bits are unchanged.
func WriteBit(b byte, bit int, set bool) byte {
	if set {
		return b | 1<<uint(bit)
	}
	return b &^ (1 << uint(bit))
}
