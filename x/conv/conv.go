// Package conv formats integers into caller-owned buffers. It avoids fmt and
// strconv so MCU builds stay small and allocation-free on hot paths.
package conv

// AppendUint appends the base-10 form of n to dst.
func AppendUint(dst []byte, n uint64) []byte {
	var tmp [20]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return append(dst, tmp[i:]...)
}

// AppendInt appends the base-10 form of n to dst, with a leading '-' when negative.
func AppendInt(dst []byte, n int64) []byte {
	if n < 0 {
		dst = append(dst, '-')
		// Two's complement negation is exact for MinInt64 once widened.
		return AppendUint(dst, uint64(-(n+1))+1)
	}
	return AppendUint(dst, uint64(n))
}

// AppendList appends vals in base 10 separated by sep.
func AppendList(dst []byte, vals []uint16, sep byte) []byte {
	for i, v := range vals {
		if i > 0 {
			dst = append(dst, sep)
		}
		dst = AppendUint(dst, uint64(v))
	}
	return dst
}
