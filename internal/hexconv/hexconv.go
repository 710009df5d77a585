package hexconv

// Halfbyte maps an ASCII hex digit to its value. Any other byte maps to
// 0xFF, so validity of a pair can be checked with a single a|b > 0x0f test.
var Halfbyte = func() (table [256]byte) {
	for i := range table {
		table[i] = 0xFF
	}
	for c := byte('0'); c <= '9'; c++ {
		table[c] = c - '0'
	}
	for c := byte('a'); c <= 'f'; c++ {
		table[c] = c - 'a' + 10
	}
	for c := byte('A'); c <= 'F'; c++ {
		table[c] = c - 'A' + 10
	}

	return table
}()
