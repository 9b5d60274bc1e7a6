package store

// Match reports whether key matches a Redis KEYS-style glob pattern:
//
//	*      any run of bytes, including none
//	?      exactly one byte
//	[abc]  one byte from the set; [^abc] negates, [a-z] is a range
//	\x     the literal byte x
//
// A malformed class (no closing bracket) matches its bytes literally.
func Match(pattern, key string) bool {
	p, k := 0, 0
	// Backtrack point for the most recent star.
	starP, starK := -1, 0
	for k < len(key) {
		if p < len(pattern) {
			switch pattern[p] {
			case '*':
				starP, starK = p, k
				p++
				continue
			case '?':
				p++
				k++
				continue
			case '[':
				if end, ok := matchClass(pattern, p, key[k]); end > 0 {
					if ok {
						p = end
						k++
						continue
					}
				} else if key[k] == '[' {
					p++
					k++
					continue
				}
			case '\\':
				if p+1 < len(pattern) {
					if pattern[p+1] == key[k] {
						p += 2
						k++
						continue
					}
				} else if key[k] == '\\' {
					p++
					k++
					continue
				}
			default:
				if pattern[p] == key[k] {
					p++
					k++
					continue
				}
			}
		}
		if starP < 0 {
			return false
		}
		p = starP + 1
		starK++
		k = starK
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// matchClass evaluates the bracket class starting at pattern[start] against c.
// It returns the index just past the closing bracket, or 0 when the class is
// unterminated.
func matchClass(pattern string, start int, c byte) (int, bool) {
	i := start + 1
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}
	matched := false
	first := true
	for i < len(pattern) {
		if pattern[i] == ']' && !first {
			if negate {
				matched = !matched
			}
			return i + 1, matched
		}
		first = false
		lo := pattern[i]
		if lo == '\\' && i+1 < len(pattern) {
			i++
			lo = pattern[i]
		}
		hi := lo
		if i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']' {
			hi = pattern[i+2]
			i += 2
			if lo > hi {
				lo, hi = hi, lo
			}
		}
		if c >= lo && c <= hi {
			matched = true
		}
		i++
	}
	return 0, false
}

// LiteralPrefix returns the part of pattern before its first meta character.
// Backends use it to bound range scans.
func LiteralPrefix(pattern string) string {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?', '[', '\\':
			return pattern[:i]
		}
	}
	return pattern
}
