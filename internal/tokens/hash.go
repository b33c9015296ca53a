package tokens

// HashFunc derives a token from a string.
type HashFunc func(s string) uint32

const hashConstant = 65599

// Hash65599 is the pw_tokenizer string hash. It covers the UTF-8 bytes of s
// up to maxLen bytes; maxLen <= 0 hashes all of s. The full length of s is
// always mixed in, so truncated strings of different lengths still differ.
func Hash65599(s string, maxLen int) uint32 {
	n := len(s)
	if maxLen > 0 && maxLen < n {
		n = maxLen
	}
	hash := uint32(len(s))
	coefficient := uint32(hashConstant)
	for i := range n {
		hash += coefficient * uint32(s[i])
		coefficient *= hashConstant
	}
	return hash
}

// DefaultHash hashes the whole string with Hash65599.
func DefaultHash(s string) uint32 {
	return Hash65599(s, 0)
}
