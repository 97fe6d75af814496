package pebble

const (
	// reputation keys
	reputationEntryKey = byte(1)

	// reserved for future schemas
	metadataKey = byte(100)
)

func makePrefix(code byte, key []byte) []byte {
	prefixed := make([]byte, 0, 1+len(key))
	prefixed = append(prefixed, code)
	return append(prefixed, key...)
}
