package message

import "encoding/binary"

// EncodeNonce builds a ping or pong payload
func EncodeNonce(nonce uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, nonce)
	return buf
}

// DecodeNonce returns false on the empty ping of very old peers
func DecodeNonce(payload []byte) (uint64, bool) {
	if len(payload) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(payload), true
}
