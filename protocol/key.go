package protocol

// IsValidKey reports whether key can be sent on a request line.
func IsValidKey(key string) bool {
	if len(key) < MinKeyLength || len(key) > MaxKeyLength {
		return false
	}

	for i := 0; i < len(key); i++ {
		if !isKeyByte(key[i]) {
			return false
		}
	}

	return true
}

func isKeyByte(b byte) bool {
	return b > ' ' && b != 0x7f
}

// KeyScratch is the single bounded key buffer of a connection.
//
// It is allocated once with its full capacity and never grows. The parser
// appends to it while reading a key and resets it when a line completes.
type KeyScratch struct {
	buf []byte
}

// NewKeyScratch returns a scratch area holding at most capacity bytes.
// A capacity <= 0 selects MaxKeyLength.
func NewKeyScratch(capacity int) *KeyScratch {
	if capacity <= 0 {
		capacity = MaxKeyLength
	}
	return &KeyScratch{buf: make([]byte, 0, capacity)}
}

// Append adds b, returning false when the scratch is full.
func (k *KeyScratch) Append(b byte) bool {
	if len(k.buf) == cap(k.buf) {
		return false
	}
	k.buf = append(k.buf, b)
	return true
}

// Bytes returns the current contents. The slice is only valid until the next
// Append or Reset.
func (k *KeyScratch) Bytes() []byte {
	return k.buf
}

func (k *KeyScratch) Len() int {
	return len(k.buf)
}

func (k *KeyScratch) Cap() int {
	return cap(k.buf)
}

func (k *KeyScratch) Reset() {
	k.buf = k.buf[:0]
}
