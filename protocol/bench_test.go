package protocol

import (
	"bytes"
	"strconv"
	"testing"
)

func BenchmarkParserGet(b *testing.B) {
	p := NewParser(NewKeyScratch(MaxKeyLength), MaxLineLength)
	line := []byte("get some_medium_length_key_123\r\n")

	for b.Loop() {
		for _, c := range line {
			p.Step(c)
		}
	}
}

func BenchmarkEmitter(b *testing.B) {
	for _, size := range []int{16, 1024, 64 * 1024} {
		value := bytes.Repeat([]byte("x"), size)
		buf := make([]byte, 1460)

		b.Run(byteSize(size), func(b *testing.B) {
			for b.Loop() {
				e := NewEmitter(NewValueResponse([]byte("key"), 0, value))
				for !e.Done() {
					e.Fill(buf)
				}
			}
		})
	}
}

func byteSize(n int) string {
	if n >= 1024 {
		return strconv.Itoa(n/1024) + "KB"
	}
	return strconv.Itoa(n) + "B"
}
