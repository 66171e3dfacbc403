package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
)

type rwBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *rwBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *rwBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Read(p)
}

func TestFramerRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single byte", []byte{0x42}},
		{"small message", []byte("hello")},
		{"binary data", []byte{0x00, 0xFF, 0x7F, 0x80}},
		{"max size message", bytes.Repeat([]byte("y"), DefaultMaxMessageSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &rwBuffer{}
			f := NewFramer(buf)

			if err := f.WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if got, want := buf.buf.Len(), LengthPrefixSize+len(tt.payload); got != want {
				t.Errorf("frame size = %d, want %d", got, want)
			}

			got, err := f.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
		})
	}
}

func TestFramerWriteErrors(t *testing.T) {
	f := NewFramerWithMaxSize(&rwBuffer{}, 100)

	if err := f.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
	if err := f.WriteFrame(bytes.Repeat([]byte("x"), 101)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestFramerReadErrors(t *testing.T) {
	header := func(n uint32) []byte {
		var b [LengthPrefixSize]byte
		binary.BigEndian.PutUint32(b[:], n)
		return b[:]
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"clean EOF", nil, io.EOF},
		{"short header", []byte{0x00, 0x01}, ErrFrameTruncated},
		{"zero length", header(0), ErrMessageEmpty},
		{"too large", header(DefaultMaxMessageSize + 1), ErrMessageTooLarge},
		{"short payload", append(header(10), 'a', 'b'), ErrFrameTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &rwBuffer{}
			buf.buf.Write(tt.data)

			_, err := NewFramer(buf).ReadFrame()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFramerConcurrentWrites(t *testing.T) {
	buf := &rwBuffer{}
	f := NewFramer(buf)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := f.WriteMessage(&Message{Type: MsgPing, Seq: uint32(i + 1)}); err != nil {
				t.Errorf("WriteMessage failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[uint32]bool)
	for i := 0; i < writers; i++ {
		msg, err := f.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage %d failed: %v", i, err)
		}
		seen[msg.Seq] = true
	}
	if len(seen) != writers {
		t.Errorf("decoded %d distinct frames, want %d", len(seen), writers)
	}
}
