package mock

import (
	"strconv"
	"sync"

	"github.com/GoAethereal/melsec"
)

// Store is a trivial in-memory word/bit backing store for a mock server,
// keyed by device symbol and address. It exists so integration tests don't
// each need to hand-write a Mux.
type Store struct {
	mu    sync.Mutex
	words map[string]uint16
	bits  map[string]bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{words: make(map[string]uint16), bits: make(map[string]bool)}
}

func wordKey(dev melsec.Device, addr uint32) string {
	return dev.Symbol + "#" + strconv.FormatUint(uint64(addr), 10)
}

// SetWord seeds one word, useful for test fixtures.
func (s *Store) SetWord(dev melsec.Device, addr uint32, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words[wordKey(dev, addr)] = value
}

// SetBit seeds one bit.
func (s *Store) SetBit(dev melsec.Device, addr uint32, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bits[wordKey(dev, addr)] = value
}

// Mux returns a Mux backed by this store, implementing read_words,
// write_words, read_bits, write_bits, and an identity echo.
func (s *Store) Mux() *Mux {
	return &Mux{
		ReadWords: func(dev melsec.Device, addr uint32, count int) ([]uint16, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			out := make([]uint16, count)
			for i := 0; i < count; i++ {
				out[i] = s.words[wordKey(dev, addr+uint32(i))]
			}
			return out, nil
		},
		WriteWords: func(dev melsec.Device, addr uint32, words []uint16) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, w := range words {
				s.words[wordKey(dev, addr+uint32(i))] = w
			}
			return nil
		},
		ReadBits: func(dev melsec.Device, addr uint32, count int) ([]bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			out := make([]bool, count)
			for i := 0; i < count; i++ {
				out[i] = s.bits[wordKey(dev, addr+uint32(i))]
			}
			return out, nil
		},
		WriteBits: func(dev melsec.Device, addr uint32, bits []bool) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, b := range bits {
				s.bits[wordKey(dev, addr+uint32(i))] = b
			}
			return nil
		},
		Echo: func(payload []byte) ([]byte, error) {
			return payload, nil
		},
	}
}
