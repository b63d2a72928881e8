package throughput

// PatternModulus bounds the pattern counter. It is a power of two above every bit the
// pattern reads, so wrapping never changes the emitted bytes.
const PatternModulus = 1 << 17

// PatternGenerator produces the deterministic notification payload.
// Even counter values emit bits 1..8 of the counter, odd values emit bits 9..16.
//
// A PatternGenerator is owned by the pump and is not safe for concurrent use.
type PatternGenerator struct {
	counter uint32
}

// NewPatternGenerator creates a generator starting at counter start (taken modulo PatternModulus)
func NewPatternGenerator(start uint32) *PatternGenerator {
	return &PatternGenerator{counter: start % PatternModulus}
}

// PatternByte returns the pattern byte emitted for a counter value
func PatternByte(counter uint32) byte {
	shift := uint32(1)
	if counter&1 != 0 {
		shift = 9
	}
	return byte(counter >> shift)
}

// Counter returns the current counter value
func (g *PatternGenerator) Counter() uint32 {
	return g.counter
}

// NextBuffer returns a new slice of length pattern bytes
func (g *PatternGenerator) NextBuffer(length int) []byte {
	if length <= 0 {
		return []byte{}
	}
	buf := make([]byte, length)
	g.Fill(buf)
	return buf
}

// Fill writes the next len(buf) pattern bytes into buf
func (g *PatternGenerator) Fill(buf []byte) {
	c := g.counter
	for i := range buf {
		buf[i] = PatternByte(c)
		c++
	}
	g.counter = c % PatternModulus
}
