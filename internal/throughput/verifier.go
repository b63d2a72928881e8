package throughput

// DefaultSyncLength is the number of bytes the verifier matches before trusting a counter
const DefaultSyncLength = 16

// VerifierResult summarises a verified stream
type VerifierResult struct {
	Bytes      uint64 `json:"bytes" yaml:"bytes"`           // bytes received
	Verified   uint64 `json:"verified" yaml:"verified"`     // bytes matching the expected pattern
	Mismatches uint64 `json:"mismatches" yaml:"mismatches"` // continuity breaks after sync
	Resyncs    uint64 `json:"resyncs" yaml:"resyncs"`       // syncs after the first one
	Synced     bool   `json:"synced" yaml:"synced"`
}

// OK reports whether the stream synced and never broke continuity
func (r VerifierResult) OK() bool {
	return r.Synced && r.Mismatches == 0
}

// PatternVerifier checks a received byte stream against the notification pattern.
// The receiver does not know the sender's counter, so the verifier first searches
// the counter space for a position matching DefaultSyncLength bytes, then checks
// every following byte. A mismatch drops sync and the search restarts.
//
// A PatternVerifier is not safe for concurrent use.
type PatternVerifier struct {
	syncLen  int
	synced   bool
	everSync bool
	counter  uint32
	pending  []byte
	result   VerifierResult
}

// NewPatternVerifier creates an unsynced verifier
func NewPatternVerifier() *PatternVerifier {
	return &PatternVerifier{syncLen: DefaultSyncLength}
}

// Write feeds received bytes in reception order. It never fails.
func (v *PatternVerifier) Write(p []byte) (int, error) {
	v.result.Bytes += uint64(len(p))
	for i := 0; i < len(p); i++ {
		if v.synced {
			if PatternByte(v.counter) == p[i] {
				v.counter = (v.counter + 1) % PatternModulus
				v.result.Verified++
				continue
			}
			v.synced = false
			v.result.Mismatches++
		}
		v.pending = append(v.pending, p[i])
		v.trySync()
	}
	return len(p), nil
}

// trySync searches for the counter matching the pending window
func (v *PatternVerifier) trySync() {
	for len(v.pending) >= v.syncLen {
		if c, ok := findCounter(v.pending[:v.syncLen]); ok {
			v.counter = (c + uint32(v.syncLen)) % PatternModulus
			v.result.Verified += uint64(v.syncLen)
			v.synced = true
			if v.everSync {
				v.result.Resyncs++
			}
			v.everSync = true
			v.result.Synced = true
			v.pending = v.pending[:0]
			return
		}
		v.pending = v.pending[1:]
	}
}

// findCounter returns the first counter whose pattern starts with window
func findCounter(window []byte) (uint32, bool) {
	for c := uint32(0); c < PatternModulus; c++ {
		match := true
		for i, b := range window {
			if PatternByte(c+uint32(i)) != b {
				match = false
				break
			}
		}
		if match {
			return c, true
		}
	}
	return 0, false
}

// Synced reports whether the verifier is currently locked onto the pattern
func (v *PatternVerifier) Synced() bool {
	return v.synced
}

// Counter returns the next expected counter; meaningful only while synced
func (v *PatternVerifier) Counter() uint32 {
	return v.counter
}

// Result returns the running totals
func (v *PatternVerifier) Result() VerifierResult {
	return v.result
}
