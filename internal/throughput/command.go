package throughput

import "sync/atomic"

// Control opcodes written to the control characteristic
const (
	OpSetStreaming byte = 0x01
)

// Streaming values for OpSetStreaming
const (
	StreamingOff byte = 0x00
	StreamingOn  byte = 0x01
)

// CommandProcessor parses control writes into the streaming flag.
// Unknown opcodes and short writes are accepted and ignored: the control
// characteristic is write-without-response, so there is no way to reject them.
type CommandProcessor struct {
	streaming atomic.Bool
}

// HandleWrite applies a control write and returns the number of bytes consumed,
// which is always len(data). The second result reports whether the write carried a
// recognized command.
func (p *CommandProcessor) HandleWrite(data []byte) (int, bool) {
	if len(data) < 2 {
		return len(data), false
	}

	switch data[0] {
	case OpSetStreaming:
		p.streaming.Store(data[1] == StreamingOn)
		return len(data), true
	default:
		return len(data), false
	}
}

// Streaming reports whether the peer asked for streaming
func (p *CommandProcessor) Streaming() bool {
	return p.streaming.Load()
}

// Reset clears the streaming flag
func (p *CommandProcessor) Reset() {
	p.streaming.Store(false)
}

// SetStreamingCommand builds the control write that enables or disables streaming
func SetStreamingCommand(enable bool) []byte {
	if enable {
		return []byte{OpSetStreaming, StreamingOn}
	}
	return []byte{OpSetStreaming, StreamingOff}
}
