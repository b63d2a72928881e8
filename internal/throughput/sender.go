package throughput

// Fragment is a view into a buffer sent as one notification
type Fragment struct {
	Offset int
	Length int
}

// Fragments partitions length bytes into in-order fragments of at most usable bytes
func Fragments(length, usable int) []Fragment {
	if length <= 0 || usable <= 0 {
		return nil
	}
	frags := make([]Fragment, 0, (length+usable-1)/usable)
	for off := 0; off < length; off += usable {
		n := min(usable, length-off)
		frags = append(frags, Fragment{Offset: off, Length: n})
	}
	return frags
}

// FragmentingSender splits buffers at the current MTU and emits the fragments in order
type FragmentingSender struct {
	conns *ConnectionManager
	mtu   *MTUTracker
	stats *Stats
}

// NewFragmentingSender creates a sender gated on conns and sized by mtu
func NewFragmentingSender(conns *ConnectionManager, mtu *MTUTracker, stats *Stats) *FragmentingSender {
	if stats == nil {
		stats = NewStats()
	}
	return &FragmentingSender{conns: conns, mtu: mtu, stats: stats}
}

// Send emits buf over ch. The MTU is read once, so an exchange during the burst
// applies to the next buffer. The first refused fragment aborts the burst and is
// returned as a *SendError; nothing is retried.
func (s *FragmentingSender) Send(buf []byte, ch NotificationChannel) error {
	if s.conns.Active() == nil {
		return ErrNotConnected
	}
	if len(buf) == 0 {
		return nil
	}

	usable := s.mtu.Usable()
	if len(buf) <= usable {
		if err := ch.Notify(buf); err != nil {
			s.stats.sendFailures.Add(1)
			return &SendError{Fragment: 0, Offset: 0, Err: err}
		}
		s.sent(len(buf))
		return nil
	}

	for i, off := 0, 0; off < len(buf); i, off = i+1, off+usable {
		end := min(off+usable, len(buf))
		if err := ch.Notify(buf[off:end]); err != nil {
			s.stats.sendFailures.Add(1)
			return &SendError{Fragment: i, Offset: off, Err: err}
		}
		s.sent(end - off)
	}
	return nil
}

func (s *FragmentingSender) sent(n int) {
	s.stats.fragments.Add(1)
	s.stats.bytes.Add(uint64(n))
}
