package throughput

import "sync/atomic"

// Client Characteristic Configuration bits
const (
	CCCNotify   uint16 = 0x0001
	CCCIndicate uint16 = 0x0002
)

// SubscriptionTracker holds whether the peer enabled notifications on the data characteristic
type SubscriptionTracker struct {
	enabled atomic.Bool
}

// OnSubscriptionChange records the peer's last subscription write
func (s *SubscriptionTracker) OnSubscriptionChange(requestedNotify bool) {
	s.enabled.Store(requestedNotify)
}

// OnDescriptorWrite maps a raw CCC value. Indication is not supported and counts as unsubscribed.
func (s *SubscriptionTracker) OnDescriptorWrite(value uint16) {
	s.OnSubscriptionChange(value&CCCNotify != 0)
}

// Enabled reports whether notifications are enabled
func (s *SubscriptionTracker) Enabled() bool {
	return s.enabled.Load()
}
