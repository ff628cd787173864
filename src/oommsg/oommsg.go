package oommsg

/// OomCh is notified when the system runs out of memory.
var OomCh chan Oommsg_t = make(chan Oommsg_t)

/// Oommsg_t is sent on OomCh when memory is exhausted.
type Oommsg_t struct {
	Need   int
	Resume chan bool
}

/// Notify publishes an out-of-memory event for need bytes and waits for an
/// acknowledgement before returning, giving a reclaimer (if any is
/// listening on OomCh) a chance to free frames. If nothing is listening,
/// it returns immediately.
func Notify(need int) {
	msg := Oommsg_t{Need: need, Resume: make(chan bool)}
	select {
	case OomCh <- msg:
		<-msg.Resume
	default:
	}
}
