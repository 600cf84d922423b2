package node

import "github.com/cogu/apx-go/portmap"

// TriggerList is the server-side fan-out list for one provide port:
// every require port currently bound to it (per the port signature
// map's last-attached-wins rule), notified whenever the provide port's
// data changes. Every provide port of a server-mode instance carries
// one of these.
type TriggerList struct {
	subscribers []portmap.PortRef
}

// Set replaces the subscriber list wholesale.
func (t *TriggerList) Set(subs []portmap.PortRef) { t.subscribers = subs }

// Add appends one more subscriber (used when applying individual
// Connected deltas instead of a full Set).
func (t *TriggerList) Add(ref portmap.PortRef) {
	for _, s := range t.subscribers {
		if s.Equal(ref) {
			return
		}
	}
	t.subscribers = append(t.subscribers, ref)
}

// Remove drops a subscriber, if present.
func (t *TriggerList) Remove(ref portmap.PortRef) {
	for i, s := range t.subscribers {
		if s.Equal(ref) {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			return
		}
	}
}

func (t *TriggerList) Subscribers() []portmap.PortRef {
	return append([]portmap.PortRef(nil), t.subscribers...)
}
