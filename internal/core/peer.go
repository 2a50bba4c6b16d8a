package core

// Frame is one encoded outbound message.
type Frame []byte

// Peer abstracts one attached connection.
// Owned by the adapter; the adapter must Close() it.
type Peer interface {
	ID() string
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the dispatcher.
type PublishResult struct {
	SentTo  int
	Dropped []Peer
}

// Broadcast delivers f to every peer. It never holds a session lock;
// callers capture peers under the lock and fan out afterwards.
func Broadcast(peers []Peer, f Frame) PublishResult {
	res := PublishResult{}
	for _, p := range peers {
		if err := p.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, p)
			continue
		}
		res.SentTo++
	}
	return res
}
