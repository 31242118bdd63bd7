package crawler

import "github.com/996BC/btccrawler/p2p/peer"

// frontier holds the addresses discovered but not dispatched (pending, FIFO)
// and the ones already dispatched (visited). pending and visited never intersect.
// It is owned by the crawl loop and not safe for concurrent use.
type frontier struct {
	queue   []peer.Address
	pending map[peer.Address]struct{}
	visited map[peer.Address]struct{}
}

func newFrontier() *frontier {
	return &frontier{
		pending: make(map[peer.Address]struct{}),
		visited: make(map[peer.Address]struct{}),
	}
}

// add inserts addr into pending, it returns false if addr is already known
func (f *frontier) add(addr peer.Address) bool {
	if f.known(addr) {
		return false
	}
	f.pending[addr] = struct{}{}
	f.queue = append(f.queue, addr)
	return true
}

func (f *frontier) known(addr peer.Address) bool {
	if _, ok := f.pending[addr]; ok {
		return true
	}
	_, ok := f.visited[addr]
	return ok
}

// draw moves up to n addresses from pending into visited and returns them
func (f *frontier) draw(n int) []peer.Address {
	if n > len(f.queue) {
		n = len(f.queue)
	}
	batch := make([]peer.Address, n)
	copy(batch, f.queue[:n])
	f.queue = f.queue[n:]

	for _, addr := range batch {
		delete(f.pending, addr)
		f.visited[addr] = struct{}{}
	}
	return batch
}

func (f *frontier) pendingLen() int {
	return len(f.queue)
}

func (f *frontier) visitedLen() int {
	return len(f.visited)
}

// discovered is the number of distinct addresses ever seen
func (f *frontier) discovered() int {
	return len(f.pending) + len(f.visited)
}
