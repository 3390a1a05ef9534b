package scheduler

import "sync"

// ticketLock is a FIFO mutex. A ticket is taken with reserve, which never
// blocks, so the order of reservation fixes the order of entry no matter
// when the holder later calls wait.
type ticketLock struct {
	mu      sync.Mutex
	turn    *sync.Cond
	next    uint64
	serving uint64
}

func newTicketLock() *ticketLock {
	lock := &ticketLock{}
	lock.turn = sync.NewCond(&lock.mu)
	return lock
}

func (lock *ticketLock) reserve() uint64 {
	lock.mu.Lock()
	defer lock.mu.Unlock()
	ticket := lock.next
	lock.next++
	return ticket
}

func (lock *ticketLock) wait(ticket uint64) {
	lock.mu.Lock()
	defer lock.mu.Unlock()
	for lock.serving != ticket {
		lock.turn.Wait()
	}
}

func (lock *ticketLock) release() {
	lock.mu.Lock()
	defer lock.mu.Unlock()
	lock.serving++
	lock.turn.Broadcast()
}

// acquire reserves and waits in one step.
func (lock *ticketLock) acquire() {
	lock.wait(lock.reserve())
}
