package utils

import "sync"

// LoopMode runs the background goroutines of a component.
// The owner calls StartWorking() in its setup function and Stop() in its close function.
// Each long-term running goroutine is counted by Add() before it is started and should work like:
/*
	defer lm.Done()
	for {
		select {
		case <-lm.D:
			return
		// case :...other goroutine logic
		}
	}
*/
type LoopMode struct {
	mu        sync.Mutex
	working   bool
	waitGroup sync.WaitGroup
	D         chan struct{}
}

func NewLoop() *LoopMode {
	return &LoopMode{
		D: make(chan struct{}),
	}
}

func (l *LoopMode) StartWorking() {
	l.mu.Lock()
	l.working = true
	l.mu.Unlock()
}

// Stop closes D and waits the goroutines to return. If it's not working, return false.
// A stopped LoopMode can not be started again.
func (l *LoopMode) Stop() bool {
	l.mu.Lock()
	if !l.working {
		l.mu.Unlock()
		return false
	}
	l.working = false
	close(l.D)
	l.mu.Unlock()

	l.waitGroup.Wait()
	return true
}

func (l *LoopMode) Add() {
	l.waitGroup.Add(1)
}

func (l *LoopMode) Done() {
	l.waitGroup.Done()
}

func (l *LoopMode) IsWorking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.working
}
