package queue

import (
	"errors"
	"sync"
)

var (
	// registry maps job types to their handlers
	registry = make(map[JobType]Handler)
	mu       sync.RWMutex
)

// Register adds a handler for a job type.
func Register(jobType JobType, handler Handler) {
	mu.Lock()
	defer mu.Unlock()
	registry[jobType] = handler
}

// GetHandler retrieves a handler by job type.
func GetHandler(jobType JobType) (Handler, error) {
	mu.RLock()
	defer mu.RUnlock()
	if handler, ok := registry[jobType]; ok {
		return handler, nil
	}
	return nil, errors.New("handler not found: " + string(jobType))
}
