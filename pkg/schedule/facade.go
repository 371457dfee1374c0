package schedule

import (
	"sync"
)

var (
	globalKernel *Kernel
	once         sync.Once
)

// SetGlobalKernel replaces the process-wide kernel, for embedders that build
// their own with a lock provider already attached.
func SetGlobalKernel(k *Kernel) {
	globalKernel = k
}

// GetGlobalKernel returns the process-wide kernel, creating a lockless one on
// first use.
func GetGlobalKernel() *Kernel {
	once.Do(func() {
		if globalKernel == nil {
			globalKernel = NewKernel(nil)
		}
	})
	return globalKernel
}

// Register adds a task to the process-wide scheduler.
func Register(schedule string, cmd func(), opts ...JobOption) {
	GetGlobalKernel().Register(schedule, cmd, opts...)
}
