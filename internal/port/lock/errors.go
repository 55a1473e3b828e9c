package lock

import "errors"

// ErrExclusivityLost indicates the lock expired and was reclaimed while
// the holder's critical section was still running.
var ErrExclusivityLost = errors.New("lock exclusivity lost before release")
