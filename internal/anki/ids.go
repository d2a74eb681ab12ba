package anki

import (
	"sync"
	"time"
)

// newObjectUSN marks rows and catalog objects that have never been synced.
const newObjectUSN = -1

var (
	idMu   sync.Mutex
	lastID int64
)

// nextID returns a millisecond timestamp id, bumped past the previous one so
// ids handed out by this process are strictly increasing.
func nextID() int64 {
	idMu.Lock()
	defer idMu.Unlock()
	id := time.Now().UnixMilli()
	if id <= lastID {
		id = lastID + 1
	}
	lastID = id
	return id
}

func nowSeconds() int64 {
	return time.Now().Unix()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
