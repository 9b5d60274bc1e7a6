package envelope

import "time"

// InvalidationReady waits for c's invalidation subscriber to be listening.
func InvalidationReady(c *Cache, d time.Duration) bool {
	if c.inv == nil {
		return false
	}
	return c.inv.waitReady(d)
}
