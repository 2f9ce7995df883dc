// Package cache holds tenant-scoped copies of segment reads. Both backends
// satisfy segment.Cache; Redis is used when several processes share one
// repository, memory otherwise.
package cache

import (
	"fmt"
	"time"
)

// DefaultTTL bounds how stale a cached list can get when another client
// mutates the repository.
const DefaultTTL = 5 * time.Minute

func listKey(tenantID int64) string {
	return fmt.Sprintf("segments:%d:list", tenantID)
}

func segmentKey(tenantID, id int64) string {
	return fmt.Sprintf("segments:%d:%d", tenantID, id)
}

// genKey holds the tenant's invalidation counter. It has no TTL.
func genKey(tenantID int64) string {
	return fmt.Sprintf("segments:%d:gen", tenantID)
}
