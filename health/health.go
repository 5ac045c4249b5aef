// Package health probes the liveness of the Redis backend behind the cache.
package health

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Status is a point-in-time snapshot of the backend.
type Status struct {
	Connected        bool
	ResponseTime     time.Duration
	ErrorMessage     string
	UsedMemory       int64
	MaxMemory        int64
	ConnectedClients int
	ServerVersion    string
}

// Checker pings the backend and reads its INFO counters.
type Checker struct {
	rdb goredis.UniversalClient
}

func New(client goredis.UniversalClient) *Checker {
	return &Checker{rdb: client}
}

// Check never returns an error: any failure comes back as a disconnected
// Status with the message filled in, so health endpoints can report it
// without special-casing.
func (c *Checker) Check(ctx context.Context) Status {
	if c == nil || c.rdb == nil {
		return down("redis client is not configured")
	}

	start := time.Now()
	pong, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		return down(fmt.Sprintf("error checking redis status: %v", err))
	}
	if !strings.EqualFold(pong, "PONG") {
		return down(fmt.Sprintf("redis is not responding as expected, got %q", pong))
	}

	st := Status{
		Connected:    true,
		ResponseTime: time.Since(start),
	}

	// INFO failures degrade the counters, not the liveness verdict
	info, err := c.rdb.Info(ctx).Result()
	if err != nil {
		return st
	}
	props := parseInfo(info)
	st.UsedMemory = parseInt64(props["used_memory"])
	st.MaxMemory = parseInt64(props["maxmemory"])
	st.ConnectedClients = int(parseInt64(props["connected_clients"]))
	st.ServerVersion = props["redis_version"]
	return st
}

func down(message string) Status {
	return Status{ErrorMessage: message}
}

// parseInfo splits the INFO reply into key/value pairs, skipping section
// headers and blank lines.
func parseInfo(info string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func parseInt64(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
