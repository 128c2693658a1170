package ids

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique, time-ordered KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSessionID generates an opaque identifier for a browser session cookie.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether raw looks like an id issued by NewSessionID.
func ValidSessionID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}

// NewSnowflakeID generates a snowflake ID string using the node from
// SNOWFLAKE_NODE (default 1). If the node cannot be initialized it falls
// back to a KSUID so an ID is always returned.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
			if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
				nodeID = parsed
			}
		}
		node, _ = snowflake.NewNode(nodeID)
	})
	if node == nil {
		return NewKSUID()
	}
	return node.Generate().String()
}
