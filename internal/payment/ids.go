package payment

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

const generatedOrderPrefix = "ORD-"

type OrderIDGenerator interface {
	NextOrderID() string
}

// SnowflakeOrderIDs issues time-ordered ids unique across instances as long
// as every instance runs with its own node number.
type SnowflakeOrderIDs struct {
	node *snowflake.Node
}

func NewSnowflakeOrderIDs(nodeID int64) (*SnowflakeOrderIDs, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeOrderIDs{node: node}, nil
}

func (g *SnowflakeOrderIDs) NextOrderID() string {
	return generatedOrderPrefix + g.node.Generate().String()
}
