package utils

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// 业务编号前缀
const (
	PrefixWithdrawal = "W"
	PrefixSettlement = "S"
	PrefixOrder      = "O"
)

// IDGenerator 基于 snowflake 的业务编号生成器
type IDGenerator struct {
	node *snowflake.Node
}

var (
	defaultGenerator *IDGenerator
	generatorOnce    sync.Once
)

// NewIDGenerator 创建编号生成器，nodeID 取值 0-1023
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// InitIDGenerator 初始化全局编号生成器
func InitIDGenerator(nodeID int64) error {
	g, err := NewIDGenerator(nodeID)
	if err != nil {
		return err
	}
	defaultGenerator = g
	return nil
}

// DefaultIDGenerator 获取全局编号生成器，未初始化时使用节点 0
func DefaultIDGenerator() *IDGenerator {
	generatorOnce.Do(func() {
		if defaultGenerator == nil {
			defaultGenerator, _ = NewIDGenerator(0)
		}
	})
	return defaultGenerator
}

// Next 生成带前缀的编号
func (g *IDGenerator) Next(prefix string) string {
	return prefix + g.node.Generate().String()
}
