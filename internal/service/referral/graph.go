package referral

import (
	"context"
	"strconv"

	appErrors "github.com/dumeirei/referral-ledger/internal/common/errors"
	"github.com/dumeirei/referral-ledger/internal/common/logger"
	"github.com/dumeirei/referral-ledger/internal/models"
	"github.com/dumeirei/referral-ledger/internal/repository"
)

const graphScanBatch = 1000

// 校验项
const (
	FieldParentID    = "parent_id"
	FieldParentPath  = "parent_path"
	FieldLevel       = "level"
	FieldDirectCount = "direct_count"
	FieldTeamCount   = "team_count"
)

// GraphViolation 关系图上的一处不一致
type GraphViolation struct {
	UserID   int64  `json:"user_id"`
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// VerifyGraph 以 parent_id 邻接关系为准重新推导路径、层级与人数并报告偏差
func (s *Service) VerifyGraph(ctx context.Context) ([]GraphViolation, error) {
	nodes := make(map[int64]repository.GraphNode)
	order := make([]int64, 0)
	err := s.userRepo.ListGraphNodes(ctx, graphScanBatch, func(batch []repository.GraphNode) error {
		for _, n := range batch {
			nodes[n.ID] = n
			order = append(order, n.ID)
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.ErrDatabaseError.WithError(err)
	}

	v := &graphVerifier{
		nodes:  nodes,
		paths:  make(map[int64]models.AncestorPath, len(nodes)),
		state:  make(map[int64]uint8, len(nodes)),
		broken: make(map[int64]bool),
	}
	direct := make(map[int64]int64)
	team := make(map[int64]int64)

	for _, id := range order {
		n := nodes[id]
		if n.ParentID != nil {
			if _, ok := nodes[*n.ParentID]; !ok {
				v.report(id, FieldParentID, "existing user", strconv.FormatInt(*n.ParentID, 10))
				continue
			}
			direct[*n.ParentID]++
		}
		path, ok := v.expectedPath(id)
		if !ok {
			continue
		}
		for _, ancestor := range path {
			team[ancestor]++
		}
		if !path.Equal(n.ParentPath) {
			v.report(id, FieldParentPath, path.String(), n.ParentPath.String())
		}
		if n.Level != len(path) {
			v.report(id, FieldLevel, strconv.Itoa(len(path)), strconv.Itoa(n.Level))
		}
	}

	for _, id := range order {
		n := nodes[id]
		if n.DirectCount != direct[id] {
			v.report(id, FieldDirectCount, strconv.FormatInt(direct[id], 10), strconv.FormatInt(n.DirectCount, 10))
		}
		if n.TeamCount != team[id] {
			v.report(id, FieldTeamCount, strconv.FormatInt(team[id], 10), strconv.FormatInt(n.TeamCount, 10))
		}
	}

	if len(v.violations) > 0 {
		logger.Warn("关系图校验发现偏差",
			logger.Module("referral"),
			logger.Int("nodes", len(nodes)),
			logger.Int("violations", len(v.violations)),
		)
	}
	return v.violations, nil
}

const (
	visiting uint8 = iota + 1
	visited
)

type graphVerifier struct {
	nodes      map[int64]repository.GraphNode
	paths      map[int64]models.AncestorPath
	state      map[int64]uint8
	broken     map[int64]bool
	violations []GraphViolation
}

func (v *graphVerifier) report(userID int64, field, expected, actual string) {
	v.violations = append(v.violations, GraphViolation{
		UserID:   userID,
		Field:    field,
		Expected: expected,
		Actual:   actual,
	})
}

// expectedPath 沿 parent_id 回溯得到祖先路径，遇到环或断链返回 false
func (v *graphVerifier) expectedPath(id int64) (models.AncestorPath, bool) {
	// 先回溯到已知节点，再自上而下填充，避免深链递归
	var chain []int64
	cur := id
	for {
		if v.state[cur] == visited {
			if v.broken[cur] {
				v.abandon(chain)
				return nil, false
			}
			break
		}
		if v.state[cur] == visiting {
			v.report(id, FieldParentID, "acyclic", "cycle at "+strconv.FormatInt(cur, 10))
			v.abandon(chain)
			return nil, false
		}
		v.state[cur] = visiting
		chain = append(chain, cur)

		n := v.nodes[cur]
		if n.ParentID == nil {
			break
		}
		if _, ok := v.nodes[*n.ParentID]; !ok {
			v.abandon(chain)
			return nil, false
		}
		cur = *n.ParentID
	}

	for i := len(chain) - 1; i >= 0; i-- {
		nodeID := chain[i]
		n := v.nodes[nodeID]
		if n.ParentID == nil {
			v.paths[nodeID] = models.AncestorPath{}
		} else {
			parentPath := v.paths[*n.ParentID]
			path := make(models.AncestorPath, 0, len(parentPath)+1)
			path = append(path, parentPath...)
			v.paths[nodeID] = append(path, *n.ParentID)
		}
		v.state[nodeID] = visited
	}
	return v.paths[id], true
}

// abandon 链上节点无法推导路径
func (v *graphVerifier) abandon(chain []int64) {
	for _, nodeID := range chain {
		v.state[nodeID] = visited
		v.broken[nodeID] = true
	}
}
