package plan

import "fmt"

// Metadata keys set by extractors.
const (
	MetaPlanID      = "plan_id"
	MetaExtractedAt = "extracted_at"
	MetaExtractor   = "extractor"
)

// LogicalPlan is a plan tree together with the SQL it came from. A
// LogicalPlan owns its tree; nodes are never shared between plans.
type LogicalPlan struct {
	Root     *Node
	SQL      string
	Metadata map[string]string
}

// NewLogicalPlan wraps root.
func NewLogicalPlan(root *Node, sql string) *LogicalPlan {
	return &LogicalPlan{Root: root, SQL: sql, Metadata: map[string]string{}}
}

// Clone returns a deep copy of p.
func (p *LogicalPlan) Clone() *LogicalPlan {
	if p == nil {
		return nil
	}
	c := &LogicalPlan{Root: p.Root.Clone(), SQL: p.SQL}
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Validate checks the tree of p.
func (p *LogicalPlan) Validate() error {
	if p == nil || p.Root == nil {
		return fmt.Errorf("plan has no root")
	}
	return p.Root.Validate()
}

// Equal compares only the trees; SQL text and metadata are ignored.
func (p *LogicalPlan) Equal(other *LogicalPlan) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Root.Equal(other.Root)
}

func (p *LogicalPlan) String() string {
	if p == nil {
		return "<nil>"
	}
	return p.Root.Pretty()
}
