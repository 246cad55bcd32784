package testutil

import (
	"context"
	"testing"

	"github.com/dshills/planproof/internal/extract"
	"github.com/dshills/planproof/internal/plan"
)

// Queries is a corpus of SELECT statements that between them produce every
// plan node kind.
var Queries = []string{
	"SELECT a.x FROM t1 a WHERE a.x > 5",
	"SELECT c.name, COUNT(*) AS n FROM customers c JOIN orders o ON c.id = o.customer_id " +
		"WHERE o.total > 100 GROUP BY c.name HAVING COUNT(*) > 2 ORDER BY n DESC LIMIT 10",
	"SELECT a.x FROM t1 a, t2 b, t3 c WHERE a.id = b.id AND b.id = c.id AND c.flag = 1",
	"SELECT u.id FROM users u LEFT JOIN orders o ON u.id = o.uid AND o.total > 5 WHERE u.active = TRUE",
	"SELECT c.id FROM customers c WHERE EXISTS (SELECT 1 FROM orders o WHERE o.cid = c.id)",
	"SELECT x FROM t WHERE x IN (SELECT y FROM u WHERE u.z > 0)",
	"SELECT x FROM t WHERE x > (SELECT AVG(y) FROM u)",
	"SELECT x FROM t UNION SELECT x FROM u EXCEPT SELECT x FROM v",
	"WITH big AS (SELECT id, total FROM orders WHERE total > 100) SELECT b.id FROM big b ORDER BY b.total",
	"SELECT CASE WHEN x > 1 THEN 'big' ELSE 'small' END AS size FROM t WHERE NOT (x < 0)",
	"SELECT DISTINCT x FROM t WHERE x BETWEEN 1 AND 10 OR x IN (20, 30)",
	"SELECT x::int, COUNT(DISTINCT y) FROM t GROUP BY x",
	"SELECT COUNT(*) FROM t WHERE x NOT IN (SELECT y FROM u)",
	"SELECT * FROM generate_series(1, 10) g",
	"SELECT s.id FROM (SELECT id FROM t LIMIT 5 OFFSET 2) s",
}

// Pair is two queries known to be equivalent in strict mode.
type Pair struct {
	Name string
	A, B string
}

// EquivalentPairs lists rewrites the built-in rules prove equivalent.
var EquivalentPairs = []Pair{
	{"join order", "SELECT a.x FROM t1 a JOIN t2 b ON a.id = b.id", "SELECT a.x FROM t2 b JOIN t1 a ON a.id = b.id"},
	{"comma join", "SELECT a.x FROM t1 a, t2 b WHERE a.id = b.id", "SELECT a.x FROM t1 a INNER JOIN t2 b ON b.id = a.id"},
	{"in list", "SELECT x FROM t WHERE x IN (1, 2)", "SELECT x FROM t WHERE x = 2 OR x = 1"},
	{"conjunct order", "SELECT x FROM t WHERE x > 1 AND y < 2", "SELECT x FROM t WHERE y < 2 AND x > 1"},
	{"merged filters", "SELECT s.x FROM (SELECT x, y FROM t WHERE x > 1) s WHERE s.y < 2", "SELECT s.x FROM (SELECT x, y FROM t WHERE x > 1) s WHERE s.y < 2 AND TRUE"},
}

// MustExtract extracts sql or fails the test.
func MustExtract(t *testing.T, sql string) *plan.LogicalPlan {
	t.Helper()
	p, err := extract.New().Extract(context.Background(), sql)
	if err != nil {
		t.Fatalf("extract %q: %v", sql, err)
	}
	return p
}
