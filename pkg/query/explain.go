package query

import (
	"fmt"
	"strings"
)

// Explain renders q's compiled shape as an indented plan tree, the
// run_query(..., explain=true) path of §4.13. Grounded on the
// recursive indent-and-write style of a mem-tree dump rather than a
// cost-based EXPLAIN: this is a parsed-query/operator-shape dump for a
// human to read, not a query optimizer's cost estimate.
func Explain(q *Query, partitionCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query over %q (%d partitions)\n", q.Table, partitionCount)

	if q.HasAggregates() {
		b.WriteString("  HashAggregate\n")
		for _, e := range q.GroupBy {
			fmt.Fprintf(&b, "    group by: %s\n", exprLabel(e))
		}
		for _, e := range q.Select {
			if e.Kind == ExprAggregate {
				fmt.Fprintf(&b, "    aggregate: %s\n", exprLabel(e))
			}
		}
	} else {
		b.WriteString("  Project\n")
		for _, e := range q.Select {
			fmt.Fprintf(&b, "    %s\n", exprLabel(e))
		}
	}

	if q.HasFilter() {
		fmt.Fprintf(&b, "  Filter: %s\n", exprLabel(q.Filter))
	}
	if q.OrderBy != nil {
		dir := "ASC"
		if q.OrderBy.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "  Sort: %s %s\n", q.OrderBy.ColName, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "  Limit: %d offset %d\n", q.Limit, q.Offset)
	}
	return b.String()
}
