package query

import (
	"strconv"
	"strings"

	"github.com/nimbusdb/nimbusdb/pkg/nimbuserr"
	"github.com/nimbusdb/nimbusdb/pkg/nimbustype"
	"github.com/nimbusdb/nimbusdb/pkg/operators"
)

// defaultLimit matches original_source's LimitClause default of 100 rows
// when a query carries no LIMIT clause.
const defaultLimit = 100

type parser struct {
	lex  *lexer
	cur  token
}

// Parse compiles sql into a Query (§4.11's "parsed query" input), the entry
// point run_query calls before planning.
func Parse(sql string) (*Query, error) {
	p := &parser{lex: newLexer(sql)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseSelect()
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) atKeyword(kw string) bool {
	return p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, kw)
}

func (p *parser) atPunct(s string) bool { return p.cur.kind == tokPunct && p.cur.text == s }

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return nimbuserr.New(nimbuserr.SyntaxError, "expected %q, got %q", s, p.cur.text)
	}
	return p.advance()
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return nimbuserr.New(nimbuserr.SyntaxError, "expected keyword %q, got %q", kw, p.cur.text)
	}
	return p.advance()
}

func (p *parser) parseSelect() (*Query, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	q := &Query{Filter: ConstExpr(nimbustype.IntValue(1)), Limit: defaultLimit}

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	q.Select = items

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if p.cur.kind != tokIdent {
		return nil, nimbuserr.New(nimbuserr.SyntaxError, "expected table name, got %q", p.cur.text)
	}
	q.Table = p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.atKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		filter, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		q.Filter = filter
	}

	if p.atKeyword("GROUP") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			if p.cur.kind != tokIdent {
				return nil, nimbuserr.New(nimbuserr.SyntaxError, "expected column name in GROUP BY, got %q", p.cur.text)
			}
			q.GroupBy = append(q.GroupBy, ColumnExpr(p.cur.text))
			if err := p.advance(); err != nil {
				return nil, err
			}
			if !p.atPunct(",") {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.atKeyword("ORDER") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if p.cur.kind != tokIdent {
			return nil, nimbuserr.New(nimbuserr.SyntaxError, "expected column name in ORDER BY, got %q", p.cur.text)
		}
		ob := &OrderBy{ColName: p.cur.text}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.atKeyword("DESC") {
			ob.Descending = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if p.atKeyword("ASC") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		q.OrderBy = ob
	}

	if p.atKeyword("LIMIT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		q.Limit = n
		if p.atKeyword("OFFSET") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			n, err := p.parseIntLiteral()
			if err != nil {
				return nil, err
			}
			q.Offset = n
		}
	}

	if p.cur.kind != tokEOF {
		return nil, nimbuserr.New(nimbuserr.SyntaxError, "unexpected trailing input at %q", p.cur.text)
	}
	return q, nil
}

func (p *parser) parseIntLiteral() (int, error) {
	if p.cur.kind != tokNumber {
		return 0, nimbuserr.New(nimbuserr.SyntaxError, "expected integer, got %q", p.cur.text)
	}
	n, err := strconv.Atoi(p.cur.text)
	if err != nil {
		return 0, nimbuserr.New(nimbuserr.SyntaxError, "invalid integer %q", p.cur.text)
	}
	return n, p.advance()
}

func (p *parser) parseSelectList() ([]Expr, error) {
	var items []Expr
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.atPunct(",") {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// aggregatorKeyword maps a function-call identifier to the Aggregator it
// names, or ok=false if ident is not an aggregate keyword.
func aggregatorKeyword(ident string) (Aggregator, bool) {
	switch strings.ToUpper(ident) {
	case "SUM":
		return AggSum, true
	case "COUNT":
		return AggCount, true
	case "MAX":
		return AggMax, true
	case "MIN":
		return AggMin, true
	default:
		return 0, false
	}
}

func (p *parser) parseSelectItem() (Expr, error) {
	if p.atPunct("*") {
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		return ColumnExpr("*"), nil
	}
	if p.cur.kind == tokIdent {
		if agg, ok := aggregatorKeyword(p.cur.text); ok && p.peekIsCall() {
			if err := p.advance(); err != nil {
				return Expr{}, err
			}
			if err := p.expectPunct("("); err != nil {
				return Expr{}, err
			}
			var operand Expr
			if p.atPunct("*") {
				operand = ConstExpr(nimbustype.IntValue(1))
				if err := p.advance(); err != nil {
					return Expr{}, err
				}
			} else {
				var err error
				operand, err = p.parseExpr()
				if err != nil {
					return Expr{}, err
				}
			}
			if err := p.expectPunct(")"); err != nil {
				return Expr{}, err
			}
			return AggregateExpr(agg, operand), nil
		}
	}
	return p.parseExpr()
}

// peekIsCall reports whether the token immediately after the current
// identifier is "(" without consuming either; used to decide whether SUM,
// COUNT, MAX, MIN are being used as an aggregate call or (illegally) as a
// bare column reference.
func (p *parser) peekIsCall() bool {
	save := *p.lex
	savedCur := p.cur
	defer func() { *p.lex = save; p.cur = savedCur }()
	tok, err := p.lex.next()
	return err == nil && tok.kind == tokPunct && tok.text == "("
}

// Precedence climbing: OR < AND < comparison/LIKE/IS < additive < multiplicative < unary < primary.

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return Expr{}, err
	}
	for p.atKeyword("OR") {
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return Expr{}, err
		}
		left = BinExpr(operators.OpBoolOr, left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return Expr{}, err
	}
	for p.atKeyword("AND") {
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		right, err := p.parseNot()
		if err != nil {
			return Expr{}, err
		}
		left = BinExpr(operators.OpBoolAnd, left, right)
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.atKeyword("NOT") {
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		operand, err := p.parseNot()
		if err != nil {
			return Expr{}, err
		}
		return Func1Expr(Func1Not, operand), nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return Expr{}, err
	}

	if p.atKeyword("IS") {
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		if p.atKeyword("NOT") {
			if err := p.advance(); err != nil {
				return Expr{}, err
			}
			if err := p.expectKeyword("NULL"); err != nil {
				return Expr{}, err
			}
			return Func1Expr(Func1IsNotNull, left), nil
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return Expr{}, err
		}
		return Func1Expr(Func1IsNull, left), nil
	}

	if p.atKeyword("LIKE") {
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		if p.cur.kind != tokString {
			return Expr{}, nimbuserr.New(nimbuserr.SyntaxError, "expected string pattern after LIKE")
		}
		pattern := p.cur.text
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		return LikeExpr(left, pattern), nil
	}

	if p.atKeyword("REGEXP") {
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		if p.cur.kind != tokString {
			return Expr{}, nimbuserr.New(nimbuserr.SyntaxError, "expected string pattern after REGEXP")
		}
		pattern := p.cur.text
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		return RegexExpr(left, pattern), nil
	}

	if op, ok := comparisonOp(p.cur); ok {
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return Expr{}, err
		}
		return BinExpr(op, left, right), nil
	}
	return left, nil
}

func comparisonOp(t token) (operators.BinOp, bool) {
	if t.kind != tokPunct {
		return 0, false
	}
	switch t.text {
	case "=":
		return operators.OpEquals, true
	case "<>", "!=":
		return operators.OpNotEquals, true
	case "<":
		return operators.OpLess, true
	case "<=":
		return operators.OpLessEq, true
	case ">":
		return operators.OpGreater, true
	case ">=":
		return operators.OpGreaterEq, true
	default:
		return 0, false
	}
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return Expr{}, err
	}
	for p.atPunct("+") || p.atPunct("-") {
		op := operators.OpAdd
		if p.cur.text == "-" {
			op = operators.OpSubtract
		}
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return Expr{}, err
		}
		left = BinExpr(op, left, right)
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return Expr{}, err
	}
	for p.atPunct("*") || p.atPunct("/") || p.atPunct("%") {
		var op operators.BinOp
		switch p.cur.text {
		case "*":
			op = operators.OpMultiply
		case "/":
			op = operators.OpDivide
		case "%":
			op = operators.OpModulo
		}
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return Expr{}, err
		}
		left = BinExpr(op, left, right)
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.atPunct("-") {
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return Expr{}, err
		}
		return Func1Expr(Func1Negate, operand), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	switch {
	case p.atPunct("("):
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Expr{}, err
		}
		return inner, nil

	case p.cur.kind == tokNumber:
		text := p.cur.text
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		if strings.Contains(text, ".") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return Expr{}, nimbuserr.New(nimbuserr.SyntaxError, "invalid float literal %q", text)
			}
			return ConstExpr(nimbustype.FloatValue(f)), nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Expr{}, nimbuserr.New(nimbuserr.SyntaxError, "invalid integer literal %q", text)
		}
		return ConstExpr(nimbustype.IntValue(n)), nil

	case p.cur.kind == tokString:
		text := p.cur.text
		return ConstExpr(nimbustype.StrValue(text)), p.advance()

	case p.atKeyword("NULL"):
		return ConstExpr(nimbustype.NullValue), p.advance()

	case p.atKeyword("TO_YEAR"):
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		if err := p.expectPunct("("); err != nil {
			return Expr{}, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Expr{}, err
		}
		return Func1Expr(Func1ToYear, inner), nil

	case p.atKeyword("LENGTH"):
		if err := p.advance(); err != nil {
			return Expr{}, err
		}
		if err := p.expectPunct("("); err != nil {
			return Expr{}, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return Expr{}, err
		}
		if err := p.expectPunct(")"); err != nil {
			return Expr{}, err
		}
		return Func1Expr(Func1Length, inner), nil

	case p.cur.kind == tokIdent:
		name := p.cur.text
		return ColumnExpr(name), p.advance()

	default:
		return Expr{}, nimbuserr.New(nimbuserr.SyntaxError, "unexpected token %q", p.cur.text)
	}
}
