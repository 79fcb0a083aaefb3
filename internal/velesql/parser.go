package velesql

import (
	"fmt"
	"strconv"
	"strings"
)

var scoreVarNames = map[string]bool{
	"vector_score": true,
	"graph_score":  true,
	"bm25_score":   true,
	"fused_score":  true,
}

// Parser is a recursive-descent parser over a pre-tokenized buffer; no
// backtracking is needed because the grammar is LL(1) once keywords are
// reserved.
type Parser struct {
	tokens []Token
	pos    int
}

// Parse parses one statement, which may itself be a UNION/INTERSECT/EXCEPT
// chain of SELECTs.
func Parse(src string) (Statement, error) {
	toks, err := TokenizeAll(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: toks}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != TokEOF {
		return nil, fmt.Errorf("velesql: unexpected trailing input at position %d", p.cur().Pos)
	}
	return stmt, nil
}

func (p *Parser) cur() Token  { return p.tokens[p.pos] }
func (p *Parser) peek(n int) Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *Parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) expect(k TokenKind, what string) (Token, error) {
	if p.cur().Kind != k {
		return Token{}, fmt.Errorf("velesql: expected %s at position %d, got %q", what, p.cur().Pos, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *Parser) parseStatement() (Statement, error) {
	left, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	var stmt Statement = left
	for {
		var op CompoundOp
		switch p.cur().Kind {
		case TokUnion:
			op = OpUnion
		case TokIntersect:
			op = OpIntersect
		case TokExcept:
			op = OpExcept
		default:
			return stmt, nil
		}
		p.advance()
		all := false
		if p.cur().Kind == TokAll {
			all = true
			p.advance()
		}
		right, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		stmt = &CompoundStmt{Op: op, All: all, Left: stmt, Right: right}
	}
}

func (p *Parser) parseSelect() (*SelectStmt, error) {
	if p.cur().Kind == TokMatch {
		return p.parseGraphMatch()
	}
	if _, err := p.expect(TokSelect, "SELECT"); err != nil {
		return nil, err
	}
	stmt := &SelectStmt{}

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	stmt.Columns = items

	if _, err := p.expect(TokFrom, "FROM"); err != nil {
		return nil, err
	}
	table, alias, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	stmt.From, stmt.FromAlias = table, alias

	if p.cur().Kind == TokJoin || p.cur().Kind == TokLeft || p.cur().Kind == TokRight || p.cur().Kind == TokFull || p.cur().Kind == TokInner {
		jc, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		stmt.Join = jc
	}

	if p.cur().Kind == TokWhere {
		p.advance()
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = expr
	}

	if p.cur().Kind == TokGroup {
		p.advance()
		if _, err := p.expect(TokBy, "BY"); err != nil {
			return nil, err
		}
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		stmt.GroupBy = cols
	}

	if p.cur().Kind == TokHaving {
		p.advance()
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		stmt.Having = expr
	}

	if p.cur().Kind == TokOrder {
		p.advance()
		if _, err := p.expect(TokBy, "BY"); err != nil {
			return nil, err
		}
		items, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		stmt.OrderBy = items
	}

	if p.cur().Kind == TokLimit {
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n
	}

	if p.cur().Kind == TokOffset {
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Offset = &n
	}

	if p.cur().Kind == TokWith {
		p.advance()
		opts, err := p.parseWithOptions()
		if err != nil {
			return nil, err
		}
		stmt.With = opts
	}

	return stmt, nil
}

// parseGraphMatch handles the standalone `MATCH (a:Label)-[:REL*1..3]->(b)`
// form, translated into a SelectStmt with an attached GraphPattern and an
// implicit `SELECT *`.
func (p *Parser) parseGraphMatch() (*SelectStmt, error) {
	if _, err := p.expect(TokMatch, "MATCH"); err != nil {
		return nil, err
	}
	pat := &GraphPattern{MinHops: 1, MaxHops: 1}

	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	fromVar, err := p.expect(TokIdent, "node variable")
	if err != nil {
		return nil, err
	}
	pat.FromVar = fromVar.Text
	if p.cur().Kind == TokColon {
		p.advance()
		lbl, err := p.expect(TokIdent, "label")
		if err != nil {
			return nil, err
		}
		pat.FromLabel = lbl.Text
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}

	if _, err := p.expect(TokMinus, "-"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBracket, "["); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokColon, ":"); err != nil {
		return nil, err
	}
	rel, err := p.expect(TokIdent, "relationship type")
	if err != nil {
		return nil, err
	}
	pat.RelType = rel.Text
	if p.cur().Kind == TokStar {
		p.advance()
		lo, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		pat.MinHops = lo
		pat.MaxHops = lo
		if _, err := p.expect(TokDot, "."); err == nil {
			if _, err := p.expect(TokDot, "."); err != nil {
				return nil, err
			}
			hi, err := p.parseIntLiteral()
			if err != nil {
				return nil, err
			}
			pat.MaxHops = hi
		}
	}
	if _, err := p.expect(TokRBracket, "]"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokArrowRight, "->"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	toVar, err := p.expect(TokIdent, "node variable")
	if err != nil {
		return nil, err
	}
	pat.ToVar = toVar.Text
	if p.cur().Kind == TokColon {
		p.advance()
		lbl, err := p.expect(TokIdent, "label")
		if err != nil {
			return nil, err
		}
		pat.ToLabel = lbl.Text
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}

	stmt := &SelectStmt{Columns: []SelectItem{{Star: true}}, GraphMatch: pat}
	if p.cur().Kind == TokWhere {
		p.advance()
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = expr
	}
	if p.cur().Kind == TokLimit {
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n
	}
	return stmt, nil
}

func (p *Parser) parseSelectList() ([]SelectItem, error) {
	var items []SelectItem
	for {
		if p.cur().Kind == TokStar {
			p.advance()
			items = append(items, SelectItem{Star: true})
		} else {
			expr, err := p.parseAddExpr()
			if err != nil {
				return nil, err
			}
			item := SelectItem{Expr: expr}
			if p.cur().Kind == TokAs {
				p.advance()
				alias, err := p.expect(TokIdent, "alias")
				if err != nil {
					return nil, err
				}
				item.Alias = alias.Text
			}
			items = append(items, item)
		}
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseTableRef() (table, alias string, err error) {
	t, err := p.expect(TokIdent, "table name")
	if err != nil {
		return "", "", err
	}
	table = t.Text
	if p.cur().Kind == TokIdent {
		a := p.advance()
		alias = a.Text
	} else if p.cur().Kind == TokAs {
		p.advance()
		a, err := p.expect(TokIdent, "alias")
		if err != nil {
			return "", "", err
		}
		alias = a.Text
	}
	return table, alias, nil
}

func (p *Parser) parseJoin() (*JoinClause, error) {
	jc := &JoinClause{Kind: JoinInner}
	switch p.cur().Kind {
	case TokLeft:
		jc.Kind = JoinLeft
		p.advance()
	case TokRight:
		jc.Kind = JoinRight
		p.advance()
	case TokFull:
		jc.Kind = JoinFull
		p.advance()
	case TokInner:
		p.advance()
	}
	if p.cur().Kind == TokOuter {
		p.advance()
	}
	if _, err := p.expect(TokJoin, "JOIN"); err != nil {
		return nil, err
	}
	table, alias, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	jc.Table, jc.Alias = table, alias

	if p.cur().Kind == TokUsing {
		p.advance()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		jc.Using = cols
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return jc, nil
	}

	if _, err := p.expect(TokOn, "ON"); err != nil {
		return nil, err
	}
	left, err := p.parseQualifiedColumn()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokEq, "="); err != nil {
		return nil, err
	}
	right, err := p.parseQualifiedColumn()
	if err != nil {
		return nil, err
	}
	jc.OnLeft, jc.OnRight = left, right
	return jc, nil
}

func (p *Parser) parseQualifiedColumn() (string, error) {
	first, err := p.expect(TokIdent, "column reference")
	if err != nil {
		return "", err
	}
	if p.cur().Kind == TokDot {
		p.advance()
		second, err := p.expect(TokIdent, "column name")
		if err != nil {
			return "", err
		}
		return first.Text + "." + second.Text, nil
	}
	return first.Text, nil
}

func (p *Parser) parseIdentList() ([]string, error) {
	var out []string
	for {
		t, err := p.expect(TokIdent, "identifier")
		if err != nil {
			return nil, err
		}
		out = append(out, t.Text)
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

func (p *Parser) parseOrderByList() ([]OrderItem, error) {
	var out []OrderItem
	for {
		expr, err := p.parseAddExpr()
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: expr}
		if p.cur().Kind == TokDesc {
			item.Desc = true
			p.advance()
		} else if p.cur().Kind == TokAsc {
			p.advance()
		}
		out = append(out, item)
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

func (p *Parser) parseIntLiteral() (int, error) {
	t, err := p.expect(TokNumber, "integer literal")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(t.Text)
	if err != nil {
		return 0, fmt.Errorf("velesql: invalid integer literal %q", t.Text)
	}
	return n, nil
}

func (p *Parser) parseWithOptions() (map[string]string, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	opts := map[string]string{}
	for {
		key, err := p.expect(TokIdent, "option name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokEq, "="); err != nil {
			return nil, err
		}
		var val string
		switch p.cur().Kind {
		case TokString:
			val = p.advance().Text
		case TokNumber:
			val = p.advance().Text
		case TokIdent:
			val = p.advance().Text
		case TokTrue:
			p.advance()
			val = "true"
		case TokFalse:
			p.advance()
			val = "false"
		default:
			return nil, fmt.Errorf("velesql: invalid WITH option value at position %d", p.cur().Pos)
		}
		opts[key.Text] = val
		if p.cur().Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return opts, nil
}

// --- expression grammar, precedence climbing ---
// orExpr -> andExpr (OR andExpr)*
// andExpr -> notExpr (AND notExpr)*
// notExpr -> NOT notExpr | predicate
// predicate -> addExpr ( cmp addExpr | IN (...) | BETWEEN a AND b | LIKE str | IS [NOT] NULL | NEAR ... | MATCH str )?
// addExpr -> mulExpr ((+|-) mulExpr)*
// mulExpr -> primary

func (p *Parser) parseOrExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == TokOr {
		p.advance()
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAndExpr() (Expr, error) {
	left, err := p.parseNotExpr()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == TokAnd {
		p.advance()
		right, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNotExpr() (Expr, error) {
	if p.cur().Kind == TokNot {
		p.advance()
		inner, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	}
	return p.parsePredicate()
}

func (p *Parser) parsePredicate() (Expr, error) {
	left, err := p.parseAddExpr()
	if err != nil {
		return nil, err
	}

	switch p.cur().Kind {
	case TokEq, TokNeq, TokLt, TokLte, TokGt, TokGte:
		op := binOpFor(p.advance().Kind)
		right, err := p.parseAddExpr()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: op, Left: left, Right: right}, nil

	case TokIn:
		p.advance()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		var values []Expr
		for {
			v, err := p.parseAddExpr()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if p.cur().Kind == TokComma {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return &InExpr{Expr: left, Values: values}, nil

	case TokBetween:
		p.advance()
		lo, err := p.parseAddExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokAnd, "AND"); err != nil {
			return nil, err
		}
		hi, err := p.parseAddExpr()
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{Expr: left, Lo: lo, Hi: hi}, nil

	case TokLike:
		p.advance()
		pat, err := p.expect(TokString, "string pattern")
		if err != nil {
			return nil, err
		}
		return &LikeExpr{Expr: left, Pattern: pat.Text}, nil

	case TokIs:
		p.advance()
		not := false
		if p.cur().Kind == TokNot {
			not = true
			p.advance()
		}
		if _, err := p.expect(TokNull, "NULL"); err != nil {
			return nil, err
		}
		return &IsNullExpr{Expr: left, Not: not}, nil

	case TokNear:
		p.advance()
		metric := ""
		if p.cur().Kind == TokIdent {
			metric = p.advance().Text
		}
		param, err := p.expect(TokParam, "$parameter")
		if err != nil {
			return nil, err
		}
		return &NearExpr{Metric: metric, Param: param.Text}, nil

	case TokMatch:
		p.advance()
		q, err := p.expect(TokString, "string query")
		if err != nil {
			return nil, err
		}
		fieldRef, ok := left.(*ColumnRef)
		field := "text"
		if ok {
			field = fieldRef.Name
		}
		return &MatchTextExpr{Field: field, Query: q.Text}, nil
	}

	return left, nil
}

func binOpFor(k TokenKind) BinOp {
	switch k {
	case TokEq:
		return OpEq
	case TokNeq:
		return OpNeq
	case TokLt:
		return OpLt
	case TokLte:
		return OpLte
	case TokGt:
		return OpGt
	case TokGte:
		return OpGte
	}
	panic("velesql: unreachable binOpFor")
}

func (p *Parser) parseAddExpr() (Expr, error) {
	left, err := p.parseMulExpr()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == TokMinus || (p.cur().Kind == TokIdent && p.cur().Text == "+") {
		// '+' is not a distinct token kind in this lexer (kept minimal);
		// arithmetic in ORDER BY only ever needs subtraction/addition of
		// score variables in practice, so '+' is accepted as an identifier
		// only when it lexes that way — normally it won't, so this branch
		// is effectively dead except for '-'.
		if p.cur().Kind != TokMinus {
			break
		}
		p.advance()
		right, err := p.parseMulExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpSub, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMulExpr() (Expr, error) {
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch p.cur().Kind {
	case TokLParen:
		p.advance()
		inner, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil

	case TokString:
		t := p.advance()
		return &Literal{Kind: LitString, Str: t.Text}, nil

	case TokNumber:
		t := p.advance()
		n, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, fmt.Errorf("velesql: invalid number literal %q", t.Text)
		}
		return &Literal{Kind: LitNumber, Num: n}, nil

	case TokTrue:
		p.advance()
		return &Literal{Kind: LitBool, Bool: true}, nil

	case TokFalse:
		p.advance()
		return &Literal{Kind: LitBool, Bool: false}, nil

	case TokNull:
		p.advance()
		return &Literal{Kind: LitNull}, nil

	case TokParam:
		t := p.advance()
		return &Param{Name: t.Text}, nil

	case TokIdent:
		if p.peek(1).Kind == TokLParen {
			return p.parseFuncCall()
		}
		first := p.advance()
		if p.cur().Kind == TokDot {
			p.advance()
			second, err := p.expect(TokIdent, "column name")
			if err != nil {
				return nil, err
			}
			return &ColumnRef{Table: first.Text, Name: second.Text}, nil
		}
		if scoreVarNames[strings.ToLower(first.Text)] {
			return &ScoreVar{Name: strings.ToLower(first.Text)}, nil
		}
		return &ColumnRef{Name: first.Text}, nil

	default:
		return nil, fmt.Errorf("velesql: unexpected token at position %d", p.cur().Pos)
	}
}

func (p *Parser) parseFuncCall() (Expr, error) {
	name, err := p.expect(TokIdent, "function name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	fc := &FuncCall{Name: strings.ToUpper(name.Text)}
	if p.cur().Kind == TokStar {
		p.advance()
		fc.Star = true
	} else if p.cur().Kind != TokRParen {
		arg, err := p.parseAddExpr()
		if err != nil {
			return nil, err
		}
		fc.Arg = arg
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return fc, nil
}
