package velesql

// Statement is any top-level parsed query: a single Select or a compound
// UNION/INTERSECT/EXCEPT of two statements.
type Statement interface {
	statementNode()
}

// SelectStmt is one `SELECT ... FROM ...` form.
type SelectStmt struct {
	Columns    []SelectItem
	From       string
	FromAlias  string
	Join       *JoinClause
	Where      Expr
	GroupBy    []string
	Having     Expr
	OrderBy    []OrderItem
	Limit      *int
	Offset     *int
	With       map[string]string
	GraphMatch *GraphPattern // optional MATCH (a:Label)-[:REL*lo..hi]->(b) pattern
}

func (*SelectStmt) statementNode() {}

// CompoundStmt combines two statements with a set operator.
type CompoundStmt struct {
	Op    CompoundOp
	All   bool
	Left  Statement
	Right Statement
}

func (*CompoundStmt) statementNode() {}

type CompoundOp uint8

const (
	OpUnion CompoundOp = iota
	OpIntersect
	OpExcept
)

// SelectItem is one projected column: either `*`, a bare/aggregate
// expression, optionally aliased.
type SelectItem struct {
	Star  bool
	Expr  Expr
	Alias string
}

// JoinClause describes a single inner/outer join between the FROM table
// and one other table.
type JoinClause struct {
	Kind   JoinKind
	Table  string
	Alias  string
	OnLeft string // qualified column, e.g. "a.id"
	OnRight string
	Using  []string
}

type JoinKind uint8

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
)

// OrderItem is one ORDER BY term; Expr may reference a column or one of
// the built-in score variables (vector_score, graph_score, bm25_score,
// fused_score).
type OrderItem struct {
	Expr Expr
	Desc bool
}

// GraphPattern models `MATCH (a:Label)-[:REL*lo..hi]->(b)`.
type GraphPattern struct {
	FromVar   string
	FromLabel string
	RelType   string
	MinHops   int
	MaxHops   int
	ToVar     string
	ToLabel   string
}

// Expr is any scalar/boolean expression node.
type Expr interface {
	exprNode()
}

type Literal struct {
	// exactly one of these is meaningful, selected by Kind
	Kind    LiteralKind
	Str     string
	Num     float64
	Bool    bool
}

type LiteralKind uint8

const (
	LitString LiteralKind = iota
	LitNumber
	LitBool
	LitNull
)

func (*Literal) exprNode() {}

// ColumnRef is `table.col` or a bare `col`. A qualified reference targets
// the column store; an unqualified one targets the graph by default.
type ColumnRef struct {
	Table string
	Name  string
}

func (*ColumnRef) exprNode() {}

// Param is a `$name` placeholder bound at planning time.
type Param struct {
	Name string
}

func (*Param) exprNode() {}

// BinaryExpr covers comparisons and AND/OR.
type BinaryExpr struct {
	Op    BinOp
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

type BinOp uint8

const (
	OpEq BinOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
)

// NotExpr negates a boolean expression.
type NotExpr struct{ Expr Expr }

func (*NotExpr) exprNode() {}

// IsNullExpr implements `<expr> IS [NOT] NULL`.
type IsNullExpr struct {
	Expr Expr
	Not  bool
}

func (*IsNullExpr) exprNode() {}

// InExpr implements `<expr> IN (v1, v2, ...)`.
type InExpr struct {
	Expr   Expr
	Values []Expr
	Not    bool
}

func (*InExpr) exprNode() {}

// BetweenExpr implements `<expr> BETWEEN lo AND hi`.
type BetweenExpr struct {
	Expr Expr
	Lo   Expr
	Hi   Expr
	Not  bool
}

func (*BetweenExpr) exprNode() {}

// LikeExpr implements `<expr> LIKE '<pattern>'`.
type LikeExpr struct {
	Expr    Expr
	Pattern string
	Not     bool
}

func (*LikeExpr) exprNode() {}

// NearExpr implements `vector NEAR [metric] $param`.
type NearExpr struct {
	Metric string // empty means collection default
	Param  string
}

func (*NearExpr) exprNode() {}

// MatchTextExpr implements `<field> MATCH '<query>'` (BM25 full text).
type MatchTextExpr struct {
	Field string
	Query string
}

func (*MatchTextExpr) exprNode() {}

// FuncCall covers aggregates: COUNT(*), SUM(x), AVG(x), MIN(x), MAX(x).
type FuncCall struct {
	Name string
	Star bool
	Arg  Expr
}

func (*FuncCall) exprNode() {}

// ScoreVar references one of the built-in score pseudo-columns.
type ScoreVar struct {
	Name string // vector_score | graph_score | bm25_score | fused_score
}

func (*ScoreVar) exprNode() {}
