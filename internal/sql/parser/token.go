package parser

import "fmt"

// TokenType represents the type of a SQL token.
type TokenType int

const (
	// Special tokens.
	TokenEOF TokenType = iota
	TokenError

	// Literals.
	TokenIdentifier
	TokenNumber
	TokenString
	TokenTrue
	TokenFalse
	TokenNull
	TokenParam // Parameter placeholder like $1, $2

	// Query keywords.
	TokenSelect
	TokenFrom
	TokenWhere
	TokenAnd
	TokenOr
	TokenNot
	TokenDistinct
	TokenAll
	TokenOrderBy
	TokenGroupBy
	TokenBy
	TokenHaving
	TokenAsc
	TokenDesc
	TokenNulls
	TokenFirst
	TokenLast
	TokenLimit
	TokenOffset
	TokenAs
	TokenOn
	TokenUsing
	TokenWith
	TokenRecursive
	TokenJoin
	TokenInner
	TokenLeft
	TokenRight
	TokenFull
	TokenOuter
	TokenCross
	TokenUnion
	TokenIntersect
	TokenExcept
	TokenCase
	TokenWhen
	TokenThen
	TokenElse
	TokenEnd
	TokenCast
	TokenOver
	TokenDate
	TokenTimestamp
	TokenInterval

	// Statement keywords that never start a query.
	TokenCreate
	TokenInsert
	TokenUpdate
	TokenDelete
	TokenDrop
	TokenAlter
	TokenValues

	// Operators
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent
	TokenConcat
	TokenDoubleColon
	TokenEqual
	TokenNotEqual
	TokenLess
	TokenLessEqual
	TokenGreater
	TokenGreaterEqual
	TokenLike
	TokenIn
	TokenBetween
	TokenIs
	TokenExists

	// Delimiters
	TokenLeftParen
	TokenRightParen
	TokenComma
	TokenSemicolon
	TokenDot
)

var tokenStrings = map[TokenType]string{
	TokenEOF:          "EOF",
	TokenError:        "ERROR",
	TokenIdentifier:   "IDENTIFIER",
	TokenNumber:       "NUMBER",
	TokenString:       "STRING",
	TokenTrue:         "TRUE",
	TokenFalse:        "FALSE",
	TokenNull:         "NULL",
	TokenParam:        "PARAM",
	TokenSelect:       "SELECT",
	TokenFrom:         "FROM",
	TokenWhere:        "WHERE",
	TokenAnd:          "AND",
	TokenOr:           "OR",
	TokenNot:          "NOT",
	TokenDistinct:     "DISTINCT",
	TokenAll:          "ALL",
	TokenOrderBy:      "ORDER BY",
	TokenGroupBy:      "GROUP BY",
	TokenBy:           "BY",
	TokenHaving:       "HAVING",
	TokenAsc:          "ASC",
	TokenDesc:         "DESC",
	TokenNulls:        "NULLS",
	TokenFirst:        "FIRST",
	TokenLast:         "LAST",
	TokenLimit:        "LIMIT",
	TokenOffset:       "OFFSET",
	TokenAs:           "AS",
	TokenOn:           "ON",
	TokenUsing:        "USING",
	TokenWith:         "WITH",
	TokenRecursive:    "RECURSIVE",
	TokenJoin:         "JOIN",
	TokenInner:        "INNER",
	TokenLeft:         "LEFT",
	TokenRight:        "RIGHT",
	TokenFull:         "FULL",
	TokenOuter:        "OUTER",
	TokenCross:        "CROSS",
	TokenUnion:        "UNION",
	TokenIntersect:    "INTERSECT",
	TokenExcept:       "EXCEPT",
	TokenCase:         "CASE",
	TokenWhen:         "WHEN",
	TokenThen:         "THEN",
	TokenElse:         "ELSE",
	TokenEnd:          "END",
	TokenCast:         "CAST",
	TokenOver:         "OVER",
	TokenDate:         "DATE",
	TokenTimestamp:    "TIMESTAMP",
	TokenInterval:     "INTERVAL",
	TokenCreate:       "CREATE",
	TokenInsert:       "INSERT",
	TokenUpdate:       "UPDATE",
	TokenDelete:       "DELETE",
	TokenDrop:         "DROP",
	TokenAlter:        "ALTER",
	TokenValues:       "VALUES",
	TokenPlus:         "+",
	TokenMinus:        "-",
	TokenStar:         "*",
	TokenSlash:        "/",
	TokenPercent:      "%",
	TokenConcat:       "||",
	TokenDoubleColon:  "::",
	TokenEqual:        "=",
	TokenNotEqual:     "<>",
	TokenLess:         "<",
	TokenLessEqual:    "<=",
	TokenGreater:      ">",
	TokenGreaterEqual: ">=",
	TokenLike:         "LIKE",
	TokenIn:           "IN",
	TokenBetween:      "BETWEEN",
	TokenIs:           "IS",
	TokenExists:       "EXISTS",
	TokenLeftParen:    "(",
	TokenRightParen:   ")",
	TokenComma:        ",",
	TokenSemicolon:    ";",
	TokenDot:          ".",
}

// String returns the string representation of a token type.
func (t TokenType) String() string {
	if s, ok := tokenStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", t)
}

// Token represents a SQL token.
type Token struct {
	Type     TokenType
	Value    string
	Position int
	Line     int
	Column   int
	Quoted   bool // identifier written in double quotes
}

// String returns a string representation of the token.
func (t Token) String() string {
	if t.Type == TokenIdentifier || t.Type == TokenNumber || t.Type == TokenString || t.Type == TokenParam {
		return fmt.Sprintf("%s(%s)", t.Type, t.Value)
	}
	return t.Type.String()
}

// Keywords maps keyword strings to token types.
var keywords = map[string]TokenType{
	"SELECT":    TokenSelect,
	"FROM":      TokenFrom,
	"WHERE":     TokenWhere,
	"AND":       TokenAnd,
	"OR":        TokenOr,
	"NOT":       TokenNot,
	"DISTINCT":  TokenDistinct,
	"ALL":       TokenAll,
	"ORDER":     TokenOrderBy,
	"GROUP":     TokenGroupBy,
	"BY":        TokenBy,
	"HAVING":    TokenHaving,
	"ASC":       TokenAsc,
	"DESC":      TokenDesc,
	"NULLS":     TokenNulls,
	"FIRST":     TokenFirst,
	"LAST":      TokenLast,
	"LIMIT":     TokenLimit,
	"OFFSET":    TokenOffset,
	"AS":        TokenAs,
	"ON":        TokenOn,
	"USING":     TokenUsing,
	"WITH":      TokenWith,
	"RECURSIVE": TokenRecursive,
	"JOIN":      TokenJoin,
	"INNER":     TokenInner,
	"LEFT":      TokenLeft,
	"RIGHT":     TokenRight,
	"FULL":      TokenFull,
	"OUTER":     TokenOuter,
	"CROSS":     TokenCross,
	"UNION":     TokenUnion,
	"INTERSECT": TokenIntersect,
	"EXCEPT":    TokenExcept,
	"CASE":      TokenCase,
	"WHEN":      TokenWhen,
	"THEN":      TokenThen,
	"ELSE":      TokenElse,
	"END":       TokenEnd,
	"CAST":      TokenCast,
	"OVER":      TokenOver,
	"DATE":      TokenDate,
	"TIMESTAMP": TokenTimestamp,
	"INTERVAL":  TokenInterval,
	"CREATE":    TokenCreate,
	"INSERT":    TokenInsert,
	"UPDATE":    TokenUpdate,
	"DELETE":    TokenDelete,
	"DROP":      TokenDrop,
	"ALTER":     TokenAlter,
	"VALUES":    TokenValues,
	"TRUE":      TokenTrue,
	"FALSE":     TokenFalse,
	"NULL":      TokenNull,
	"LIKE":      TokenLike,
	"IN":        TokenIn,
	"BETWEEN":   TokenBetween,
	"IS":        TokenIs,
	"EXISTS":    TokenExists,
}

// LookupKeyword returns the token type for a keyword.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdentifier
}
