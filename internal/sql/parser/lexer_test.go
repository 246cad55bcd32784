package parser

import (
	"testing"
)

func lexAll(input string) []Token {
	lexer := NewLexer(input)
	var tokens []Token
	for {
		tok := lexer.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}

func checkTokens(t *testing.T, input string, expected []Token) {
	t.Helper()
	got := lexAll(input)
	if len(got) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(got), got)
	}
	for i, exp := range expected {
		if got[i].Type != exp.Type {
			t.Errorf("token %d: expected type %v, got %v", i, exp.Type, got[i].Type)
		}
		if got[i].Value != exp.Value {
			t.Errorf("token %d: expected value %q, got %q", i, exp.Value, got[i].Value)
		}
	}
}

func TestLexerBasicTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "Simple SELECT",
			input: "SELECT * FROM users",
			expected: []Token{
				{Type: TokenSelect, Value: "SELECT"},
				{Type: TokenStar, Value: "*"},
				{Type: TokenFrom, Value: "FROM"},
				{Type: TokenIdentifier, Value: "users"},
				{Type: TokenEOF, Value: ""},
			},
		},
		{
			name:  "Qualified columns",
			input: "SELECT u.id, name FROM users u",
			expected: []Token{
				{Type: TokenSelect, Value: "SELECT"},
				{Type: TokenIdentifier, Value: "u"},
				{Type: TokenDot, Value: "."},
				{Type: TokenIdentifier, Value: "id"},
				{Type: TokenComma, Value: ","},
				{Type: TokenIdentifier, Value: "name"},
				{Type: TokenFrom, Value: "FROM"},
				{Type: TokenIdentifier, Value: "users"},
				{Type: TokenIdentifier, Value: "u"},
				{Type: TokenEOF, Value: ""},
			},
		},
		{
			name:  "Parameters",
			input: "WHERE id = $1",
			expected: []Token{
				{Type: TokenWhere, Value: "WHERE"},
				{Type: TokenIdentifier, Value: "id"},
				{Type: TokenEqual, Value: "="},
				{Type: TokenParam, Value: "$1"},
				{Type: TokenEOF, Value: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkTokens(t, tt.input, tt.expected)
		})
	}
}

func TestLexerOperators(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
		value    string
	}{
		{"=", TokenEqual, "="},
		{"<>", TokenNotEqual, "<>"},
		{"!=", TokenNotEqual, "!="},
		{"<", TokenLess, "<"},
		{"<=", TokenLessEqual, "<="},
		{">", TokenGreater, ">"},
		{">=", TokenGreaterEqual, ">="},
		{"+", TokenPlus, "+"},
		{"-", TokenMinus, "-"},
		{"*", TokenStar, "*"},
		{"/", TokenSlash, "/"},
		{"%", TokenPercent, "%"},
		{"||", TokenConcat, "||"},
		{"::", TokenDoubleColon, "::"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			checkTokens(t, tt.input, []Token{
				{Type: tt.expected, Value: tt.value},
				{Type: TokenEOF, Value: ""},
			})
		})
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Token
	}{
		{
			name:     "Simple string",
			input:    "'hello'",
			expected: Token{Type: TokenString, Value: "hello"},
		},
		{
			name:     "Escaped quote",
			input:    "'it''s'",
			expected: Token{Type: TokenString, Value: "it's"},
		},
		{
			name:     "Empty string",
			input:    "''",
			expected: Token{Type: TokenString, Value: ""},
		},
		{
			name:     "Unterminated string",
			input:    "'oops",
			expected: Token{Type: TokenError, Value: "unterminated string literal"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := NewLexer(tt.input).NextToken()
			if tok.Type != tt.expected.Type || tok.Value != tt.expected.Value {
				t.Errorf("expected %v %q, got %v %q", tt.expected.Type, tt.expected.Value, tok.Type, tok.Value)
			}
		})
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input    string
		expected []Token
	}{
		{"42", []Token{{Type: TokenNumber, Value: "42"}, {Type: TokenEOF}}},
		{"3.14", []Token{{Type: TokenNumber, Value: "3.14"}, {Type: TokenEOF}}},
		{"1.", []Token{{Type: TokenNumber, Value: "1"}, {Type: TokenDot, Value: "."}, {Type: TokenEOF}}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			checkTokens(t, tt.input, tt.expected)
		})
	}
}

func TestLexerKeywords(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"select", TokenSelect},
		{"Select", TokenSelect},
		{"FROM", TokenFrom},
		{"join", TokenJoin},
		{"using", TokenUsing},
		{"union", TokenUnion},
		{"exists", TokenExists},
		{"null", TokenNull},
		{"true", TokenTrue},
		{"update", TokenUpdate},
		{"users", TokenIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok := NewLexer(tt.input).NextToken()
			if tok.Type != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, tok.Type)
			}
		})
	}
}

func TestLexerQuotedIdentifiers(t *testing.T) {
	tok := NewLexer(`"Order Items"`).NextToken()
	if tok.Type != TokenIdentifier {
		t.Fatalf("expected identifier, got %v", tok.Type)
	}
	if tok.Value != "Order Items" {
		t.Errorf("expected value %q, got %q", "Order Items", tok.Value)
	}
	if !tok.Quoted {
		t.Error("expected quoted flag")
	}

	tok = NewLexer(`"select"`).NextToken()
	if tok.Type != TokenIdentifier {
		t.Errorf("quoted keyword should be an identifier, got %v", tok.Type)
	}
}

func TestLexerComments(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "Line comment",
			input: "SELECT -- the columns\n id",
			expected: []Token{
				{Type: TokenSelect, Value: "SELECT"},
				{Type: TokenIdentifier, Value: "id"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "Block comment",
			input: "SELECT /* all\n of them */ *",
			expected: []Token{
				{Type: TokenSelect, Value: "SELECT"},
				{Type: TokenStar, Value: "*"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "Unterminated block comment",
			input: "SELECT /* oops",
			expected: []Token{
				{Type: TokenSelect, Value: "SELECT"},
				{Type: TokenError, Value: "unterminated block comment"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkTokens(t, tt.input, tt.expected)
		})
	}
}

func TestLexerPositionTracking(t *testing.T) {
	input := "SELECT\n  * FROM\n  users"
	lexer := NewLexer(input)

	tests := []struct {
		expectedType   TokenType
		expectedLine   int
		expectedColumn int
	}{
		{TokenSelect, 1, 1},
		{TokenStar, 2, 3},
		{TokenFrom, 2, 5},
		{TokenIdentifier, 3, 3},
	}

	for i, tt := range tests {
		token := lexer.NextToken()
		if token.Type != tt.expectedType {
			t.Errorf("Token %d: expected type %v, got %v", i, tt.expectedType, token.Type)
		}
		if token.Line != tt.expectedLine {
			t.Errorf("Token %d: expected line %d, got %d", i, tt.expectedLine, token.Line)
		}
		if token.Column != tt.expectedColumn {
			t.Errorf("Token %d: expected column %d, got %d", i, tt.expectedColumn, token.Column)
		}
	}
}

func TestLexerOrderBy(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "ORDER BY as single token",
			input: "ORDER BY id",
			expected: []Token{
				{Type: TokenOrderBy, Value: "ORDER BY"},
				{Type: TokenIdentifier, Value: "id"},
				{Type: TokenEOF, Value: ""},
			},
		},
		{
			name:  "GROUP BY across lines",
			input: "group\n  by id",
			expected: []Token{
				{Type: TokenGroupBy, Value: "GROUP BY"},
				{Type: TokenIdentifier, Value: "id"},
				{Type: TokenEOF, Value: ""},
			},
		},
		{
			name:  "ORDER without BY",
			input: "ORDER id",
			expected: []Token{
				{Type: TokenIdentifier, Value: "ORDER"},
				{Type: TokenIdentifier, Value: "id"},
				{Type: TokenEOF, Value: ""},
			},
		},
		{
			name:  "ORDER followed by a word starting with BY",
			input: "ORDER byte",
			expected: []Token{
				{Type: TokenIdentifier, Value: "ORDER"},
				{Type: TokenIdentifier, Value: "byte"},
				{Type: TokenEOF, Value: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkTokens(t, tt.input, tt.expected)
		})
	}
}
