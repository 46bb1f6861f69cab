package ddl

import (
	"fmt"
	"strings"
	"unicode"
)

// tokenType represents the type of a lexical token.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenString
	tokenEq
	tokenLParen
	tokenRParen
	tokenDot
	tokenSemicolon
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "EOF"
	case tokenIdent:
		return "IDENT"
	case tokenString:
		return "STRING"
	case tokenEq:
		return "="
	case tokenLParen:
		return "("
	case tokenRParen:
		return ")"
	case tokenDot:
		return "."
	case tokenSemicolon:
		return ";"
	default:
		return "UNKNOWN"
	}
}

type token struct {
	typ     tokenType
	literal string
	pos     int
}

// lex splits a statement into tokens. Keywords are returned as identifiers
// and matched case-insensitively by the parser.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		ch := rune(input[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '=':
			tokens = append(tokens, token{tokenEq, "=", i})
			i++
		case ch == '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
		case ch == ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++
		case ch == '.':
			tokens = append(tokens, token{tokenDot, ".", i})
			i++
		case ch == ';':
			tokens = append(tokens, token{tokenSemicolon, ";", i})
			i++
		case ch == '\'':
			end := strings.IndexByte(input[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("ddl: unterminated string at position %d", i)
			}
			tokens = append(tokens, token{tokenString, input[i+1 : i+1+end], i})
			i += end + 2
		case ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch):
			start := i
			for i < len(input) {
				c := rune(input[i])
				if c != '_' && !unicode.IsLetter(c) && !unicode.IsDigit(c) {
					break
				}
				i++
			}
			tokens = append(tokens, token{tokenIdent, input[start:i], start})
		default:
			return nil, fmt.Errorf("ddl: unexpected character %q at position %d", ch, i)
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(input)})
	return tokens, nil
}
