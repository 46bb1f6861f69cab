package ddl

import (
	"fmt"
	"strings"
)

// Partition is one parsed PARTITION clause.
type Partition struct {
	Value    string
	Location string
}

// ParsedAddPartitions is the result of parsing an ADD IF NOT EXISTS statement.
type ParsedAddPartitions struct {
	Database    string
	Table       string
	KeyName     string
	IfNotExists bool
	Partitions  []Partition
}

type parser struct {
	tokens []token
	pos    int
}

// ParseAddPartitions parses the statement dialect produced by
// BuildAddPartitions. Every PARTITION clause must use the same key column.
func ParseAddPartitions(stmt string) (*ParsedAddPartitions, error) {
	tokens, err := lex(stmt)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}

	if err := p.keywords("ALTER", "TABLE"); err != nil {
		return nil, err
	}
	out := &ParsedAddPartitions{}
	if out.Database, err = p.ident(); err != nil {
		return nil, err
	}
	if err := p.expect(tokenDot); err != nil {
		return nil, err
	}
	if out.Table, err = p.ident(); err != nil {
		return nil, err
	}
	if err := p.keywords("ADD"); err != nil {
		return nil, err
	}
	if p.peekKeyword("IF") {
		if err := p.keywords("IF", "NOT", "EXISTS"); err != nil {
			return nil, err
		}
		out.IfNotExists = true
	}

	for p.peekKeyword("PARTITION") {
		p.pos++
		part, key, err := p.partitionClause()
		if err != nil {
			return nil, err
		}
		if out.KeyName == "" {
			out.KeyName = key
		} else if !strings.EqualFold(out.KeyName, key) {
			return nil, fmt.Errorf("ddl: mixed partition keys %q and %q", out.KeyName, key)
		}
		out.Partitions = append(out.Partitions, part)
	}
	if len(out.Partitions) == 0 {
		return nil, fmt.Errorf("ddl: no PARTITION clauses")
	}

	if p.peek().typ == tokenSemicolon {
		p.pos++
	}
	if t := p.peek(); t.typ != tokenEOF {
		return nil, fmt.Errorf("ddl: unexpected %s %q at position %d", t.typ, t.literal, t.pos)
	}
	return out, nil
}

// partitionClause parses: ( key = 'value' ) LOCATION 'uri'
func (p *parser) partitionClause() (Partition, string, error) {
	if err := p.expect(tokenLParen); err != nil {
		return Partition{}, "", err
	}
	key, err := p.ident()
	if err != nil {
		return Partition{}, "", err
	}
	if err := p.expect(tokenEq); err != nil {
		return Partition{}, "", err
	}
	value, err := p.str()
	if err != nil {
		return Partition{}, "", err
	}
	if err := p.expect(tokenRParen); err != nil {
		return Partition{}, "", err
	}
	if err := p.keywords("LOCATION"); err != nil {
		return Partition{}, "", err
	}
	loc, err := p.str()
	if err != nil {
		return Partition{}, "", err
	}
	return Partition{Value: value, Location: loc}, key, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) peekKeyword(kw string) bool {
	t := p.peek()
	return t.typ == tokenIdent && strings.EqualFold(t.literal, kw)
}

func (p *parser) keywords(kws ...string) error {
	for _, kw := range kws {
		if !p.peekKeyword(kw) {
			t := p.peek()
			return fmt.Errorf("ddl: expected %s at position %d, got %q", kw, t.pos, t.literal)
		}
		p.pos++
	}
	return nil
}

func (p *parser) expect(typ tokenType) error {
	t := p.peek()
	if t.typ != typ {
		return fmt.Errorf("ddl: expected %s at position %d, got %q", typ, t.pos, t.literal)
	}
	p.pos++
	return nil
}

func (p *parser) ident() (string, error) {
	t := p.peek()
	if t.typ != tokenIdent {
		return "", fmt.Errorf("ddl: expected identifier at position %d, got %q", t.pos, t.literal)
	}
	p.pos++
	return strings.ToLower(t.literal), nil
}

func (p *parser) str() (string, error) {
	t := p.peek()
	if t.typ != tokenString {
		return "", fmt.Errorf("ddl: expected string literal at position %d, got %q", t.pos, t.literal)
	}
	p.pos++
	return t.literal, nil
}
