// Package parse builds the namespace and interface tree of a header from its tokens.
//
// The accepted grammar is deliberately small: namespaces, classes and class templates whose public
// members are pure virtual methods and an optional destructor. Everything else is reported as an
// UnsupportedConstruct error rather than approximated.
package parse

import (
	"fmt"

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
	lex "github.com/toejough/mockcpp/mockcpp/run/1_lex"
)

// ErrorKind classifies parse failures.
type ErrorKind int

// ErrorKind values.
const (
	UnexpectedToken ErrorKind = iota + 1
	UnsupportedConstruct
	MissingPureSpecifier
)

// String returns the error kind name.
func (k ErrorKind) String() string {
	switch k {
	case UnexpectedToken:
		return "unexpected token"
	case UnsupportedConstruct:
		return "unsupported construct"
	case MissingPureSpecifier:
		return "missing pure specifier"
	default:
		return "parse error"
	}
}

// Error is a grammar violation at a token.
type Error struct {
	Kind     ErrorKind
	Pos      model.Position
	Expected string // empty unless Kind is UnexpectedToken
	Found    string
	Msg      string
}

func (e *Error) Error() string {
	msg := e.Msg

	if e.Expected != "" {
		detail := fmt.Sprintf("expected %s, found %s", e.Expected, e.Found)
		if msg == "" {
			msg = detail
		} else {
			msg += ": " + detail
		}
	}

	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, msg)
}

// Unwrap lets errors.Is match model.ErrParse.
func (e *Error) Unwrap() error {
	return model.ErrParse
}

// Parse lexes and parses one header. Lexing failures are returned as *lex.Error.
func Parse(file, src string) (*model.File, error) {
	toks, err := lex.Tokenize(file, src)
	if err != nil {
		return nil, err
	}

	p := newParser(toks)
	root := &model.Namespace{Pos: toks[0].Pos}

	err = p.namespaceBody(root, nil, false)
	if err != nil {
		return nil, err
	}

	return &model.File{Path: file, Root: root}, nil
}

// Declarator parses a single method declarator: qualifiers, return type, name, parameters and
// trailing qualifiers. It does not require a pure specifier and ignores a trailing '= 0', ';' or body.
func Declarator(toks []lex.Token) (model.Method, error) {
	if len(toks) == 0 || toks[len(toks)-1].Kind != lex.EOF {
		var end model.Position
		if len(toks) > 0 {
			end = toks[len(toks)-1].Pos
		}

		toks = append(toks[:len(toks):len(toks)], lex.Token{Kind: lex.EOF, Pos: end})
	}

	return newParser(toks).declarator()
}

// parser is a cursor over a token slice that always ends with EOF.
type parser struct {
	toks     []lex.Token
	pos      int
	declared map[string]*model.Interface // by qualified name, for base class lookup
}

func newParser(toks []lex.Token) *parser {
	return &parser{toks: toks, declared: make(map[string]*model.Interface)}
}

func (p *parser) peek() lex.Token {
	return p.peekAt(0)
}

func (p *parser) peekAt(offset int) lex.Token {
	if p.pos+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}

	return p.toks[p.pos+offset]
}

func (p *parser) next() lex.Token {
	tok := p.peek()
	if tok.Kind != lex.EOF {
		p.pos++
	}

	return tok
}

func (p *parser) acceptPunct(lexeme string) bool {
	if p.peek().IsPunct(lexeme) {
		p.pos++

		return true
	}

	return false
}

func (p *parser) expectPunct(lexeme string) (lex.Token, error) {
	tok := p.peek()
	if !tok.IsPunct(lexeme) {
		return tok, p.unexpected(tok, fmt.Sprintf("'%s'", lexeme))
	}

	p.pos++

	return tok, nil
}

func (p *parser) unexpected(tok lex.Token, expected string) error {
	return &Error{Kind: UnexpectedToken, Pos: tok.Pos, Expected: expected, Found: tok.String()}
}

func (p *parser) unsupported(tok lex.Token, format string, args ...any) error {
	return &Error{Kind: UnsupportedConstruct, Pos: tok.Pos, Found: tok.String(), Msg: fmt.Sprintf(format, args...)}
}

// skipAttributes consumes any number of [[...]] attribute lists.
func (p *parser) skipAttributes() {
	for p.peek().IsPunct("[") && p.peekAt(1).IsPunct("[") {
		depth := 0

		for {
			tok := p.next()

			switch {
			case tok.Kind == lex.EOF:
				return
			case tok.IsPunct("["):
				depth++
			case tok.IsPunct("]"):
				depth--
			}

			if depth == 0 {
				break
			}
		}
	}
}

// skipDeclaration consumes tokens through the next ';' outside any brackets.
func (p *parser) skipDeclaration() error {
	depth := 0

	for {
		tok := p.next()

		switch {
		case tok.Kind == lex.EOF:
			return p.unexpected(tok, "';'")
		case isOpener(tok):
			depth++
		case isCloser(tok):
			depth--
		case tok.IsPunct(";") && depth == 0:
			return nil
		}
	}
}

// balanced consumes an opener and everything up to its matching closer, returning the tokens
// between them.
func (p *parser) balanced() ([]lex.Token, error) {
	open := p.next()
	start := p.pos
	depth := 1

	for {
		tok := p.next()

		switch {
		case tok.Kind == lex.EOF:
			return nil, p.unexpected(tok, fmt.Sprintf("closing bracket for %s", open))
		case isOpener(tok):
			depth++
		case isCloser(tok):
			depth--
			if depth == 0 {
				return p.toks[start : p.pos-1], nil
			}
		}
	}
}

func isOpener(tok lex.Token) bool {
	return tok.Kind == lex.TemplateOpen || tok.IsPunct("(") || tok.IsPunct("[") || tok.IsPunct("{")
}

func isCloser(tok lex.Token) bool {
	return tok.Kind == lex.TemplateClose || tok.IsPunct(")") || tok.IsPunct("]") || tok.IsPunct("}")
}

// splitTopLevel splits toks at commas outside any brackets.
func splitTopLevel(toks []lex.Token) [][]lex.Token {
	var (
		groups [][]lex.Token
		depth  int
		start  int
	)

	for idx, tok := range toks {
		switch {
		case isOpener(tok):
			depth++
		case isCloser(tok):
			depth--
		case tok.IsPunct(",") && depth == 0:
			groups = append(groups, toks[start:idx])
			start = idx + 1
		}
	}

	return append(groups, toks[start:])
}
