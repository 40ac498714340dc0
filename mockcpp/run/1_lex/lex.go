// Package lex turns interface header text into a flat token stream.
package lex

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
)

// Kind classifies a token.
type Kind int

// Kind values.
const (
	EOF Kind = iota
	Identifier
	Keyword
	Qualifier // const, volatile, virtual, inline
	Punctuation
	TemplateOpen
	TemplateClose
	Literal
	Directive
)

// String returns the kind name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case EOF:
		return "end of file"
	case Identifier:
		return "identifier"
	case Keyword:
		return "keyword"
	case Qualifier:
		return "qualifier"
	case Punctuation:
		return "punctuation"
	case TemplateOpen:
		return "template '<'"
	case TemplateClose:
		return "template '>'"
	case Literal:
		return "literal"
	case Directive:
		return "preprocessor directive"
	default:
		return "token?"
	}
}

// Token is one lexeme with its kind and starting position.
type Token struct {
	Kind   Kind
	Lexeme string
	Pos    model.Position
}

// Is reports whether the token has the given kind and lexeme.
func (t Token) Is(kind Kind, lexeme string) bool {
	return t.Kind == kind && t.Lexeme == lexeme
}

// IsPunct reports whether the token is the given punctuation.
func (t Token) IsPunct(lexeme string) bool {
	return t.Is(Punctuation, lexeme)
}

// IsKeyword reports whether the token is the given keyword.
func (t Token) IsKeyword(lexeme string) bool {
	return t.Is(Keyword, lexeme)
}

// IsWord reports whether the token is spelled with identifier characters or is a literal.
func (t Token) IsWord() bool {
	switch t.Kind {
	case Identifier, Keyword, Qualifier, Literal:
		return true
	default:
		return false
	}
}

// String renders the token for diagnostics.
func (t Token) String() string {
	if t.Kind == EOF {
		return t.Kind.String()
	}

	return fmt.Sprintf("%s %q", t.Kind, t.Lexeme)
}

// ErrorKind classifies lexing failures.
type ErrorKind int

// ErrorKind values.
const (
	UnterminatedLiteral ErrorKind = iota + 1
	UnterminatedComment
	InvalidCharacter
)

// String returns the error kind name.
func (k ErrorKind) String() string {
	switch k {
	case UnterminatedLiteral:
		return "unterminated literal"
	case UnterminatedComment:
		return "unterminated comment"
	case InvalidCharacter:
		return "invalid character"
	default:
		return "lex error"
	}
}

// Error is a lexing failure at a source position.
type Error struct {
	Kind ErrorKind
	Pos  model.Position
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Msg)
}

// Unwrap lets errors.Is match model.ErrLex.
func (e *Error) Unwrap() error {
	return model.ErrLex
}

// Tokens lexes src lazily. Each iteration starts over from the beginning of src. The sequence ends
// before EOF; on failure it yields one final (zero token, *Error) pair.
func Tokens(file, src string) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		scan := newScanner(file, src)

		for {
			tok, err := scan.next()
			if err != nil {
				yield(Token{}, err)

				return
			}

			if tok.Kind == EOF || !yield(tok, nil) {
				return
			}
		}
	}
}

// Tokenize lexes all of src. The returned slice always ends with an EOF token.
func Tokenize(file, src string) ([]Token, error) {
	scan := newScanner(file, src)

	var toks []Token

	for {
		tok, err := scan.next()
		if err != nil {
			return nil, err
		}

		toks = append(toks, tok)

		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

// Join renders tokens as canonical source text. Lexing the result yields the same tokens.
func Join(toks []Token) string {
	var out strings.Builder

	var prev Token

	for _, tok := range toks {
		if tok.Kind == EOF {
			break
		}

		switch {
		case out.Len() == 0:
		case prev.Kind == Directive:
			out.WriteByte('\n')
		case needsSpace(prev, tok):
			out.WriteByte(' ')
		}

		out.WriteString(tok.Lexeme)

		prev = tok
	}

	return out.String()
}

// scanner holds the lexing state for one pass over the source.
type scanner struct {
	file      string
	src       string
	pos       int
	line      int
	col       int
	lineStart bool
	prev      Token

	parens    int
	templates []int // paren depth at which each open template argument list started

	exprParens    int // paren depth of the innermost '=' initializer, -1 outside one
	exprTemplates int
}

func newScanner(file, src string) *scanner {
	return &scanner{file: file, src: src, line: 1, col: 1, lineStart: true, exprParens: -1}
}

func (s *scanner) next() (Token, error) {
	err := s.skipSpace()
	if err != nil {
		return Token{}, err
	}

	start := s.position()

	if s.pos >= len(s.src) {
		return Token{Kind: EOF, Pos: start}, nil
	}

	var tok Token

	char, _ := utf8.DecodeRuneInString(s.src[s.pos:])

	switch {
	case char == '#' && s.lineStart:
		tok = s.directive(start)
	case char == '"' || char == '\'':
		tok, err = s.quoted(start, s.pos)
	case isIdentStart(char):
		tok, err = s.word(start)
	case isDigit(char) || (char == '.' && s.pos+1 < len(s.src) && isDigit(rune(s.src[s.pos+1]))):
		tok = s.number(start)
	default:
		tok, err = s.punctuation(start)
	}

	if err != nil {
		return Token{}, err
	}

	s.lineStart = false
	s.track(tok)
	s.prev = tok

	return tok, nil
}

func (s *scanner) position() model.Position {
	return model.Position{File: s.file, Offset: s.pos, Line: s.line, Column: s.col}
}

func (s *scanner) advance(n int) {
	for range n {
		if s.pos >= len(s.src) {
			return
		}

		b := s.src[s.pos]
		s.pos++

		switch {
		case b == '\n':
			s.line++
			s.col = 1
		case b&0xC0 != 0x80:
			s.col++
		}
	}
}

func (s *scanner) peekAt(offset int) byte {
	if s.pos+offset < len(s.src) {
		return s.src[s.pos+offset]
	}

	return 0
}

func (s *scanner) fail(kind ErrorKind, pos model.Position, format string, args ...any) error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (s *scanner) skipSpace() error {
	for s.pos < len(s.src) {
		switch char := s.src[s.pos]; {
		case char == '\n':
			s.advance(1)
			s.lineStart = true
		case char == ' ' || char == '\t' || char == '\r' || char == '\f' || char == '\v':
			s.advance(1)
		case char == '\\' && s.peekAt(1) == '\n':
			s.advance(2) //nolint:mnd // line splice
		case char == '\\' && s.peekAt(1) == '\r' && s.peekAt(2) == '\n':
			s.advance(3) //nolint:mnd // line splice
		case char == '/' && s.peekAt(1) == '/':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' {
				s.advance(1)
			}
		case char == '/' && s.peekAt(1) == '*':
			start := s.position()

			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				return s.fail(UnterminatedComment, start, "block comment is never closed")
			}

			s.advance(end + 4) //nolint:mnd // "/*" + body + "*/"
		default:
			return nil
		}
	}

	return nil
}

func (s *scanner) directive(start model.Position) Token {
	begin := s.pos

	for s.pos < len(s.src) {
		if s.src[s.pos] == '\\' && s.peekAt(1) == '\n' {
			s.advance(2) //nolint:mnd // backslash-newline

			continue
		}

		if s.src[s.pos] == '\n' {
			break
		}

		s.advance(1)
	}

	return Token{Kind: Directive, Lexeme: strings.TrimRight(s.src[begin:s.pos], " \t\r"), Pos: start}
}

func (s *scanner) word(start model.Position) (Token, error) {
	begin := s.pos

	for s.pos < len(s.src) {
		char, size := utf8.DecodeRuneInString(s.src[s.pos:])
		if !isIdentStart(char) && !isDigit(char) {
			break
		}

		s.advance(size)
	}

	text := s.src[begin:s.pos]

	if s.pos < len(s.src) && literalPrefixes[text] {
		next := s.src[s.pos]
		if next == '"' || (next == '\'' && !strings.HasSuffix(text, "R")) {
			return s.quoted(start, begin)
		}
	}

	kind := Identifier

	switch {
	case qualifiers[text]:
		kind = Qualifier
	case keywords[text]:
		kind = Keyword
	}

	return Token{Kind: kind, Lexeme: text, Pos: start}, nil
}

// quoted reads a string or character literal whose optional encoding prefix started at begin.
func (s *scanner) quoted(start model.Position, begin int) (Token, error) {
	prefix := s.src[begin:s.pos]
	quote := s.src[s.pos]

	if strings.HasSuffix(prefix, "R") && quote == '"' {
		return s.raw(start, begin)
	}

	s.advance(1)

	for {
		if s.pos >= len(s.src) || s.src[s.pos] == '\n' {
			return Token{}, s.fail(UnterminatedLiteral, start, "missing closing %c", quote)
		}

		char := s.src[s.pos]

		if char == '\\' {
			s.advance(2) //nolint:mnd // escape and escaped byte

			continue
		}

		s.advance(1)

		if char == quote {
			break
		}
	}

	s.suffix()

	return Token{Kind: Literal, Lexeme: s.src[begin:s.pos], Pos: start}, nil
}

// raw reads R"delim( ... )delim".
func (s *scanner) raw(start model.Position, begin int) (Token, error) {
	s.advance(1)

	open := strings.IndexByte(s.src[s.pos:], '(')
	if open < 0 {
		return Token{}, s.fail(UnterminatedLiteral, start, "raw string has no opening delimiter")
	}

	delim := s.src[s.pos : s.pos+open]
	if strings.ContainsAny(delim, " \t\n\\)\"") {
		return Token{}, s.fail(UnterminatedLiteral, start, "invalid raw string delimiter %q", delim)
	}

	s.advance(open + 1)

	closer := ")" + delim + `"`

	end := strings.Index(s.src[s.pos:], closer)
	if end < 0 {
		return Token{}, s.fail(UnterminatedLiteral, start, "raw string is never closed with %s", closer)
	}

	s.advance(end + len(closer))
	s.suffix()

	return Token{Kind: Literal, Lexeme: s.src[begin:s.pos], Pos: start}, nil
}

// suffix consumes a user-defined literal suffix.
func (s *scanner) suffix() {
	for s.pos < len(s.src) {
		char, size := utf8.DecodeRuneInString(s.src[s.pos:])
		if !isIdentStart(char) && !isDigit(char) {
			return
		}

		s.advance(size)
	}
}

func (s *scanner) number(start model.Position) Token {
	begin := s.pos

	for s.pos < len(s.src) {
		char := s.src[s.pos]

		switch {
		case (char == '+' || char == '-') && s.pos > begin && strings.ContainsRune("eEpP", rune(s.src[s.pos-1])):
			s.advance(1)
		case char == '\'' && s.pos+1 < len(s.src) && isAlnum(s.src[s.pos+1]):
			s.advance(1)
		case isAlnum(char) || char == '.' || char == '_':
			s.advance(1)
		default:
			return Token{Kind: Literal, Lexeme: s.src[begin:s.pos], Pos: start}
		}
	}

	return Token{Kind: Literal, Lexeme: s.src[begin:s.pos], Pos: start}
}

func (s *scanner) punctuation(start model.Position) (Token, error) {
	rest := s.src[s.pos:]

	if rest[0] == '<' && s.opensTemplate() {
		s.advance(1)

		return Token{Kind: TemplateOpen, Lexeme: "<", Pos: start}, nil
	}

	// '>>' and '>=' are split while a template argument list is open at this paren depth.
	if rest[0] == '>' && len(s.templates) > 0 && s.templates[len(s.templates)-1] == s.parens {
		s.advance(1)

		return Token{Kind: TemplateClose, Lexeme: ">", Pos: start}, nil
	}

	for _, punct := range punctuators {
		if strings.HasPrefix(rest, punct) {
			s.advance(len(punct))

			return Token{Kind: Punctuation, Lexeme: punct, Pos: start}, nil
		}
	}

	char, _ := utf8.DecodeRuneInString(rest)

	return Token{}, s.fail(InvalidCharacter, start, "unexpected character %q", char)
}

// opensTemplate decides whether the '<' at the cursor starts a template argument list. Outside any
// brackets any '<' after a name does; inside an initializer or parentheses it does only when a
// matching '>' follows.
func (s *scanner) opensTemplate() bool {
	rest := s.src[s.pos:]
	if strings.HasPrefix(rest, "<<") || strings.HasPrefix(rest, "<=") {
		return false
	}

	switch s.prev.Kind { //nolint:exhaustive // only names can take template arguments
	case Keyword:
		return s.prev.Lexeme == "template" || castKeywords[s.prev.Lexeme]
	case Identifier:
		if s.exprParens < 0 && s.parens == 0 {
			return true
		}

		return angleCloses(s.src[s.pos+1:])
	default:
		return false
	}
}

// track updates bracket depths and initializer state after tok.
func (s *scanner) track(tok Token) {
	switch tok.Kind { //nolint:exhaustive // other kinds do not affect nesting
	case TemplateOpen:
		s.templates = append(s.templates, s.parens)
	case TemplateClose:
		s.templates = s.templates[:len(s.templates)-1]
		if s.exprParens >= 0 && len(s.templates) < s.exprTemplates {
			s.exprParens = -1
		}
	case Punctuation:
		s.trackPunct(tok.Lexeme)
	}
}

func (s *scanner) trackPunct(lexeme string) {
	switch lexeme {
	case "(", "[":
		s.parens++
	case ")", "]":
		s.parens--
		for len(s.templates) > 0 && s.templates[len(s.templates)-1] > s.parens {
			s.templates = s.templates[:len(s.templates)-1]
		}

		if s.exprParens >= 0 && s.parens < s.exprParens {
			s.exprParens = -1
		}
	case "=":
		if s.exprParens < 0 && !s.prev.IsKeyword("operator") {
			s.exprParens = s.parens
			s.exprTemplates = len(s.templates)
		}
	case ",":
		if s.exprParens == s.parens && len(s.templates) == s.exprTemplates {
			s.exprParens = -1
		}
	case ";", "{", "}":
		s.templates = s.templates[:0]
		s.exprParens = -1
	}
}

// angleCloses scans raw text after a '<' for the '>' that would close it, giving up at anything
// that cannot appear inside a template argument list.
func angleCloses(text string) bool {
	depth, parens := 1, 0

	for idx := 0; idx < len(text); idx++ {
		char := text[idx]
		next := byte(0)

		if idx+1 < len(text) {
			next = text[idx+1]
		}

		switch char {
		case '(', '[':
			parens++
		case ')', ']':
			if parens == 0 {
				return false
			}

			parens--
		case '<':
			if next == '<' || next == '=' {
				idx++
			} else if parens == 0 {
				depth++
			}
		case '>':
			if next == '=' {
				idx++
			} else if parens == 0 {
				depth--
				if depth == 0 {
					return true
				}
			}
		case '-':
			if next == '>' {
				idx++
			}
		case '=':
			if next == '=' {
				idx++
			} else if parens == 0 {
				return false
			}
		case '!':
			if next == '=' {
				idx++
			}
		case '&', '|':
			if next == char && parens == 0 {
				return false
			}
		case ';', '{', '}':
			return false
		case '"', '\'':
			end := strings.IndexByte(text[idx+1:], char)
			if end < 0 {
				return false
			}

			idx += end + 1
		}
	}

	return false
}

func needsSpace(prev, tok Token) bool {
	switch {
	case prev.IsWord() && tok.IsWord():
		return true
	case prev.IsPunct(",") || prev.IsPunct("=") || tok.IsPunct("="):
		return true
	case tok.IsWord() && (prev.IsPunct("*") || prev.IsPunct("&") || prev.IsPunct("&&") || prev.IsPunct("...") ||
		prev.Kind == TemplateClose || prev.IsPunct(")") || prev.IsPunct("]")):
		return true
	case prev.IsPunct(".") && tok.Kind == Literal:
		return true
	case prev.Kind == Literal && tok.Kind == Punctuation:
		return strings.HasPrefix(tok.Lexeme, ".") ||
			strings.ContainsAny(tok.Lexeme[:1], "+-") && strings.ContainsAny(prev.Lexeme[len(prev.Lexeme)-1:], "eEpP")
	case isPunctLike(prev) && prev.Kind != TemplateClose && isPunctLike(tok):
		return wouldMerge(prev.Lexeme, tok.Lexeme)
	}

	return false
}

func isPunctLike(tok Token) bool {
	return tok.Kind == Punctuation || tok.Kind == TemplateOpen || tok.Kind == TemplateClose
}

// wouldMerge reports whether two adjacent punctuators would lex as a different, longer one.
func wouldMerge(first, second string) bool {
	joined := first + second
	if strings.HasPrefix(joined, "//") || strings.HasPrefix(joined, "/*") {
		return true
	}

	for _, punct := range punctuators {
		if len(punct) > len(first) && strings.HasPrefix(joined, punct) {
			return true
		}
	}

	return false
}

func isIdentStart(char rune) bool {
	return char == '_' || unicode.IsLetter(char)
}

func isDigit(char rune) bool {
	return char >= '0' && char <= '9'
}

func isAlnum(char byte) bool {
	return char >= '0' && char <= '9' || char >= 'a' && char <= 'z' || char >= 'A' && char <= 'Z'
}

// unexported variables.
//
//nolint:gochecknoglobals // fixed lookup tables
var (
	// punctuators is ordered longest first.
	punctuators = []string{
		"->*", "<<=", ">>=", "...",
		"::", "->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
		"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", ".*", "##",
		"{", "}", "[", "]", "(", ")", "<", ">", ";", ":", ",", ".", "?", "=",
		"+", "-", "*", "/", "%", "&", "|", "^", "!", "~", "#",
	}
	qualifiers = map[string]bool{"const": true, "volatile": true, "virtual": true, "inline": true}
	keywords   = map[string]bool{
		"alignas": true, "alignof": true, "auto": true, "bool": true, "char": true, "char8_t": true,
		"char16_t": true, "char32_t": true, "class": true, "concept": true, "const_cast": true,
		"consteval": true, "constexpr": true, "constinit": true, "decltype": true, "default": true,
		"delete": true, "double": true, "dynamic_cast": true, "enum": true, "explicit": true,
		"export": true, "extern": true, "false": true, "final": true, "float": true, "friend": true,
		"int": true, "long": true, "mutable": true, "namespace": true, "new": true, "noexcept": true,
		"nullptr": true, "operator": true, "override": true, "private": true, "protected": true,
		"public": true, "register": true, "reinterpret_cast": true, "requires": true, "return": true,
		"short": true, "signed": true, "sizeof": true, "static": true, "static_assert": true,
		"static_cast": true, "struct": true, "template": true, "this": true, "thread_local": true,
		"throw": true, "true": true, "typedef": true, "typeid": true, "typename": true, "union": true,
		"unsigned": true, "using": true, "void": true, "wchar_t": true,
	}
	castKeywords = map[string]bool{
		"const_cast": true, "dynamic_cast": true, "reinterpret_cast": true, "static_cast": true,
	}
	literalPrefixes = map[string]bool{
		"L": true, "u": true, "U": true, "u8": true, "R": true, "LR": true, "uR": true, "UR": true, "u8R": true,
	}
)
