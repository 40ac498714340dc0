package parse

import (
	"fmt"
	"slices"

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
	lex "github.com/toejough/mockcpp/mockcpp/run/1_lex"
)

// method parses a pure virtual method declaration and appends it to the interface.
func (p *parser) method(iface *model.Interface) error {
	start := p.peek()

	method, err := p.declarator()
	if err != nil {
		return err
	}

	tok := p.peek()

	switch {
	case tok.IsPunct("="):
		p.next()

		zero := p.next()
		if !zero.Is(lex.Literal, "0") {
			return p.unexpected(zero, "'0'")
		}

		_, err = p.expectPunct(";")
		if err != nil {
			return err
		}
	case tok.IsPunct(";"), tok.IsPunct("{"):
		return &Error{
			Kind:  MissingPureSpecifier,
			Pos:   method.Pos,
			Found: tok.String(),
			Msg:   fmt.Sprintf("method %s of %s is not pure virtual; declare it '= 0'", method.Name, iface.Name),
		}
	default:
		return p.unexpected(tok, "'= 0'")
	}

	if !slices.ContainsFunc(method.RawQualifiers, func(q model.QualifierToken) bool {
		return q.Kind == model.QualVirtual
	}) {
		return p.unsupported(start, "method %s of %s must be declared 'virtual'", method.Name, iface.Name)
	}

	iface.Methods = append(iface.Methods, method)

	return nil
}

// declarator parses qualifiers, return type, name, parameters and trailing qualifiers.
func (p *parser) declarator() (model.Method, error) {
	var method model.Method

	p.skipAttributes()

	method.Pos = p.peek().Pos

	returnType, err := p.head(&method)
	if err != nil {
		return method, err
	}

	method.Params, method.Variadic, err = p.params()
	if err != nil {
		return method, err
	}

	err = p.trailing(&method, &returnType)
	if err != nil {
		return method, err
	}

	if len(returnType) == 0 {
		return method, p.unexpected(p.peek(), "return type")
	}

	method.ReturnType = lex.Join(returnType)

	return method, nil
}

// head parses everything before the parameter list: the qualifier multiset, the return type tokens
// and the method name.
func (p *parser) head(method *model.Method) ([]lex.Token, error) {
	var returnType []lex.Token

	for {
		tok := p.peek()

		switch {
		case tok.IsPunct("[") && p.peekAt(1).IsPunct("["):
			p.skipAttributes()
		case tok.Kind == lex.Qualifier:
			kind, _ := model.QualifierKindFromKeyword(tok.Lexeme)

			// cv after the first type token belongs to the type: "int const", "T* const"
			if (kind == model.QualConst || kind == model.QualVolatile) && len(returnType) > 0 {
				returnType = append(returnType, p.next())

				continue
			}

			method.RawQualifiers = append(method.RawQualifiers,
				model.QualifierToken{Kind: kind, Site: model.SiteHead, Pos: tok.Pos})

			p.next()
		case tok.Kind == lex.Keyword && rejectedSpecifiers[tok.Lexeme]:
			return nil, p.unsupported(tok, "'%s' member functions cannot be mocked", tok.Lexeme)
		case tok.IsKeyword("operator"):
			if len(returnType) == 0 {
				return nil, p.unsupported(tok, "conversion operators cannot be mocked")
			}

			return returnType, p.operatorName(method)
		case tok.Kind == lex.Identifier && p.peekAt(1).IsPunct("(") && hasTypeCore(returnType) &&
			!returnType[len(returnType)-1].IsPunct("::"):
			method.Name = p.next().Lexeme

			return returnType, nil
		case tok.IsKeyword("decltype") && p.peekAt(1).IsPunct("("):
			returnType = append(returnType, p.next())

			inner, err := p.balanced()
			if err != nil {
				return nil, err
			}

			returnType = append(returnType, p.toks[p.pos-len(inner)-2:p.pos]...)
		case tok.Kind == lex.TemplateOpen:
			inner, err := p.balanced()
			if err != nil {
				return nil, err
			}

			returnType = append(returnType, p.toks[p.pos-len(inner)-2:p.pos]...)
		case tok.Kind == lex.Identifier, tok.Kind == lex.Keyword && typeKeywords[tok.Lexeme],
			tok.IsPunct("::"), tok.IsPunct("*"), tok.IsPunct("&"), tok.IsPunct("&&"):
			returnType = append(returnType, p.next())
		case tok.IsPunct("(") && len(returnType) > 0:
			return nil, p.unsupported(tok, "methods returning function pointers need a type alias")
		default:
			if len(returnType) == 0 {
				return nil, p.unexpected(tok, "return type")
			}

			return nil, p.unexpected(tok, "method name")
		}
	}
}

// operatorName parses the spelling after the operator keyword.
func (p *parser) operatorName(method *model.Method) error {
	opTok := p.next()
	tok := p.peek()

	var spelling string

	switch {
	case tok.IsPunct("(") && p.peekAt(1).IsPunct(")"):
		spelling = "()"
		p.pos += 2
	case tok.IsPunct("[") && p.peekAt(1).IsPunct("]"):
		spelling = "[]"
		p.pos += 2
	case tok.Kind == lex.Punctuation:
		spelling = tok.Lexeme
		p.next()
	case tok.IsKeyword("new"), tok.IsKeyword("delete"):
		return p.unsupported(tok, "operator %s cannot be mocked", tok.Lexeme)
	case tok.Kind == lex.Literal:
		return p.unsupported(tok, "user-defined literal operators cannot be mocked")
	default:
		return p.unsupported(tok, "conversion operators cannot be mocked")
	}

	kind, ok := model.OperatorFromSpelling(spelling)
	if !ok {
		return p.unsupported(opTok, "operator%s cannot be overloaded", spelling)
	}

	method.Name = "operator" + spelling
	method.Operator = kind

	if !p.peek().IsPunct("(") {
		return p.unexpected(p.peek(), "'('")
	}

	return nil
}

// trailing parses cv and ref qualifiers, noexcept, override and a trailing return type.
func (p *parser) trailing(method *model.Method, returnType *[]lex.Token) error {
	for {
		tok := p.peek()

		switch {
		case tok.Is(lex.Qualifier, "const"), tok.Is(lex.Qualifier, "volatile"):
			kind, _ := model.QualifierKindFromKeyword(tok.Lexeme)
			method.RawQualifiers = append(method.RawQualifiers,
				model.QualifierToken{Kind: kind, Site: model.SiteTrailing, Pos: tok.Pos})

			p.next()
		case tok.IsPunct("&"), tok.IsPunct("&&"):
			if method.RefQualifier != "" {
				return p.unexpected(tok, "a single ref-qualifier")
			}

			method.RefQualifier = p.next().Lexeme
		case tok.IsKeyword("noexcept"):
			err := p.noexcept(method)
			if err != nil {
				return err
			}
		case tok.IsKeyword("override"):
			p.next()
		case tok.IsKeyword("final"):
			return p.unsupported(tok, "final methods cannot be mocked")
		case tok.IsKeyword("throw"):
			return p.unsupported(tok, "dynamic exception specifications are not supported; use noexcept")
		case tok.IsPunct("->"):
			if len(*returnType) != 1 || !(*returnType)[0].IsKeyword("auto") {
				return p.unexpected(tok, "'auto' return type before trailing return type")
			}

			p.next()

			*returnType = p.trailingReturnType()
		case tok.IsPunct("[") && p.peekAt(1).IsPunct("["):
			p.skipAttributes()
		default:
			return nil
		}
	}
}

func (p *parser) noexcept(method *model.Method) error {
	p.next()

	method.Noexcept = true

	if !p.peek().IsPunct("(") {
		return nil
	}

	open := p.peek()

	inner, err := p.balanced()
	if err != nil {
		return err
	}

	switch {
	case len(inner) == 1 && inner[0].IsKeyword("true"):
	case len(inner) == 1 && inner[0].IsKeyword("false"):
		method.Noexcept = false
	default:
		return p.unsupported(open, "only noexcept(true) and noexcept(false) are supported")
	}

	return nil
}

func (p *parser) trailingReturnType() []lex.Token {
	var toks []lex.Token

	depth := 0

	for {
		tok := p.peek()

		switch {
		case tok.Kind == lex.EOF:
			return toks
		case isOpener(tok):
			depth++
		case isCloser(tok):
			depth--
		case depth == 0 && (tok.IsPunct("=") || tok.IsPunct(";") || tok.IsPunct("{") ||
			tok.IsKeyword("override") || tok.IsKeyword("final") || tok.IsKeyword("noexcept")):
			return toks
		}

		toks = append(toks, p.next())
	}
}

// params parses a parenthesized parameter list. A trailing "..." marks a C variadic method.
func (p *parser) params() ([]model.Parameter, bool, error) {
	open := p.peek()
	if !open.IsPunct("(") {
		return nil, false, p.unexpected(open, "'('")
	}

	inner, err := p.balanced()
	if err != nil {
		return nil, false, err
	}

	if len(inner) == 0 || (len(inner) == 1 && inner[0].IsKeyword("void")) {
		return nil, false, nil
	}

	groups := splitTopLevel(inner)
	params := make([]model.Parameter, 0, len(groups))
	variadic := false

	for idx, group := range groups {
		if len(group) == 1 && group[0].IsPunct("...") {
			if idx != len(groups)-1 {
				return nil, false, p.unexpected(group[0], "')'")
			}

			variadic = true

			continue
		}

		param, err := parameter(group, open)
		if err != nil {
			return nil, false, err
		}

		params = append(params, param)
	}

	return params, variadic, nil
}

// parameter splits one parameter into type, name and default argument.
func parameter(group []lex.Token, open lex.Token) (model.Parameter, error) {
	group = withoutAttributes(group)
	if len(group) == 0 {
		return model.Parameter{}, &Error{Kind: UnexpectedToken, Pos: open.Pos, Expected: "parameter type", Found: "','"}
	}

	var param model.Parameter

	if idx := slices.IndexFunc(group, func(tok lex.Token) bool { return tok.IsPunct("=") }); idx >= 0 {
		if idx == len(group)-1 {
			return param, &Error{Kind: UnexpectedToken, Pos: group[idx].Pos, Expected: "default argument", Found: "end of parameter"}
		}

		param.Default = lex.Join(group[idx+1:])
		group = group[:idx]
	}

	typeToks, name := splitName(group)
	if len(typeToks) == 0 {
		return param, &Error{Kind: UnexpectedToken, Pos: group[0].Pos, Expected: "parameter type", Found: group[0].String()}
	}

	param.Type = lex.Join(typeToks)
	param.Name = name

	return param, nil
}

// splitName separates a declarator name from the type tokens of a parameter.
func splitName(toks []lex.Token) ([]lex.Token, string) {
	// function pointer or reference: R (*name)(args)
	for idx := 0; idx+3 < len(toks); idx++ {
		if toks[idx].IsPunct("(") && (toks[idx+1].IsPunct("*") || toks[idx+1].IsPunct("&")) &&
			toks[idx+2].Kind == lex.Identifier && toks[idx+3].IsPunct(")") {
			return without(toks, idx+2), toks[idx+2].Lexeme
		}
	}

	// array: T name[N]
	end := len(toks)
	for end > 0 && toks[end-1].IsPunct("]") {
		open := slices.IndexFunc(toks[:end], func(tok lex.Token) bool { return tok.IsPunct("[") })
		if open < 0 {
			break
		}

		end = open
	}

	if end == 0 {
		return toks, ""
	}

	last := end - 1
	if toks[last].Kind != lex.Identifier || !hasTypeCore(toks[:last]) || toks[last-1].IsPunct("::") {
		return toks, ""
	}

	return without(toks, last), toks[last].Lexeme
}

func without(toks []lex.Token, idx int) []lex.Token {
	out := make([]lex.Token, 0, len(toks)-1)
	out = append(out, toks[:idx]...)

	return append(out, toks[idx+1:]...)
}

func withoutAttributes(toks []lex.Token) []lex.Token {
	for len(toks) > 1 && toks[0].IsPunct("[") && toks[1].IsPunct("[") {
		end := slices.IndexFunc(toks, func(tok lex.Token) bool { return tok.IsPunct("]") })
		if end < 0 || end+1 >= len(toks) {
			return toks
		}

		toks = toks[end+2:]
	}

	return toks
}

// hasTypeCore reports whether toks name a type, not just cv qualifiers or an elaborated-type keyword.
func hasTypeCore(toks []lex.Token) bool {
	return slices.ContainsFunc(toks, func(tok lex.Token) bool {
		return tok.Kind == lex.Identifier || tok.Kind == lex.Keyword && typeKeywords[tok.Lexeme] &&
			!elaborated[tok.Lexeme]
	})
}

// unexported variables.
//
//nolint:gochecknoglobals // fixed lookup tables
var (
	typeKeywords = map[string]bool{
		"auto": true, "bool": true, "char": true, "char8_t": true, "char16_t": true, "char32_t": true,
		"class": true, "double": true, "enum": true, "float": true, "int": true, "long": true,
		"short": true, "signed": true, "struct": true, "typename": true, "union": true,
		"unsigned": true, "void": true, "wchar_t": true,
	}
	elaborated = map[string]bool{
		"class": true, "enum": true, "struct": true, "typename": true, "union": true,
	}
	rejectedSpecifiers = map[string]bool{
		"static": true, "friend": true, "constexpr": true, "consteval": true, "extern": true,
		"mutable": true, "thread_local": true, "register": true,
	}
)
