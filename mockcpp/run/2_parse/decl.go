package parse

import (
	"slices"
	"strings"

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
	lex "github.com/toejough/mockcpp/mockcpp/run/1_lex"
)

// namespaceBody parses declarations until EOF, or until the closing brace when nested.
func (p *parser) namespaceBody(ns *model.Namespace, scope []string, nested bool) error {
	for {
		tok := p.peek()

		switch {
		case tok.Kind == lex.EOF:
			if nested {
				return p.unexpected(tok, "'}'")
			}

			return nil
		case tok.IsPunct("}"):
			if !nested {
				return p.unexpected(tok, "declaration")
			}

			p.next()

			return nil
		case tok.Kind == lex.Directive, tok.IsPunct(";"):
			p.next()
		case tok.IsPunct("[") && p.peekAt(1).IsPunct("["):
			p.skipAttributes()
		case tok.IsKeyword("namespace"), tok.Is(lex.Qualifier, "inline") && p.peekAt(1).IsKeyword("namespace"):
			err := p.namespaceDecl(ns, scope)
			if err != nil {
				return err
			}
		case tok.IsKeyword("using"), tok.IsKeyword("typedef"), tok.IsKeyword("static_assert"), tok.IsKeyword("enum"):
			err := p.skipDeclaration()
			if err != nil {
				return err
			}
		case tok.IsKeyword("template"):
			err := p.templateDecl(ns, scope)
			if err != nil {
				return err
			}
		case tok.IsKeyword("class"), tok.IsKeyword("struct"):
			err := p.classDecl(ns, scope, nil)
			if err != nil {
				return err
			}
		default:
			return p.unsupported(tok, "only namespaces, classes and class templates may be declared at namespace scope")
		}
	}
}

func (p *parser) namespaceDecl(parent *model.Namespace, scope []string) error {
	if p.peek().Is(lex.Qualifier, "inline") {
		p.next()
	}

	nsTok := p.next()

	p.skipAttributes()

	var names []string

	for {
		if p.peek().Is(lex.Qualifier, "inline") {
			p.next()
		}

		tok := p.peek()
		if tok.IsPunct("{") && len(names) == 0 {
			return p.unsupported(tok, "anonymous namespaces cannot be reopened by a generated mock")
		}

		if tok.Kind != lex.Identifier {
			return p.unexpected(tok, "namespace name")
		}

		names = append(names, p.next().Lexeme)

		if !p.acceptPunct("::") {
			break
		}
	}

	_, err := p.expectPunct("{")
	if err != nil {
		return err
	}

	inner := parent
	for _, name := range names {
		child := &model.Namespace{Name: name, Pos: nsTok.Pos}
		inner.Members = append(inner.Members, child)
		inner = child
	}

	return p.namespaceBody(inner, append(slices.Clone(scope), names...), true)
}

// templateDecl parses "template <params> class ...".
func (p *parser) templateDecl(ns *model.Namespace, scope []string) error {
	tmplTok := p.next()

	if p.peek().Kind != lex.TemplateOpen {
		return p.unexpected(p.peek(), "'<'")
	}

	inner, err := p.balanced()
	if err != nil {
		return err
	}

	if len(inner) == 0 {
		return p.unsupported(tmplTok, "template specializations are not supported")
	}

	params := make([]model.TemplateParam, 0, len(inner))

	for _, group := range splitTopLevel(inner) {
		param, err := templateParam(group)
		if err != nil {
			return err
		}

		params = append(params, param)
	}

	tok := p.peek()
	if !tok.IsKeyword("class") && !tok.IsKeyword("struct") {
		return p.unsupported(tok, "only class templates may be declared at namespace scope")
	}

	return p.classDecl(ns, scope, params)
}

func templateParam(group []lex.Token) (model.TemplateParam, error) {
	if len(group) == 0 {
		return model.TemplateParam{}, &Error{Kind: UnexpectedToken, Expected: "template parameter", Found: "','"}
	}

	param := model.TemplateParam{Kind: model.TemplateParamNonType, Text: lex.Join(group)}

	first := group[0]
	if first.IsKeyword("typename") || first.IsKeyword("class") || first.IsKeyword("template") {
		param.Kind = model.TemplateParamType
	}

	head := group
	if idx := slices.IndexFunc(group, func(tok lex.Token) bool { return tok.IsPunct("=") }); idx >= 0 {
		head = group[:idx]
	}

	for _, tok := range head {
		switch {
		case tok.IsPunct("..."):
			param.Pack = true
		case tok.Kind == lex.Identifier:
			param.Name = tok.Lexeme
		}
	}

	// "template <Foo>" declares an unnamed parameter of type Foo
	if param.Name == "" || (len(head) == 1 && param.Kind == model.TemplateParamNonType) {
		return param, &Error{
			Kind:  UnsupportedConstruct,
			Pos:   first.Pos,
			Found: first.String(),
			Msg:   "template parameters must be named so the mock can forward them",
		}
	}

	return param, nil
}

// classDecl parses a class or struct definition and records it as an interface.
func (p *parser) classDecl(ns *model.Namespace, scope []string, template []model.TemplateParam) error {
	keyTok := p.next()
	public := keyTok.IsKeyword("struct")

	p.skipAttributes()

	nameTok := p.peek()
	if nameTok.Kind != lex.Identifier {
		return p.unexpected(nameTok, "class name")
	}

	p.next()

	switch tok := p.peek(); {
	case tok.IsPunct(";"):
		p.next()

		return nil // forward declaration
	case tok.Kind == lex.TemplateOpen:
		return p.unsupported(tok, "template specializations are not supported")
	case tok.IsPunct("::"):
		return p.unsupported(tok, "qualified class names are not supported")
	case tok.IsKeyword("final"):
		return p.unsupported(tok, "final class %s cannot be mocked", nameTok.Lexeme)
	}

	iface := &model.Interface{
		Name:     nameTok.Lexeme,
		Scope:    slices.Clone(scope),
		Template: template,
		Pos:      nameTok.Pos,
	}

	var base *model.Interface

	if p.acceptPunct(":") {
		var err error

		base, err = p.baseClause(iface, keyTok.IsKeyword("struct"))
		if err != nil {
			return err
		}
	}

	_, err := p.expectPunct("{")
	if err != nil {
		return err
	}

	err = p.classBody(iface, public)
	if err != nil {
		return err
	}

	_, err = p.expectPunct(";")
	if err != nil {
		return err
	}

	if base != nil {
		inherit(iface, base)
	}

	p.declared[iface.QualifiedName()] = iface
	ns.Members = append(ns.Members, iface)

	return nil
}

// baseClause parses the base specifier list and resolves the single allowed base.
func (p *parser) baseClause(iface *model.Interface, publicDefault bool) (*model.Interface, error) {
	first := p.peek()

	var toks []lex.Token

	public := publicDefault

	for done := false; !done; {
		tok := p.peek()

		switch {
		case tok.Kind == lex.EOF:
			return nil, p.unexpected(tok, "'{'")
		case tok.IsPunct("{"):
			done = true
		case tok.IsPunct(","):
			return nil, p.unsupported(tok, "multiple inheritance is not supported")
		case tok.Is(lex.Qualifier, "virtual"):
			return nil, p.unsupported(tok, "virtual base classes are not supported")
		case tok.IsKeyword("public"):
			public = true

			p.next()
		case tok.IsKeyword("private"), tok.IsKeyword("protected"):
			return nil, p.unsupported(tok, "%s inheritance is not supported; derive publicly", tok.Lexeme)
		case tok.Kind == lex.TemplateOpen:
			return nil, p.unsupported(tok, "templated base classes are not supported")
		default:
			toks = append(toks, p.next())
		}
	}

	if len(toks) == 0 {
		return nil, p.unexpected(p.peek(), "base class name")
	}

	if !public {
		return nil, p.unsupported(first, "private inheritance is not supported; derive publicly")
	}

	iface.Base = lex.Join(toks)

	base := p.lookup(iface.Scope, iface.Base)
	if base == nil {
		return nil, p.unsupported(first,
			"base class %s must be an interface declared earlier in the same file", iface.Base)
	}

	if base.IsTemplate() {
		return nil, p.unsupported(first, "templated base classes are not supported")
	}

	return base, nil
}

// lookup resolves a possibly qualified class name from scope outwards.
func (p *parser) lookup(scope []string, name string) *model.Interface {
	if strings.HasPrefix(name, "::") {
		return p.declared[strings.TrimPrefix(name, "::")]
	}

	for depth := len(scope); depth >= 0; depth-- {
		key := name
		if depth > 0 {
			key = strings.Join(scope[:depth], "::") + "::" + name
		}

		if found, ok := p.declared[key]; ok {
			return found
		}
	}

	return nil
}

// inherit prepends the base's methods, dropping those the derived class redeclares.
func inherit(iface, base *model.Interface) {
	own := make(map[string]bool, len(iface.Methods))
	for _, method := range iface.Methods {
		own[method.SignatureKey()] = true
	}

	methods := make([]model.Method, 0, len(base.Methods)+len(iface.Methods))

	for _, method := range base.Methods {
		if !own[method.SignatureKey()] {
			methods = append(methods, method)
		}
	}

	iface.Methods = append(methods, iface.Methods...)

	if iface.Destructor == nil && base.Destructor != nil {
		inherited := *base.Destructor
		iface.Destructor = &inherited
	}
}

// classBody parses members through the closing brace.
func (p *parser) classBody(iface *model.Interface, public bool) error {
	for {
		tok := p.peek()

		switch {
		case tok.IsPunct("}"):
			p.next()

			return nil
		case tok.Kind == lex.EOF:
			return p.unexpected(tok, "'}'")
		case tok.Kind == lex.Directive:
			return p.unsupported(tok, "preprocessor directives are not supported inside an interface body")
		case tok.IsKeyword("public") && p.peekAt(1).IsPunct(":"):
			public = true
			p.pos += 2
		case (tok.IsKeyword("private") || tok.IsKeyword("protected")) && p.peekAt(1).IsPunct(":"):
			return p.unsupported(tok, "%s sections are not supported; interface members must be public", tok.Lexeme)
		case tok.IsPunct(";"):
			p.next()
		case !public:
			return p.unsupported(tok, "members of class %s are private; add 'public:'", iface.Name)
		default:
			err := p.member(iface)
			if err != nil {
				return err
			}
		}
	}
}

// member parses one member declaration.
func (p *parser) member(iface *model.Interface) error {
	p.skipAttributes()

	tok := p.peek()

	switch {
	case tok.IsKeyword("using"), tok.IsKeyword("typedef"), tok.IsKeyword("static_assert"):
		return p.skipDeclaration()
	case tok.IsKeyword("friend"):
		return p.unsupported(tok, "friend declarations are not supported")
	case tok.IsKeyword("template"):
		return p.unsupported(tok, "member templates cannot be mocked")
	case tok.IsKeyword("class"), tok.IsKeyword("struct"), tok.IsKeyword("enum"), tok.IsKeyword("union"):
		return p.unsupported(tok, "nested types are not supported")
	}

	if p.isDestructor() {
		return p.destructor(iface)
	}

	if p.defaultedOrDeleted() {
		return p.skipDeclaration()
	}

	if (tok.Kind == lex.Identifier && tok.Lexeme == iface.Name && p.peekAt(1).IsPunct("(")) ||
		tok.IsKeyword("explicit") {
		return p.unsupported(tok, "constructors must be '= default' or '= delete' in an interface")
	}

	return p.method(iface)
}

// defaultedOrDeleted reports whether the member at the cursor ends with "= default;" or "= delete;".
func (p *parser) defaultedOrDeleted() bool {
	depth := 0

	for idx := p.pos; idx < len(p.toks); idx++ {
		tok := p.toks[idx]

		switch {
		case tok.Kind == lex.EOF, tok.IsPunct("{") && depth == 0:
			return false
		case isOpener(tok):
			depth++
		case isCloser(tok):
			depth--
		case tok.IsPunct(";") && depth == 0:
			if idx-2 < p.pos {
				return false
			}

			last := p.toks[idx-1]

			return p.toks[idx-2].IsPunct("=") && (last.IsKeyword("default") || last.IsKeyword("delete"))
		}
	}

	return false
}

func (p *parser) isDestructor() bool {
	for offset := 0; ; offset++ {
		tok := p.peekAt(offset)

		switch {
		case tok.Is(lex.Qualifier, "virtual"), tok.Is(lex.Qualifier, "inline"):
			continue
		case tok.IsPunct("~"):
			return true
		default:
			return false
		}
	}
}

// destructor parses "[virtual] ~Name() [noexcept] [override]" followed by ';', '= 0;', '= default;' or a body.
func (p *parser) destructor(iface *model.Interface) error {
	dtor := &model.Destructor{Pos: p.peek().Pos}

	for !p.peek().IsPunct("~") {
		if p.next().Lexeme == "virtual" {
			dtor.Virtual = true
		}
	}

	p.next()

	nameTok := p.next()
	if nameTok.Kind != lex.Identifier || nameTok.Lexeme != iface.Name {
		return p.unexpected(nameTok, "'"+iface.Name+"'")
	}

	if !p.peek().IsPunct("(") {
		return p.unexpected(p.peek(), "'('")
	}

	inner, err := p.balanced()
	if err != nil {
		return err
	}

	if len(inner) > 1 || (len(inner) == 1 && !inner[0].IsKeyword("void")) {
		return p.unexpected(inner[0], "')'")
	}

	for {
		tok := p.peek()

		switch {
		case tok.IsKeyword("override"):
			dtor.Virtual = true

			p.next()
		case tok.IsKeyword("noexcept"):
			p.next()

			if p.peek().IsPunct("(") {
				_, err = p.balanced()
				if err != nil {
					return err
				}
			}
		case tok.IsPunct("{"):
			_, err = p.balanced()
			if err != nil {
				return err
			}

			p.acceptPunct(";")
			iface.Destructor = dtor

			return nil
		case tok.IsPunct("="):
			p.next()

			body := p.next()
			if body.IsKeyword("delete") {
				return p.unsupported(body, "deleted destructors cannot be mocked")
			}

			if !body.Is(lex.Literal, "0") && !body.IsKeyword("default") {
				return p.unexpected(body, "'0' or 'default'")
			}

			_, err = p.expectPunct(";")
			if err != nil {
				return err
			}

			iface.Destructor = dtor

			return nil
		case tok.IsPunct(";"):
			p.next()

			iface.Destructor = dtor

			return nil
		default:
			return p.unexpected(tok, "';'")
		}
	}
}
