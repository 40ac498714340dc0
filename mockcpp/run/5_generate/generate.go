// Package generate emits gmock mock classes for classified interfaces.
package generate

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
	lex "github.com/toejough/mockcpp/mockcpp/run/1_lex"
)

// Options controls naming and layout of the generated mock.
type Options struct {
	MockPrefix       string // default "Mock"
	CreateName       string // default "create"
	CreateStrictName string // default "createStrict"
	Indent           string // default four spaces
}

// DefaultOptions returns the options used when a field is left empty.
func DefaultOptions() Options {
	return Options{MockPrefix: "Mock", CreateName: "create", CreateStrictName: "createStrict", Indent: "    "}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()

	if o.MockPrefix == "" {
		o.MockPrefix = defaults.MockPrefix
	}

	if o.CreateName == "" {
		o.CreateName = defaults.CreateName
	}

	if o.CreateStrictName == "" {
		o.CreateStrictName = defaults.CreateStrictName
	}

	if o.Indent == "" {
		o.Indent = defaults.Indent
	}

	return o
}

// Mock is the generated code for one interface.
type Mock struct {
	Interface *model.Interface
	Name      string // unqualified mock class name, e.g. "MockI2"
	Class     string // the class definition alone
	Code      string // the class wrapped in its namespaces
}

// QualifiedName returns the mock name prefixed by the interface's namespaces.
func (m Mock) QualifiedName() string {
	if len(m.Interface.Scope) == 0 {
		return m.Name
	}

	return strings.Join(m.Interface.Scope, "::") + "::" + m.Name
}

// InternalError reports generator input that correct upstream stages never produce.
type InternalError struct {
	Interface string
	Pos       model.Position
	Msg       string
	Option    string // the Options field to change, set when a method name collides with a factory
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: internal consistency error in %s: %s", e.Pos, e.Interface, e.Msg)
}

// Unwrap lets errors.Is match model.ErrInternalConsistency.
func (e *InternalError) Unwrap() error {
	return model.ErrInternalConsistency
}

// Generator turns classified interfaces into mocks.
type Generator struct {
	templates *TemplateRegistry
	opts      Options
}

// New returns a generator. Empty option fields take their defaults.
func New(opts Options) *Generator {
	return &Generator{templates: NewTemplateRegistry(), opts: opts.withDefaults()}
}

// Generate emits the mock for one classified interface and verifies that re-parsing the emitted
// overrides recovers the interface's signatures.
func (g *Generator) Generate(ci model.ClassifiedInterface) (Mock, error) {
	err := validate(ci)
	if err != nil {
		return Mock{}, err
	}

	err = g.checkFactories(ci)
	if err != nil {
		return Mock{}, err
	}

	ci = withTemplateArgs(ci)
	iface := ci.Interface
	name := g.opts.MockPrefix + iface.Name

	data := classData{
		Name:         name,
		Base:         iface.Name,
		Create:       g.opts.CreateName,
		CreateStrict: g.opts.CreateStrictName,
		Indent:       g.opts.Indent,
	}

	if iface.IsTemplate() {
		data.TemplateHeader = templateHeader(iface.Template)
		data.Base = iface.Name + "<" + iface.TemplateArgs() + ">"
	}

	if iface.Destructor != nil {
		data.Destructor = "~" + name + "() = default;"
		if iface.Destructor.Virtual {
			data.Destructor = "~" + name + "() override = default;"
		}
	}

	for _, member := range ci.Members() {
		data.Members = append(data.Members, g.member(name, member)...)
	}

	var class bytes.Buffer

	g.templates.WriteClass(&class, data)

	var code bytes.Buffer

	g.templates.WriteNamespaceOpen(&code, iface.Scope)

	if len(iface.Scope) > 0 {
		code.WriteString("\n")
	}

	code.Write(class.Bytes())

	if len(iface.Scope) > 0 {
		code.WriteString("\n")
	}

	g.templates.WriteNamespaceClose(&code, iface.Scope)

	mock := Mock{Interface: iface, Name: name, Class: class.String(), Code: code.String()}

	err = VerifyRoundTrip(ci, mock)
	if err != nil {
		return Mock{}, err
	}

	return mock, nil
}

// checkFactories rejects a method whose name, or whose backing mock method, would be hidden by one
// of the static factories.
func (g *Generator) checkFactories(ci model.ClassifiedInterface) error {
	factories := []struct{ option, name string }{
		{option: "CreateName", name: g.opts.CreateName},
		{option: "CreateStrictName", name: g.opts.CreateStrictName},
	}

	for _, member := range ci.Members() {
		names := []string{member.Method.Name}
		if member.Method.NeedsForwarding() {
			names = append(names, member.Label)
		}

		for _, factory := range factories {
			if slices.Contains(names, factory.name) {
				return &InternalError{
					Interface: ci.Interface.QualifiedName(),
					Pos:       member.Method.Pos,
					Msg:       fmt.Sprintf("method %s collides with the %s factory", member.Method.Name, factory.name),
					Option:    factory.option,
				}
			}
		}
	}

	return nil
}

// withTemplateArgs spells a class template's own name with its arguments wherever a method type
// uses the injected class name: the mock derives from the template and cannot see that name.
func withTemplateArgs(ci model.ClassifiedInterface) model.ClassifiedInterface {
	iface := ci.Interface
	if !iface.IsTemplate() {
		return ci
	}

	spelled, err := lex.Tokenize(iface.Name, iface.Name+"<"+iface.TemplateArgs()+">")
	if err != nil {
		return ci
	}

	args := spelled[1 : len(spelled)-1]

	rewrite := func(method model.Method) model.Method {
		method.ReturnType = injectArgs(iface.Name, args, method.ReturnType)

		params := make([]model.Parameter, len(method.Params))
		for i, param := range method.Params {
			param.Type = injectArgs(iface.Name, args, param.Type)
			params[i] = param
		}

		method.Params = params

		return method
	}

	methods := make([]model.Method, len(iface.Methods))
	for i, method := range iface.Methods {
		methods[i] = rewrite(method)
	}

	groups := make([]model.OverloadGroup, len(ci.Groups))
	for i, group := range ci.Groups {
		members := make([]model.OverloadMember, len(group.Members))
		for j, member := range group.Members {
			member.Method = rewrite(member.Method)
			members[j] = member
		}

		group.Members = members
		groups[i] = group
	}

	return model.ClassifiedInterface{Interface: iface.WithMethods(methods), Groups: groups}
}

// injectArgs appends args after every bare, unqualified use of name in typ.
func injectArgs(name string, args []lex.Token, typ string) string {
	toks, err := lex.Tokenize(name, typ)
	if err != nil {
		return typ
	}

	var (
		out     []lex.Token
		changed bool
	)

	for i, tok := range toks {
		out = append(out, tok)

		if !tok.Is(lex.Identifier, name) ||
			(i > 0 && toks[i-1].IsPunct("::")) ||
			(i+1 < len(toks) && toks[i+1].Kind == lex.TemplateOpen) {
			continue
		}

		out = append(out, args...)
		changed = true
	}

	if !changed {
		return typ
	}

	return lex.Join(out)
}

// member renders the declarations for one interface method: a MOCK_METHOD overriding it directly,
// or a forwarding override followed by the MOCK_METHOD it calls.
func (g *Generator) member(mockName string, member model.OverloadMember) []string {
	method := member.Method

	var specs []string

	if method.Qualifiers.Const {
		specs = append(specs, "const")
	}

	if method.Noexcept {
		specs = append(specs, "noexcept")
	}

	if !method.NeedsForwarding() {
		if method.RefQualifier != "" {
			specs = append(specs, "ref("+method.RefQualifier+")")
		}

		specs = append(specs, "override")

		return []string{g.mockMethod(method, method.Name, specs)}
	}

	var (
		params []string
		args   []string
	)

	for i, param := range method.Params {
		arg := "arg" + strconv.Itoa(i)
		params = append(params, declare(param.Type, arg))
		args = append(args, forward(param.Type, arg))
	}

	if method.Variadic {
		params = append(params, "...")
	}

	var quals strings.Builder

	if method.Qualifiers.Const {
		quals.WriteString(" const")
	}

	if method.Qualifiers.Volatile {
		quals.WriteString(" volatile")
	}

	quals.WriteString(method.RefQualifier)

	if method.Noexcept {
		quals.WriteString(" noexcept")
	}

	target := ""

	if method.Qualifiers.Volatile {
		cast := mockName + "*"
		if method.Qualifiers.Const {
			cast = "const " + cast
		}

		target = "const_cast<" + cast + ">(this)->"
	}

	var forwarder bytes.Buffer

	g.templates.WriteForwarder(&forwarder, forwarderData{
		Return:     method.FullReturnType(),
		Name:       method.Name,
		Params:     strings.Join(params, ", "),
		Qualifiers: quals.String(),
		Target:     target,
		Label:      member.Label,
		Args:       strings.Join(args, ", "),
	})

	return []string{forwarder.String(), g.mockMethod(method, member.Label, specs)}
}

func (g *Generator) mockMethod(method model.Method, name string, specs []string) string {
	params := make([]string, len(method.Params))
	for i, param := range method.Params {
		params[i] = wrapCommas(param.Type)
	}

	var buf bytes.Buffer

	g.templates.WriteMockMethod(&buf, mockMethodData{
		Return: wrapCommas(method.FullReturnType()),
		Name:   name,
		Params: strings.Join(params, ", "),
		Specs:  strings.Join(specs, ", "),
	})

	return buf.String()
}

// wrapCommas parenthesizes a type containing a comma so the macro sees it as one argument.
func wrapCommas(typ string) string {
	if strings.Contains(typ, ",") {
		return "(" + typ + ")"
	}

	return typ
}

func templateHeader(params []model.TemplateParam) string {
	texts := make([]string, len(params))
	for i, param := range params {
		texts[i] = param.Text
	}

	return "template <" + strings.Join(texts, ", ") + ">"
}

// declare places a parameter name into a type: after the '*' or '&' of a function pointer or
// reference, before the bounds of an array, otherwise at the end.
func declare(typ, name string) string {
	depth := 0

	for i := 0; i < len(typ); i++ {
		switch typ[i] {
		case '<':
			depth++
		case '>':
			if i == 0 || typ[i-1] != '-' {
				depth--
			}
		case '(':
			if depth == 0 && i+2 < len(typ) && (typ[i+1] == '*' || typ[i+1] == '&') && typ[i+2] == ')' {
				return typ[:i+2] + name + typ[i+2:]
			}
		case '[':
			if depth == 0 {
				return typ[:i] + " " + name + typ[i:]
			}
		}
	}

	return typ + " " + name
}

// forward passes a parameter on with its value category preserved. Arrays decay and are passed as is.
func forward(typ, arg string) string {
	if strings.HasSuffix(typ, "]") {
		return arg
	}

	return "std::forward<" + typ + ">(" + arg + ")"
}

// validate checks the invariants the classifier establishes.
func validate(ci model.ClassifiedInterface) error {
	iface := ci.Interface
	if iface == nil {
		return &InternalError{Interface: "<nil>", Msg: "classified interface has no interface"}
	}

	fail := func(pos model.Position, format string, args ...any) error {
		return &InternalError{Interface: iface.QualifiedName(), Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}

	seen := make([]bool, len(iface.Methods))
	direct := make(map[string]bool)
	labels := make(map[string]bool)

	for _, grp := range ci.Groups {
		for _, member := range grp.Members {
			method := member.Method

			if member.Index < 0 || member.Index >= len(iface.Methods) || seen[member.Index] {
				return fail(method.Pos, "overload member %s has index %d", method.SignatureKey(), member.Index)
			}

			seen[member.Index] = true

			if !method.Qualifiers.Virtual {
				return fail(method.Pos, "method %s has no normalized qualifiers", method.SignatureKey())
			}

			if method.Operator != model.OpNone && !method.Operator.Valid() {
				return fail(method.Pos, "method %s has unknown operator kind %d", method.SignatureKey(), method.Operator)
			}

			if method.NeedsForwarding() {
				if member.Label == "" || labels[member.Label] {
					return fail(method.Pos, "method %s has unusable label %q", method.SignatureKey(), member.Label)
				}

				labels[member.Label] = true
			} else {
				direct[method.Name] = true
			}
		}
	}

	for i, ok := range seen {
		if !ok {
			return fail(iface.Methods[i].Pos, "method %s belongs to no overload group", iface.Methods[i].SignatureKey())
		}
	}

	for label := range labels {
		if direct[label] {
			return fail(iface.Pos, "forwarding label %q collides with a method name", label)
		}
	}

	return nil
}
