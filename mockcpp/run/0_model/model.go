// Package model holds the data shared by every stage of the mockcpp pipeline: source positions, the
// declaration tree produced by the parser, normalized qualifiers and overload groups.
//
// Values in this package are built once by the stage that owns them and never mutated afterwards. Later
// stages derive new values (see the With* helpers) instead of editing earlier ones.
package model

import (
	"fmt"
	"iter"
	"strings"

	"github.com/cockroachdb/errors"
)

// Exported variables.
var (
	// ErrLex marks malformed tokens.
	ErrLex = errors.New("lex error")
	// ErrParse marks grammar violations: unsupported constructs, missing purity, access level, inheritance.
	ErrParse = errors.New("parse error")
	// ErrDuplicateDeclaration marks two pure virtual methods with the same signature.
	ErrDuplicateDeclaration = errors.New("duplicate declaration")
	// ErrInternalConsistency marks a generator invariant broken by an upstream defect.
	ErrInternalConsistency = errors.New("internal consistency error")
)

// Position locates a byte in a source file. Line and Column are 1-based.
type Position struct {
	File   string
	Offset int
	Line   int
	Column int
}

// String renders the position as file:line:col.
func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}

	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// File is the parse result for one header.
type File struct {
	Path string
	Root *Namespace
}

// Interfaces yields every interface in the file in declaration order, depth first.
func (f *File) Interfaces() iter.Seq[*Interface] {
	return func(yield func(*Interface) bool) {
		if f == nil || f.Root == nil {
			return
		}

		f.Root.walk(yield)
	}
}

// Member is either a *Namespace or an *Interface.
type Member interface {
	isMember()
}

// Namespace is a scoping container. The root namespace of a file has an empty name.
type Namespace struct {
	Name    string
	Members []Member
	Pos     Position
}

func (*Namespace) isMember() {}

func (n *Namespace) walk(yield func(*Interface) bool) bool {
	for _, member := range n.Members {
		switch typed := member.(type) {
		case *Namespace:
			if !typed.walk(yield) {
				return false
			}
		case *Interface:
			if !yield(typed) {
				return false
			}
		}
	}

	return true
}

// TemplateParamKind tells type parameters from non-type parameters.
type TemplateParamKind int

// TemplateParamKind values.
const (
	TemplateParamType TemplateParamKind = iota
	TemplateParamNonType
)

// TemplateParam is one entry of a template parameter list, kept as opaque text.
type TemplateParam struct {
	Kind TemplateParamKind
	Name string
	Text string // verbatim, including any default argument
	Pack bool
}

// Destructor records a declared destructor.
type Destructor struct {
	Virtual bool
	Pos     Position
}

// Interface is a class or class template whose methods are all pure virtual.
type Interface struct {
	Name       string
	Scope      []string        // enclosing namespaces, outermost first
	Template   []TemplateParam // nil for plain classes
	Base       string          // verbatim base specifier type, empty without a base
	Methods    []Method
	Destructor *Destructor
	Pos        Position
}

func (*Interface) isMember() {}

// IsTemplate reports whether the interface is a class template.
func (i *Interface) IsTemplate() bool {
	return i.Template != nil
}

// QualifiedName returns the interface name prefixed by its namespaces, e.g. "n1::I2".
func (i *Interface) QualifiedName() string {
	if len(i.Scope) == 0 {
		return i.Name
	}

	return strings.Join(i.Scope, "::") + "::" + i.Name
}

// TemplateArgs returns the argument list naming every template parameter, e.g. "Elem, Ts...".
func (i *Interface) TemplateArgs() string {
	args := make([]string, 0, len(i.Template))

	for _, param := range i.Template {
		arg := param.Name
		if param.Pack {
			arg += "..."
		}

		args = append(args, arg)
	}

	return strings.Join(args, ", ")
}

// WithMethods returns a copy of the interface carrying the given methods.
func (i *Interface) WithMethods(methods []Method) *Interface {
	clone := *i
	clone.Methods = methods

	return &clone
}

// Parameter is one entry of a method parameter list.
type Parameter struct {
	Type    string // verbatim type expression, without the parameter name
	Name    string // empty when unnamed
	Default string // verbatim default argument, never evaluated
}

// Method is a pure virtual method declaration.
type Method struct {
	Name          string       // identifier; for operators, "operator" followed by the spelling
	Operator      OperatorKind // OpNone for plain identifiers
	ReturnType    string       // verbatim, without leading cv qualifiers (see Qualifiers.Return*)
	Params        []Parameter
	Variadic      bool   // C-style trailing "..."
	RefQualifier  string // "", "&" or "&&"
	Noexcept      bool
	RawQualifiers []QualifierToken // as captured by the parser, in source order
	Qualifiers    Qualifiers       // filled in by the qualifier normalizer
	Pos           Position
}

// ParamTypes returns the parameter types in order.
func (m Method) ParamTypes() []string {
	types := make([]string, len(m.Params))
	for i, param := range m.Params {
		types[i] = param.Type
	}

	return types
}

// FullReturnType returns the return type with its normalized cv qualifiers in canonical order.
func (m Method) FullReturnType() string {
	var prefix strings.Builder

	if m.Qualifiers.ReturnConst {
		prefix.WriteString("const ")
	}

	if m.Qualifiers.ReturnVolatile {
		prefix.WriteString("volatile ")
	}

	return prefix.String() + m.ReturnType
}

// NeedsForwarding reports whether the mock macro cannot declare this method directly, so the mock
// carries an explicit override that forwards to a mock method named by the overload label.
func (m Method) NeedsForwarding() bool {
	return m.Operator != OpNone || m.Qualifiers.Volatile || m.Variadic
}

// SignatureKey identifies the method for overload purposes: name, cv, ref-qualifier and parameter types.
func (m Method) SignatureKey() string {
	var key strings.Builder

	key.WriteString(m.Name)
	key.WriteString("(")
	key.WriteString(strings.Join(m.ParamTypes(), ", "))

	if m.Variadic {
		key.WriteString(", ...")
	}

	key.WriteString(")")

	if m.Qualifiers.Const || hasQualifier(m.RawQualifiers, QualConst, SiteTrailing) {
		key.WriteString(" const")
	}

	if m.Qualifiers.Volatile || hasQualifier(m.RawQualifiers, QualVolatile, SiteTrailing) {
		key.WriteString(" volatile")
	}

	key.WriteString(m.RefQualifier)

	return key.String()
}

// Signature is the (name, constness, parameter types) view of a method used to compare a mock with
// its interface.
type Signature struct {
	Name       string
	Const      bool
	ParamTypes []string
}

// String renders the signature as name(types) [const].
func (s Signature) String() string {
	text := s.Name + "(" + strings.Join(s.ParamTypes, ", ") + ")"
	if s.Const {
		text += " const"
	}

	return text
}

// Signature returns the comparison view of the method.
func (m Method) Signature() Signature {
	return Signature{Name: m.Name, Const: m.Qualifiers.Const, ParamTypes: m.ParamTypes()}
}

func hasQualifier(tokens []QualifierToken, kind QualifierKind, site QualifierSite) bool {
	for _, tok := range tokens {
		if tok.Kind == kind && tok.Site == site {
			return true
		}
	}

	return false
}
