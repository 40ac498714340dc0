package parse_test

import (
	"os"
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/gomega" //nolint:revive // gomega matchers

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
	lex "github.com/toejough/mockcpp/mockcpp/run/1_lex"
	parse "github.com/toejough/mockcpp/mockcpp/run/2_parse"
)

func interfaces(file *model.File) []*model.Interface {
	return slices.Collect(file.Interfaces())
}

func mustParse(t *testing.T, src string) []*model.Interface {
	t.Helper()

	file, err := parse.Parse("test.hpp", src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	return interfaces(file)
}

func methodNamed(t *testing.T, iface *model.Interface, name string) model.Method {
	t.Helper()

	for _, method := range iface.Methods {
		if method.Name == name {
			return method
		}
	}

	t.Fatalf("%s has no method %s", iface.Name, name)

	return model.Method{}
}

func headKinds(method model.Method) []model.QualifierKind {
	var kinds []model.QualifierKind

	for _, q := range method.RawQualifiers {
		if q.Site == model.SiteHead {
			kinds = append(kinds, q.Kind)
		}
	}

	return kinds
}

func TestParse_I2Fixture(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	src, err := os.ReadFile("../testdata/I2.hpp")
	g.Expect(err).NotTo(HaveOccurred())

	file, err := parse.Parse("I2.hpp", string(src))
	g.Expect(err).NotTo(HaveOccurred())

	ifaces := interfaces(file)
	g.Expect(ifaces).To(HaveLen(1))

	iface := ifaces[0]
	g.Expect(iface.QualifiedName()).To(Equal("n1::I2"))
	g.Expect(iface.IsTemplate()).To(BeFalse())
	g.Expect(iface.Destructor).NotTo(BeNil())
	g.Expect(iface.Destructor.Virtual).To(BeTrue())
	g.Expect(iface.Methods).To(HaveLen(23))

	f0 := methodNamed(t, iface, "f0")
	g.Expect(f0.RawQualifiers).To(ContainElement(HaveField("Site", model.SiteTrailing)))

	f1 := iface.Methods[1]
	g.Expect(f1.Name).To(Equal("f1"))
	g.Expect(f1.Params).To(Equal([]model.Parameter{{Type: "int"}}))
	g.Expect(f1.Pos.Line).To(Equal(19))

	f4 := methodNamed(t, iface, "f4")
	g.Expect(f4.Params).To(Equal([]model.Parameter{
		{Type: "int", Name: "i"},
		{Type: "double", Name: "d"},
		{Type: "const std::string&", Name: "str"},
	}))

	f6 := methodNamed(t, iface, "f6")
	g.Expect(f6.ReturnType).To(Equal("std::shared_ptr<int>"))
	g.Expect(f6.ParamTypes()).To(Equal([]string{"const std::shared_ptr<int>&"}))

	f7 := methodNamed(t, iface, "f7")
	g.Expect(f7.ReturnType).To(Equal("int&"))
	g.Expect(headKinds(f7)).To(Equal([]model.QualifierKind{model.QualVirtual, model.QualConst}))

	g.Expect(methodNamed(t, iface, "f8").ReturnType).To(Equal("std::function<void(int)>"))

	f9 := methodNamed(t, iface, "f9")
	g.Expect(f9.ReturnType).To(Equal("std::map<int, std::string>"))
	g.Expect(f9.Params).To(Equal([]model.Parameter{{Type: "std::pair<int, int>", Name: "range"}}))

	f10 := methodNamed(t, iface, "f10")
	g.Expect(f10.ReturnType).To(Equal("int* const"))
	g.Expect(headKinds(f10)).To(Equal([]model.QualifierKind{model.QualVirtual, model.QualConst}))

	g.Expect(headKinds(methodNamed(t, iface, "f15"))).To(Equal(
		[]model.QualifierKind{model.QualVolatile, model.QualConst, model.QualVirtual}))
	g.Expect(headKinds(methodNamed(t, iface, "f17"))).To(Equal(
		[]model.QualifierKind{model.QualConst, model.QualVirtual, model.QualVolatile, model.QualInline}))

	calls := slices.DeleteFunc(slices.Clone(iface.Methods), func(m model.Method) bool {
		return m.Operator != model.OpCall
	})
	g.Expect(calls).To(HaveLen(2))
	g.Expect(calls[0].Name).To(Equal("operator()"))
	g.Expect(calls[0].Params).To(BeEmpty())
	g.Expect(calls[1].Params).To(Equal([]model.Parameter{
		{Type: "int"},
		{Type: "double", Name: "d"},
		{Type: "std::function<void(int, double)>"},
		{Type: "const int&"},
		{Type: "const std::string&", Name: "str"},
	}))

	g.Expect(methodNamed(t, iface, "operator[]").Operator).To(Equal(model.OpSubscript))

	arrow := methodNamed(t, iface, "operator->")
	g.Expect(arrow.Operator).To(Equal(model.OpArrow))
	g.Expect(arrow.ReturnType).To(Equal("void*"))
}

func TestParse_ClassTemplate(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	src, err := os.ReadFile("../testdata/T.hpp")
	g.Expect(err).NotTo(HaveOccurred())

	file, err := parse.Parse("T.hpp", string(src))
	g.Expect(err).NotTo(HaveOccurred())

	ifaces := interfaces(file)
	g.Expect(ifaces).To(HaveLen(1))

	iface := ifaces[0]
	g.Expect(iface.QualifiedName()).To(Equal("n::T"))
	g.Expect(iface.Template).To(Equal([]model.TemplateParam{
		{Kind: model.TemplateParamType, Name: "Elem", Text: "typename Elem"},
	}))
	g.Expect(iface.TemplateArgs()).To(Equal("Elem"))
	g.Expect(iface.Methods).To(HaveLen(2))
	g.Expect(iface.Methods[1].ParamTypes()).To(Equal([]string{"const Elem&"}))
}

func TestParse_TemplateParameterKinds(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ifaces := mustParse(t, "template <class K, int N = 3, typename... Ts> struct C { virtual void f() = 0; };")
	g.Expect(ifaces[0].Template).To(Equal([]model.TemplateParam{
		{Kind: model.TemplateParamType, Name: "K", Text: "class K"},
		{Kind: model.TemplateParamNonType, Name: "N", Text: "int N = 3"},
		{Kind: model.TemplateParamType, Name: "Ts", Text: "typename... Ts", Pack: true},
	}))
	g.Expect(ifaces[0].TemplateArgs()).To(Equal("K, N, Ts..."))
}

func TestParse_Inheritance(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	src, err := os.ReadFile("../testdata/A.hpp")
	g.Expect(err).NotTo(HaveOccurred())

	file, err := parse.Parse("A.hpp", string(src))
	g.Expect(err).NotTo(HaveOccurred())

	ifaces := interfaces(file)
	g.Expect(ifaces).To(HaveLen(2))

	derived := ifaces[1]
	g.Expect(derived.QualifiedName()).To(Equal("NA::NAA::A"))
	g.Expect(derived.Base).To(Equal("Base"))

	names := make([]string, 0, len(derived.Methods))
	for _, method := range derived.Methods {
		names = append(names, method.Name)
	}

	g.Expect(names).To(Equal([]string{"Aaa", "Bbb", "Ccc", "Ccc"}))
	g.Expect(derived.Destructor).NotTo(BeNil())
	g.Expect(derived.Destructor.Virtual).To(BeTrue())
}

func TestParse_OverridesReplaceBaseMethods(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ifaces := mustParse(t, `
namespace a {
struct B { virtual void f() = 0; virtual void g() = 0; };
}
namespace a { namespace b {
struct D : B { virtual void g() override = 0; virtual void h() = 0; };
} }
`)
	g.Expect(ifaces).To(HaveLen(2))

	derived := ifaces[1]

	var names []string
	for _, method := range derived.Methods {
		names = append(names, method.Name)
	}

	g.Expect(names).To(Equal([]string{"f", "g", "h"}))
	g.Expect(derived.Methods[1].Pos.Line).To(Equal(6))
}

func TestParse_NestedNamespaces(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	file, err := parse.Parse("n.hpp", "namespace a::b { inline namespace v1 { struct I { virtual void f() = 0; }; } }")
	g.Expect(err).NotTo(HaveOccurred())

	outer, ok := file.Root.Members[0].(*model.Namespace)
	g.Expect(ok).To(BeTrue())
	g.Expect(outer.Name).To(Equal("a"))

	ifaces := interfaces(file)
	g.Expect(ifaces).To(HaveLen(1))
	g.Expect(ifaces[0].QualifiedName()).To(Equal("a::b::v1::I"))
}

func TestParse_SkipsNonMethodMembers(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ifaces := mustParse(t, `
#include <cstddef>
using X = int;
typedef int Y;
enum class E { a, b };
class Fwd;
struct I {
    using Z = int;
    static_assert(sizeof(int) > 2, "int");
    I() = default;
    I& operator=(const I&) = delete;
    [[nodiscard]] virtual int f(int x = 1 < 2, int y = std::max<int>(1, 2)) const noexcept = 0;
};
`)
	g.Expect(ifaces).To(HaveLen(1))
	g.Expect(ifaces[0].Methods).To(HaveLen(1))

	method := ifaces[0].Methods[0]
	g.Expect(method.Noexcept).To(BeTrue())
	g.Expect(method.Params).To(Equal([]model.Parameter{
		{Type: "int", Name: "x", Default: "1<2"},
		{Type: "int", Name: "y", Default: "std::max<int>(1, 2)"},
	}))
}

func TestParse_TemplateStaticAssert(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ifaces := mustParse(t, `
namespace n {
template <typename T, int N>
class Buffer {
public:
    static_assert(N < 8, "small");
    static_assert(N >= 0 && sizeof(T) < 64, "fits");
    virtual T Get(int index) const = 0;
};
}
`)
	g.Expect(ifaces).To(HaveLen(1))
	g.Expect(ifaces[0].QualifiedName()).To(Equal("n::Buffer"))
	g.Expect(ifaces[0].Methods).To(HaveLen(1))
	g.Expect(ifaces[0].Methods[0].Name).To(Equal("Get"))
}

func TestParse_TrailingForms(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ifaces := mustParse(t, `
struct I {
    virtual void log(const char* fmt, ...) = 0;
    virtual auto g() const & -> int = 0;
    virtual void h() && noexcept(false) = 0;
    virtual void cb(void (*fn)(int), int arr[3]) = 0;
    virtual ~I() = default;
};`)
	iface := ifaces[0]

	log := methodNamed(t, iface, "log")
	g.Expect(log.Variadic).To(BeTrue())
	g.Expect(log.Params).To(Equal([]model.Parameter{{Type: "const char*", Name: "fmt"}}))

	trailingReturn := methodNamed(t, iface, "g")
	g.Expect(trailingReturn.ReturnType).To(Equal("int"))
	g.Expect(trailingReturn.RefQualifier).To(Equal("&"))

	rvalue := methodNamed(t, iface, "h")
	g.Expect(rvalue.RefQualifier).To(Equal("&&"))
	g.Expect(rvalue.Noexcept).To(BeFalse())

	g.Expect(methodNamed(t, iface, "cb").Params).To(Equal([]model.Parameter{
		{Type: "void(*)(int)", Name: "fn"},
		{Type: "int[3]", Name: "arr"},
	}))
	g.Expect(iface.Destructor).NotTo(BeNil())
	g.Expect(iface.Destructor.Virtual).To(BeTrue())
	g.Expect(iface.Destructor.Pos.Line).To(Equal(7))
	g.Expect(iface.Destructor.Pos.Column).To(Equal(5))
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		kind parse.ErrorKind
		line int
		col  int
	}{
		{
			name: "missing pure specifier",
			src:  "class I {\npublic:\n  virtual void f();\n};",
			kind: parse.MissingPureSpecifier, line: 3, col: 3,
		},
		{
			name: "method with body",
			src:  "struct I { virtual void f() {} };",
			kind: parse.MissingPureSpecifier, line: 1, col: 12,
		},
		{
			name: "override without pure specifier",
			src:  "struct I { virtual void f() override; };",
			kind: parse.MissingPureSpecifier, line: 1, col: 12,
		},
		{
			name: "non-virtual method",
			src:  "struct I { void f() = 0; };",
			kind: parse.UnsupportedConstruct, line: 1, col: 12,
		},
		{
			name: "private section",
			src:  "class I {\nprivate:\n  virtual void f() = 0;\n};",
			kind: parse.UnsupportedConstruct, line: 2, col: 1,
		},
		{
			name: "protected section",
			src:  "class I {\npublic:\nprotected:\n};",
			kind: parse.UnsupportedConstruct, line: 3, col: 1,
		},
		{
			name: "default private access",
			src:  "class I { virtual void f() = 0; };",
			kind: parse.UnsupportedConstruct, line: 1, col: 11,
		},
		{
			name: "multiple inheritance",
			src:  "struct A {}; struct B {}; struct C : A, B {};",
			kind: parse.UnsupportedConstruct, line: 1, col: 39,
		},
		{
			name: "unknown base",
			src:  "struct C : Unknown {};",
			kind: parse.UnsupportedConstruct, line: 1, col: 12,
		},
		{
			name: "private base",
			src:  "struct A {}; class C : A {};",
			kind: parse.UnsupportedConstruct, line: 1, col: 24,
		},
		{
			name: "directive in body",
			src:  "struct I {\n#if X\n};",
			kind: parse.UnsupportedConstruct, line: 2, col: 1,
		},
		{
			name: "missing semicolon after class",
			src:  "namespace n { class I {} }",
			kind: parse.UnexpectedToken, line: 1, col: 26,
		},
		{
			name: "unterminated namespace",
			src:  "namespace n {",
			kind: parse.UnexpectedToken, line: 1, col: 14,
		},
		{
			name: "noexcept expression",
			src:  "struct I { virtual void f() noexcept(X) = 0; };",
			kind: parse.UnsupportedConstruct, line: 1, col: 37,
		},
		{
			name: "final method",
			src:  "struct I { virtual void f() final = 0; };",
			kind: parse.UnsupportedConstruct, line: 1, col: 29,
		},
		{
			name: "static method",
			src:  "struct I { static void f(); };",
			kind: parse.UnsupportedConstruct, line: 1, col: 12,
		},
		{
			name: "conversion operator",
			src:  "struct I { virtual operator bool() const = 0; };",
			kind: parse.UnsupportedConstruct, line: 1, col: 20,
		},
		{
			name: "member template",
			src:  "struct I { template <typename U> void f(U) = 0; };",
			kind: parse.UnsupportedConstruct, line: 1, col: 12,
		},
		{
			name: "free function",
			src:  "void f();",
			kind: parse.UnsupportedConstruct, line: 1, col: 1,
		},
		{
			name: "lone bracket at namespace scope",
			src:  "namespace n {\n[x];\n}",
			kind: parse.UnsupportedConstruct, line: 2, col: 1,
		},
		{
			name: "lone bracket at file scope",
			src:  "[x];\n",
			kind: parse.UnsupportedConstruct, line: 1, col: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			_, err := parse.Parse("bad.hpp", tt.src)
			g.Expect(err).To(HaveOccurred())
			g.Expect(errors.Is(err, model.ErrParse)).To(BeTrue())

			var parseErr *parse.Error

			g.Expect(errors.As(err, &parseErr)).To(BeTrue())
			g.Expect(parseErr.Kind).To(Equal(tt.kind), err.Error())
			g.Expect(parseErr.Pos.Line).To(Equal(tt.line), err.Error())
			g.Expect(parseErr.Pos.Column).To(Equal(tt.col), err.Error())
			g.Expect(err.Error()).To(HavePrefix("bad.hpp:"))
		})
	}
}

func TestParse_LexErrorsPassThrough(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	_, err := parse.Parse("bad.hpp", "struct I { @ };")
	g.Expect(errors.Is(err, model.ErrLex)).To(BeTrue())
	g.Expect(errors.Is(err, model.ErrParse)).To(BeFalse())
}

func TestDeclarator(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	toks, err := lex.Tokenize("gen.hpp", "int operator()(int arg0, double arg1) const override { return 0; }")
	g.Expect(err).NotTo(HaveOccurred())

	method, err := parse.Declarator(toks)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(method.Name).To(Equal("operator()"))
	g.Expect(method.Operator).To(Equal(model.OpCall))
	g.Expect(method.ReturnType).To(Equal("int"))
	g.Expect(method.ParamTypes()).To(Equal([]string{"int", "double"}))
	g.Expect(method.RawQualifiers).To(HaveLen(1))
	g.Expect(method.RawQualifiers[0].Site).To(Equal(model.SiteTrailing))
}
