package generate_test

import (
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/gomega" //nolint:revive // gomega matchers
	"pgregory.net/rapid"

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
	parse "github.com/toejough/mockcpp/mockcpp/run/2_parse"
	qualify "github.com/toejough/mockcpp/mockcpp/run/3_qualify"
	classify "github.com/toejough/mockcpp/mockcpp/run/4_classify"
	generate "github.com/toejough/mockcpp/mockcpp/run/5_generate"
)

func classified(t *testing.T, name, src string) []model.ClassifiedInterface {
	t.Helper()

	file, err := parse.Parse(name, src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	out, err := classify.File(qualify.File(file))
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	return out
}

func fixture(t *testing.T, name string) []model.ClassifiedInterface {
	t.Helper()

	src, err := os.ReadFile("../testdata/" + name)
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}

	return classified(t, name, string(src))
}

func TestGenerate_ClassTemplate(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	mock, err := generate.New(generate.Options{}).Generate(fixture(t, "T.hpp")[0])
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(mock.Name).To(Equal("MockT"))
	g.Expect(mock.QualifiedName()).To(Equal("n::MockT"))
	g.Expect(mock.Code).To(Equal(`namespace n {

template <typename Elem>
class MockT : public T<Elem> {
public:
    static std::shared_ptr<MockT> create() {
        return std::make_shared<::testing::NiceMock<MockT>>();
    }

    static std::shared_ptr<MockT> createStrict() {
        return std::make_shared<::testing::StrictMock<MockT>>();
    }

    ~MockT() override = default;

    MOCK_METHOD(int, GetSize, (), (const, override));
    MOCK_METHOD(void, Push, (const Elem&), (override));
};

} // namespace n
`))
}

func TestGenerate_ClassTemplateOwnName(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ci := classified(t, "m.hpp", `template <typename K, typename V> class M {
public:
    virtual bool operator==(const M& other) const = 0;
    virtual M* clone() const = 0;
    virtual void take(M<K, V> m) = 0;
    virtual void nested(typename M::key_type k) = 0;
};`)[0]

	mock, err := generate.New(generate.Options{}).Generate(ci)
	g.Expect(err).NotTo(HaveOccurred())

	for _, line := range []string{
		"bool operator==(const M<K, V>& arg0) const override { " +
			"return equality_operator(std::forward<const M<K, V>&>(arg0)); }",
		"MOCK_METHOD(bool, equality_operator, ((const M<K, V>&)), (const));",
		"MOCK_METHOD((M<K, V>*), clone, (), (const, override));",
		"MOCK_METHOD(void, take, ((M<K, V>)), (override));",
		"MOCK_METHOD(void, nested, (typename M<K, V>::key_type), (override));",
	} {
		g.Expect(mock.Class).To(ContainSubstring(line))
	}

	g.Expect(mock.Interface.Methods[0].Params[0].Type).To(Equal("const M&"))
}

func TestGenerate_FactoryNameCollision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    string
		opts   generate.Options
		option string
	}{
		{name: "create", src: "struct I { virtual void create() = 0; };", option: "CreateName"},
		{name: "createStrict", src: "struct I { virtual int createStrict(int) const = 0; };", option: "CreateStrictName"},
		{name: "forwarded", src: "struct I { virtual void create() volatile = 0; };", option: "CreateName"},
		{
			name:   "configured name",
			src:    "struct I { virtual void make() = 0; };",
			opts:   generate.Options{CreateName: "make"},
			option: "CreateName",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			_, err := generate.New(tt.opts).Generate(classified(t, "i.hpp", tt.src)[0])
			g.Expect(errors.Is(err, model.ErrInternalConsistency)).To(BeTrue(), "%v", err)
			g.Expect(err.Error()).To(ContainSubstring("i.hpp:1:12: "))
			g.Expect(err.Error()).To(ContainSubstring("collides with the"))

			var internal *generate.InternalError

			g.Expect(errors.As(err, &internal)).To(BeTrue())
			g.Expect(internal.Option).To(Equal(tt.option))
		})
	}

	t.Run("default names are free once renamed", func(t *testing.T) {
		t.Parallel()
		g := NewWithT(t)

		ci := classified(t, "i.hpp", "struct I { virtual void create() = 0; };")[0]

		mock, err := generate.New(generate.Options{CreateName: "make"}).Generate(ci)
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(mock.Class).To(ContainSubstring("MOCK_METHOD(void, create, (), (override));"))
		g.Expect(mock.Class).To(ContainSubstring("static std::shared_ptr<MockI> make() {"))
	})
}

func TestGenerate_I2Members(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	mock, err := generate.New(generate.Options{}).Generate(fixture(t, "I2.hpp")[0])
	g.Expect(err).NotTo(HaveOccurred())

	for _, line := range []string{
		"class MockI2 : public I2 {",
		"~MockI2() override = default;",
		"MOCK_METHOD(void, f0, (), (const, override));",
		"MOCK_METHOD(void, f1, (int), (override));",
		"MOCK_METHOD(void, f1, (int), (const, override));",
		"MOCK_METHOD(void, f4, (int, double, const std::string&), (override));",
		"MOCK_METHOD(std::shared_ptr<int>, f6, (const std::shared_ptr<int>&), (const, override));",
		"MOCK_METHOD(std::function<void(int)>, f8, (), (override));",
		"MOCK_METHOD((std::map<int, std::string>), f9, ((std::pair<int, int>)), (override));",
		"MOCK_METHOD(const int* const, f10, (), (override));",
		"MOCK_METHOD(const void, f14, (), (override));",
		"MOCK_METHOD(const volatile void, f17, (), (override));",
		"int operator()() override { return function_call_or_cast_operator_arity0(); }",
		"MOCK_METHOD(int, function_call_or_cast_operator_arity0, (), ());",
		"void operator()(int arg0, double arg1, std::function<void(int, double)> arg2, const int& arg3, " +
			"const std::string& arg4) override { return function_call_or_cast_operator_arity5(" +
			"std::forward<int>(arg0), std::forward<double>(arg1), std::forward<std::function<void(int, double)>>(arg2), " +
			"std::forward<const int&>(arg3), std::forward<const std::string&>(arg4)); }",
		"MOCK_METHOD(void, function_call_or_cast_operator_arity5, " +
			"(int, double, (std::function<void(int, double)>), const int&, const std::string&), ());",
		"double operator[](int arg0) override { return array_subscript_operator(std::forward<int>(arg0)); }",
		"void* operator->() const override { return member_selection_operator(); }",
		"MOCK_METHOD(void*, member_selection_operator, (), (const));",
	} {
		g.Expect(mock.Class).To(ContainSubstring("\n    "+line+"\n"), line)
	}

	g.Expect(mock.Code).To(HavePrefix("namespace n1 {\n\nclass MockI2"))
	g.Expect(mock.Code).To(HaveSuffix("};\n\n} // namespace n1\n"))
	g.Expect(strings.Count(mock.Class, "MOCK_METHOD(")).To(Equal(23))
}

func TestGenerate_ForwardedQualifiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		decl  string
		lines []string
	}{
		{
			name: "volatile method casts away volatile",
			decl: "virtual void f(int x) volatile = 0;",
			lines: []string{
				"void f(int arg0) volatile override { return const_cast<MockI*>(this)->f(std::forward<int>(arg0)); }",
				"MOCK_METHOD(void, f, (int), ());",
			},
		},
		{
			name: "const volatile keeps const",
			decl: "virtual int g() const volatile noexcept = 0;",
			lines: []string{
				"int g() const volatile noexcept override { return const_cast<const MockI*>(this)->g(); }",
				"MOCK_METHOD(int, g, (), (const, noexcept));",
			},
		},
		{
			name: "variadic tail is dropped",
			decl: "virtual void log(const char* fmt, ...) = 0;",
			lines: []string{
				"void log(const char* arg0, ...) override { return log_(std::forward<const char*>(arg0)); }",
				"MOCK_METHOD(void, log_, (const char*), ());",
			},
		},
		{
			name: "function pointer and array parameters",
			decl: "virtual bool operator==(void (*cb)(int), int values[3]) const && = 0;",
			lines: []string{
				"bool operator==(void(*arg0)(int), int arg1[3]) const&& override { " +
					"return equality_operator(std::forward<void(*)(int)>(arg0), arg1); }",
				"MOCK_METHOD(bool, equality_operator, (void(*)(int), int[3]), (const));",
			},
		},
		{
			name:  "ref qualifier on a direct method",
			decl:  "virtual int size() const & = 0;",
			lines: []string{"MOCK_METHOD(int, size, (), (const, ref(&), override));"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			ci := classified(t, "i.hpp", "class I { public: "+tt.decl+" };")[0]

			mock, err := generate.New(generate.Options{}).Generate(ci)
			g.Expect(err).NotTo(HaveOccurred())

			for _, line := range tt.lines {
				g.Expect(mock.Class).To(ContainSubstring("    "+line+"\n"), line)
			}
		})
	}
}

func TestGenerate_Options(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ci := classified(t, "i.hpp", "struct I { virtual void f() = 0; };")[0]

	mock, err := generate.New(generate.Options{
		MockPrefix:       "Fake",
		CreateName:       "make",
		CreateStrictName: "makeStrict",
		Indent:           "\t",
	}).Generate(ci)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(mock.Code).To(Equal("class FakeI : public I {\npublic:\n" +
		"\tstatic std::shared_ptr<FakeI> make() {\n\t\treturn std::make_shared<::testing::NiceMock<FakeI>>();\n\t}\n\n" +
		"\tstatic std::shared_ptr<FakeI> makeStrict() {\n\t\treturn std::make_shared<::testing::StrictMock<FakeI>>();\n\t}\n\n" +
		"\tMOCK_METHOD(void, f, (), (override));\n};\n"))
}

func TestGenerate_NonVirtualDestructor(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ci := classified(t, "i.hpp", "struct I { ~I() = default; virtual void f() = 0; };")[0]

	mock, err := generate.New(generate.Options{}).Generate(ci)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(mock.Class).To(ContainSubstring("    ~MockI() = default;\n"))
}

func TestGenerate_InternalConsistency(t *testing.T) {
	t.Parallel()

	method := model.Method{Name: "f", ReturnType: "void", Qualifiers: model.Qualifiers{Virtual: true}}
	iface := &model.Interface{Name: "I", Methods: []model.Method{method}}

	tests := []struct {
		name string
		ci   model.ClassifiedInterface
	}{
		{name: "no interface", ci: model.ClassifiedInterface{}},
		{name: "method in no group", ci: model.ClassifiedInterface{Interface: iface}},
		{
			name: "unnormalized qualifiers",
			ci: model.ClassifiedInterface{
				Interface: iface.WithMethods([]model.Method{{Name: "f", ReturnType: "void"}}),
				Groups: []model.OverloadGroup{{
					Key: "name:f", Name: "f",
					Members: []model.OverloadMember{{Method: model.Method{Name: "f", ReturnType: "void"}, Label: "f"}},
				}},
			},
		},
		{
			name: "forwarding label shadows a method",
			ci: model.ClassifiedInterface{
				Interface: iface.WithMethods([]model.Method{method, {
					Name: "operator!", Operator: model.OpLogicalNot, ReturnType: "bool",
					Qualifiers: model.Qualifiers{Virtual: true},
				}}),
				Groups: []model.OverloadGroup{
					{Key: "name:f", Name: "f", Members: []model.OverloadMember{{Method: method, Label: "f"}}},
					{
						Key: "operator:logical_not_operator", Operator: model.OpLogicalNot,
						Members: []model.OverloadMember{{
							Method: model.Method{
								Name: "operator!", Operator: model.OpLogicalNot, ReturnType: "bool",
								Qualifiers: model.Qualifiers{Virtual: true},
							},
							Label: "f",
							Index: 1,
						}},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			_, err := generate.New(generate.Options{}).Generate(tt.ci)
			g.Expect(errors.Is(err, model.ErrInternalConsistency)).To(BeTrue(), "%v", err)

			var internal *generate.InternalError

			g.Expect(errors.As(err, &internal)).To(BeTrue())
		})
	}
}

func TestVerifyRoundTrip_DetectsTampering(t *testing.T) {
	t.Parallel()

	ci := classified(t, "i.hpp", "struct I { virtual void f(int) = 0; virtual int operator[](int) const = 0; };")[0]

	mock, err := generate.New(generate.Options{}).Generate(ci)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	tests := []struct {
		name string
		from string
		to   string
		msg  string
	}{
		{name: "constness weakened", from: "(const))", to: "())", msg: "forwarding targets"},
		{name: "parameter type changed", from: "f, (int)", to: "f, (long)", msg: "missing [f(int)]"},
		{name: "override removed", from: "int operator[]", to: "int other", msg: "overrides do not match"},
		{name: "unterminated body", from: "\n};", to: "\n", msg: "malformed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewWithT(t)

			g.Expect(mock.Class).To(ContainSubstring(tt.from))

			tampered := mock
			tampered.Class = strings.Replace(mock.Class, tt.from, tt.to, 1)

			err := generate.VerifyRoundTrip(ci, tampered)
			g.Expect(errors.Is(err, model.ErrInternalConsistency)).To(BeTrue())
			g.Expect(err.Error()).To(ContainSubstring(tt.msg))
		})
	}
}

// TestGenerate_RoundTrip_Property proves every classified interface generates a mock whose
// overrides re-parse to the interface's own signatures.
func TestGenerate_RoundTrip_Property(t *testing.T) {
	t.Parallel()

	rapid.Check(t, checkRoundTrip)
}

func FuzzGenerate(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(checkRoundTrip))
}

func checkRoundTrip(rt *rapid.T) {
	types := []string{
		"int", "double", "const std::string&", "std::map<int, int>", "void(*)(int)", "int[3]",
		"std::function<void(int, double)>", "T&&",
	}
	returns := []string{"void", "int", "int&", "std::map<int, int>", "std::unique_ptr<T>"}

	methods := rapid.SliceOfN(rapid.Custom(func(rt *rapid.T) model.Method {
		method := model.Method{
			Name:         rapid.SampledFrom([]string{"f", "g", "f_1"}).Draw(rt, "name"),
			ReturnType:   rapid.SampledFrom(returns).Draw(rt, "return"),
			Variadic:     rapid.Bool().Draw(rt, "variadic"),
			RefQualifier: rapid.SampledFrom([]string{"", "&", "&&"}).Draw(rt, "ref"),
			Noexcept:     rapid.Bool().Draw(rt, "noexcept"),
			Qualifiers: model.Qualifiers{
				Virtual:     true,
				Const:       rapid.Bool().Draw(rt, "const"),
				Volatile:    rapid.Bool().Draw(rt, "volatile"),
				ReturnConst: rapid.Bool().Draw(rt, "returnConst"),
			},
		}

		if rapid.Bool().Draw(rt, "operator") {
			method.Operator = rapid.SampledFrom(model.OperatorKinds()).Draw(rt, "kind")
			method.Name = "operator" + method.Operator.Spelling()
		}

		for _, typ := range rapid.SliceOfN(rapid.SampledFrom(types), 0, 3).Draw(rt, "params") {
			method.Params = append(method.Params, model.Parameter{Type: typ})
		}

		return method
	}), 1, 6).Draw(rt, "methods")

	iface := &model.Interface{
		Name:     "I",
		Scope:    rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b"}), 0, 2).Draw(rt, "scope"),
		Methods:  methods,
		Template: []model.TemplateParam{{Kind: model.TemplateParamType, Name: "T", Text: "typename T"}},
	}

	ci, err := classify.Classify(iface)
	if err != nil {
		rt.Skip("duplicate declarations")
	}

	mock, err := generate.New(generate.Options{}).Generate(ci)
	if err != nil {
		rt.Fatalf("generate failed: %v", err)
	}

	if !strings.HasPrefix(mock.Class, "template <typename T>\nclass MockI : public I<T> {") {
		rt.Fatalf("unexpected class head:\n%s", mock.Class)
	}
}
