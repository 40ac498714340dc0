package generate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
	lex "github.com/toejough/mockcpp/mockcpp/run/1_lex"
	parse "github.com/toejough/mockcpp/mockcpp/run/2_parse"
	qualify "github.com/toejough/mockcpp/mockcpp/run/3_qualify"
)

// VerifyRoundTrip re-lexes the generated class and checks that its overrides declare exactly the
// interface's (name, constness, parameter types) signatures, and that every forwarding override has
// the mock method it calls.
func VerifyRoundTrip(ci model.ClassifiedInterface, mock Mock) error {
	iface := ci.Interface

	fail := func(format string, args ...any) error {
		return &InternalError{Interface: iface.QualifiedName(), Pos: iface.Pos, Msg: fmt.Sprintf(format, args...)}
	}

	toks, err := lex.Tokenize(mock.Name, mock.Class)
	if err != nil {
		return fail("generated class does not lex: %v", err)
	}

	decls, err := classMembers(toks)
	if err != nil {
		return fail("generated class is malformed: %v", err)
	}

	backing := make(map[string]model.Signature)

	for _, member := range ci.Members() {
		if member.Method.NeedsForwarding() {
			sig := member.Method.Signature()
			sig.Name = member.Label
			backing[member.Label] = sig
		}
	}

	var overrides, mocked []string

	for _, decl := range decls {
		switch {
		case decl[0].Is(lex.Identifier, "MOCK_METHOD"):
			sig, err := mockMethodSignature(decl)
			if err != nil {
				return fail("%v", err)
			}

			if _, ok := backing[sig.Name]; ok {
				mocked = append(mocked, sig.String())
			} else {
				overrides = append(overrides, sig.String())
			}
		case slices.ContainsFunc(decl, func(tok lex.Token) bool { return tok.IsKeyword("override") }) &&
			!decl[0].IsPunct("~"):
			method, err := parse.Declarator(decl)
			if err != nil {
				return fail("generated override does not parse: %v", err)
			}

			overrides = append(overrides, qualify.Method(method).Signature().String())
		}
	}

	want := make([]string, 0, len(iface.Methods))
	for _, method := range iface.Methods {
		want = append(want, method.Signature().String())
	}

	if missing, extra := difference(want, overrides); len(missing)+len(extra) > 0 {
		return fail("overrides do not match the interface: missing [%s], unexpected [%s]",
			strings.Join(missing, "; "), strings.Join(extra, "; "))
	}

	wantMocked := make([]string, 0, len(backing))
	for _, sig := range backing {
		wantMocked = append(wantMocked, sig.String())
	}

	if missing, extra := difference(wantMocked, mocked); len(missing)+len(extra) > 0 {
		return fail("forwarding targets do not match: missing [%s], unexpected [%s]",
			strings.Join(missing, "; "), strings.Join(extra, "; "))
	}

	return nil
}

// classMembers splits the body of the first class in toks into member declarations, each ending
// before its ';' or function body. Access labels are dropped.
func classMembers(toks []lex.Token) ([][]lex.Token, error) {
	start := slices.IndexFunc(toks, func(tok lex.Token) bool { return tok.IsPunct("{") })
	if start < 0 {
		return nil, errors.New("no class body")
	}

	var (
		decls   [][]lex.Token
		current []lex.Token
		depth   int
	)

	for _, tok := range toks[start+1:] {
		switch {
		case tok.Kind == lex.EOF:
			return nil, errors.New("unterminated class body")
		case depth == 0 && tok.IsPunct("}"):
			return decls, nil
		case depth == 0 && tok.IsPunct(":") && len(current) == 1 && current[0].IsKeyword("public"):
			current = nil
		case depth == 0 && tok.IsPunct(";"):
			if len(current) > 0 {
				decls = append(decls, current)
			}

			current = nil
		case tok.IsPunct("{"):
			if depth == 0 && len(current) > 0 {
				decls = append(decls, current)
			}

			if depth == 0 {
				current = nil
			}

			depth++
		case tok.IsPunct("}"):
			depth--
		case depth == 0:
			current = append(current, tok)
		}
	}

	return nil, errors.New("unterminated class body")
}

// mockMethodSignature decodes MOCK_METHOD(R, name, (params), (specs)).
func mockMethodSignature(decl []lex.Token) (model.Signature, error) {
	if len(decl) < 3 || !decl[1].IsPunct("(") || !decl[len(decl)-1].IsPunct(")") {
		return model.Signature{}, errors.Newf("malformed MOCK_METHOD at %s", decl[0].Pos)
	}

	args := splitTopLevel(decl[2 : len(decl)-1])
	if len(args) < 3 || len(args) > 4 || len(args[1]) != 1 {
		return model.Signature{}, errors.Newf("MOCK_METHOD at %s has %d arguments", decl[0].Pos, len(args))
	}

	sig := model.Signature{Name: args[1][0].Lexeme}

	params := unwrap(args[2])
	if len(params) > 0 {
		for _, param := range splitTopLevel(params) {
			sig.ParamTypes = append(sig.ParamTypes, lex.Join(unwrap(param)))
		}
	}

	if len(args) == 4 {
		sig.Const = slices.ContainsFunc(unwrap(args[3]), func(tok lex.Token) bool {
			return tok.Is(lex.Qualifier, "const")
		})
	}

	return sig, nil
}

// unwrap strips one pair of parentheses enclosing all of toks.
func unwrap(toks []lex.Token) []lex.Token {
	if len(toks) < 2 || !toks[0].IsPunct("(") || !toks[len(toks)-1].IsPunct(")") {
		return toks
	}

	depth := 0

	for i, tok := range toks {
		switch {
		case tok.IsPunct("("):
			depth++
		case tok.IsPunct(")"):
			depth--
			if depth == 0 && i != len(toks)-1 {
				return toks
			}
		}
	}

	return toks[1 : len(toks)-1]
}

func splitTopLevel(toks []lex.Token) [][]lex.Token {
	var (
		groups [][]lex.Token
		depth  int
		start  int
	)

	for idx, tok := range toks {
		switch {
		case tok.Kind == lex.TemplateOpen, tok.IsPunct("("), tok.IsPunct("["), tok.IsPunct("{"):
			depth++
		case tok.Kind == lex.TemplateClose, tok.IsPunct(")"), tok.IsPunct("]"), tok.IsPunct("}"):
			depth--
		case tok.IsPunct(",") && depth == 0:
			groups = append(groups, toks[start:idx])
			start = idx + 1
		}
	}

	return append(groups, toks[start:])
}

// difference returns the entries of want absent from got and of got absent from want, counting
// repeats.
func difference(want, got []string) ([]string, []string) {
	remaining := make(map[string]int, len(want))
	for _, sig := range want {
		remaining[sig]++
	}

	var extra []string

	for _, sig := range got {
		if remaining[sig] == 0 {
			extra = append(extra, sig)

			continue
		}

		remaining[sig]--
	}

	var missing []string

	for _, sig := range want {
		if remaining[sig] > 0 {
			missing = append(missing, sig)
			remaining[sig]--
		}
	}

	return missing, extra
}
