// Package qualify canonicalizes the qualifier multiset captured for each method.
package qualify

import (
	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
)

// Normalize folds a qualifier multiset into its canonical record. Order and repetition are
// irrelevant: the result is the union of the distinct (kind, site) pairs present.
func Normalize(tokens []model.QualifierToken) model.Qualifiers {
	var quals model.Qualifiers

	for _, tok := range tokens {
		switch tok.Kind {
		case model.QualVirtual:
			quals.Virtual = true
		case model.QualInline:
			quals.Inline = true
		case model.QualConst:
			if tok.Site == model.SiteTrailing {
				quals.Const = true
			} else {
				quals.ReturnConst = true
			}
		case model.QualVolatile:
			if tok.Site == model.SiteTrailing {
				quals.Volatile = true
			} else {
				quals.ReturnVolatile = true
			}
		}
	}

	return quals
}

// Method returns a copy of the method with Qualifiers filled in.
func Method(method model.Method) model.Method {
	method.Qualifiers = Normalize(method.RawQualifiers)

	return method
}

// Interface returns a copy of the interface whose methods carry normalized qualifiers.
func Interface(iface *model.Interface) *model.Interface {
	methods := make([]model.Method, len(iface.Methods))
	for i, method := range iface.Methods {
		methods[i] = Method(method)
	}

	return iface.WithMethods(methods)
}

// File returns a new tree with every interface normalized. The input is left untouched.
func File(file *model.File) *model.File {
	return &model.File{Path: file.Path, Root: namespace(file.Root)}
}

func namespace(ns *model.Namespace) *model.Namespace {
	if ns == nil {
		return nil
	}

	out := &model.Namespace{Name: ns.Name, Pos: ns.Pos, Members: make([]model.Member, 0, len(ns.Members))}

	for _, member := range ns.Members {
		switch typed := member.(type) {
		case *model.Namespace:
			out.Members = append(out.Members, namespace(typed))
		case *model.Interface:
			out.Members = append(out.Members, Interface(typed))
		}
	}

	return out
}
