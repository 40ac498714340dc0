// Package classify partitions interface methods into overload groups and labels each member.
package classify

import (
	"fmt"
	"strconv"

	model "github.com/toejough/mockcpp/mockcpp/run/0_model"
)

// DuplicateError reports two methods with the same signature in one interface.
type DuplicateError struct {
	Interface string
	Method    string
	Pos       model.Position
	Previous  model.Position
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: duplicate declaration of %s in %s (first declared at %s)",
		e.Pos, e.Method, e.Interface, e.Previous)
}

// Unwrap lets errors.Is match model.ErrDuplicateDeclaration.
func (e *DuplicateError) Unwrap() error {
	return model.ErrDuplicateDeclaration
}

// Classify groups the methods of a normalized interface by name or operator kind and assigns
// every member a label unique within the interface. Labels depend only on declaration order, so
// identical input always yields identical labels.
func Classify(iface *model.Interface) (model.ClassifiedInterface, error) {
	err := checkDuplicates(iface)
	if err != nil {
		return model.ClassifiedInterface{}, err
	}

	groups := group(iface.Methods)
	for i := range groups {
		label(&groups[i])
	}

	deconflict(groups)

	return model.ClassifiedInterface{Interface: iface, Groups: groups}, nil
}

// File classifies every interface of a file, stopping at the first error.
func File(file *model.File) ([]model.ClassifiedInterface, error) {
	var out []model.ClassifiedInterface

	for iface := range file.Interfaces() {
		classified, err := Classify(iface)
		if err != nil {
			return nil, err
		}

		out = append(out, classified)
	}

	return out, nil
}

func checkDuplicates(iface *model.Interface) error {
	seen := make(map[string]model.Position, len(iface.Methods))

	for _, method := range iface.Methods {
		key := method.SignatureKey()

		if previous, ok := seen[key]; ok {
			return &DuplicateError{
				Interface: iface.QualifiedName(),
				Method:    key,
				Pos:       method.Pos,
				Previous:  previous,
			}
		}

		seen[key] = method.Pos
	}

	return nil
}

func groupKey(method model.Method) string {
	if method.Operator != model.OpNone {
		return "operator:" + method.Operator.Identifier()
	}

	return "name:" + method.Name
}

// group partitions methods in order of first appearance.
func group(methods []model.Method) []model.OverloadGroup {
	var groups []model.OverloadGroup

	index := make(map[string]int)

	for idx, method := range methods {
		key := groupKey(method)

		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, model.OverloadGroup{Key: key, Name: method.Name, Operator: method.Operator})
		}

		groups[pos].Members = append(groups[pos].Members, model.OverloadMember{Method: method, Index: idx})
	}

	return groups
}

// label assigns member labels: the base identifier for a lone member, then a const suffix when
// constness differs within the group, then arity or ordinal among members of equal constness.
func label(grp *model.OverloadGroup) {
	base := grp.Name
	if grp.Operator != model.OpNone {
		base = grp.Operator.Identifier()
	}

	if len(grp.Members) == 1 {
		grp.Members[0].Label = base

		return
	}

	var consts, mutables []int

	for i, member := range grp.Members {
		if member.Method.Qualifiers.Const {
			consts = append(consts, i)
		} else {
			mutables = append(mutables, i)
		}
	}

	mixed := len(consts) > 0 && len(mutables) > 0

	for _, bucket := range [][]int{mutables, consts} {
		for ordinal, i := range bucket {
			label := base
			if mixed && grp.Members[i].Method.Qualifiers.Const {
				label += "_const"
			}

			if len(bucket) > 1 {
				label += disambiguator(grp.Members, bucket, i, ordinal)
			}

			grp.Members[i].Label = label
		}
	}
}

func disambiguator(members []model.OverloadMember, bucket []int, i, ordinal int) string {
	arity := len(members[i].Method.Params)

	for _, other := range bucket {
		if other != i && len(members[other].Method.Params) == arity {
			return "_" + strconv.Itoa(ordinal+1)
		}
	}

	return "_arity" + strconv.Itoa(arity)
}

// deconflict keeps labels of forwarded members clear of the plain method names the mock declares
// and of each other. A variadic member never keeps its own name: a mock method of that name would
// make the forwarding call ambiguous.
func deconflict(groups []model.OverloadGroup) {
	taken := make(map[string]bool)

	for _, grp := range groups {
		for _, member := range grp.Members {
			if !member.Method.NeedsForwarding() {
				taken[member.Method.Name] = true
			}
		}
	}

	for g := range groups {
		for m := range groups[g].Members {
			member := &groups[g].Members[m]
			if !member.Method.NeedsForwarding() {
				continue
			}

			for taken[member.Label] || (member.Method.Variadic && member.Label == member.Method.Name) {
				member.Label += "_"
			}

			taken[member.Label] = true
		}
	}
}
