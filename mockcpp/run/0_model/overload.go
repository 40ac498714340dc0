package model

// OverloadMember is one method of an OverloadGroup together with its generated label.
type OverloadMember struct {
	Method Method
	Label  string // code-generation identifier, never part of the method's signature
	Index  int    // position of the method in Interface.Methods
}

// OverloadGroup holds all methods of one interface sharing a name or operator kind.
type OverloadGroup struct {
	Key      string // "name:f1" or "operator:function_call_or_cast_operator"
	Name     string
	Operator OperatorKind
	Members  []OverloadMember
}

// ClassifiedInterface is an interface with its methods partitioned into overload groups, in order of
// first appearance.
type ClassifiedInterface struct {
	Interface *Interface
	Groups    []OverloadGroup
}

// Members yields every overload member in interface declaration order.
func (c ClassifiedInterface) Members() []OverloadMember {
	members := make([]OverloadMember, len(c.Interface.Methods))

	for _, group := range c.Groups {
		for _, member := range group.Members {
			members[member.Index] = member
		}
	}

	return members
}
