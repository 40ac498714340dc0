package model

// OperatorKind tags operator methods. The set is closed: every kind has exactly one spelling and one
// generated identifier in operatorTable.
type OperatorKind int

// OperatorKind values.
const (
	OpNone OperatorKind = iota
	OpComma
	OpLogicalNot
	OpInequality
	OpModulus
	OpModulusAssign
	OpAddressOfOrBitwiseAnd
	OpLogicalAnd
	OpBitwiseAndAssign
	OpCall
	OpMultiplyOrDereference
	OpMultiplyAssign
	OpAddOrUnaryPlus
	OpIncrement
	OpAddAssign
	OpSubtractOrNegate
	OpDecrement
	OpSubtractAssign
	OpArrow
	OpArrowStar
	OpDivide
	OpDivideAssign
	OpLess
	OpShiftLeft
	OpShiftLeftAssign
	OpLessEqual
	OpAssign
	OpEqual
	OpGreater
	OpGreaterEqual
	OpShiftRight
	OpShiftRightAssign
	OpSubscript
	OpExclusiveOr
	OpExclusiveOrAssign
	OpBitwiseOr
	OpBitwiseOrAssign
	OpLogicalOr
	OpComplement
	operatorKindCount
)

type operatorInfo struct {
	spelling   string
	identifier string
}

//nolint:gochecknoglobals // closed lookup table
var operatorTable = [...]operatorInfo{
	OpNone:                  {"", ""},
	OpComma:                 {",", "comma_operator"},
	OpLogicalNot:            {"!", "logical_not_operator"},
	OpInequality:            {"!=", "inequality_operator"},
	OpModulus:               {"%", "modulus_operator"},
	OpModulusAssign:         {"%=", "modulus_assignment_operator"},
	OpAddressOfOrBitwiseAnd: {"&", "address_of_or_bitwise_and_operator"},
	OpLogicalAnd:            {"&&", "logical_and_operator"},
	OpBitwiseAndAssign:      {"&=", "bitwise_and_assignment_operator"},
	OpCall:                  {"()", "function_call_or_cast_operator"},
	OpMultiplyOrDereference: {"*", "multiplication_or_dereference_operator"},
	OpMultiplyAssign:        {"*=", "multiplication_assignment_operator"},
	OpAddOrUnaryPlus:        {"+", "addition_or_unary_plus_operator"},
	OpIncrement:             {"++", "increment1_operator"},
	OpAddAssign:             {"+=", "addition_assignment_operator"},
	OpSubtractOrNegate:      {"-", "subtraction_or_unary_negation_operator"},
	OpDecrement:             {"--", "decrement1_operator"},
	OpSubtractAssign:        {"-=", "subtraction_assignment_operator"},
	OpArrow:                 {"->", "member_selection_operator"},
	OpArrowStar:             {"->*", "pointer_to_member_selection_operator"},
	OpDivide:                {"/", "division_operator"},
	OpDivideAssign:          {"/=", "division_assignment_operator"},
	OpLess:                  {"<", "less_than_operator"},
	OpShiftLeft:             {"<<", "left_shift_operator"},
	OpShiftLeftAssign:       {"<<=", "left_shift_assignment_operator"},
	OpLessEqual:             {"<=", "less_than_or_equal_to_operator"},
	OpAssign:                {"=", "assignment_operator"},
	OpEqual:                 {"==", "equality_operator"},
	OpGreater:               {">", "greater_than_operator"},
	OpGreaterEqual:          {">=", "greater_than_or_equal_to_operator"},
	OpShiftRight:            {">>", "right_shift_operator"},
	OpShiftRightAssign:      {">>=", "right_shift_assignment_operator"},
	OpSubscript:             {"[]", "array_subscript_operator"},
	OpExclusiveOr:           {"^", "exclusive_or_operator"},
	OpExclusiveOrAssign:     {"^=", "exclusive_or_assignment_operator"},
	OpBitwiseOr:             {"|", "bitwise_inclusive_or_operator"},
	OpBitwiseOrAssign:       {"|=", "bitwise_inclusive_or_assignment_operator"},
	OpLogicalOr:             {"||", "logical_or_operator"},
	OpComplement:            {"~", "complement_operator"},
}

// The table must have exactly one entry per kind; a mismatch fails to compile.
var _ = [1]struct{}{}[len(operatorTable)-int(operatorKindCount)]

// OperatorKinds returns every operator kind except OpNone.
func OperatorKinds() []OperatorKind {
	kinds := make([]OperatorKind, 0, operatorKindCount-1)
	for kind := OpNone + 1; kind < operatorKindCount; kind++ {
		kinds = append(kinds, kind)
	}

	return kinds
}

// OperatorFromSpelling maps an operator token spelling ("()", "[]", "<<=") to its kind.
func OperatorFromSpelling(spelling string) (OperatorKind, bool) {
	for kind := OpNone + 1; kind < operatorKindCount; kind++ {
		if operatorTable[kind].spelling == spelling {
			return kind, true
		}
	}

	return OpNone, false
}

// Identifier returns the legal C++ identifier used for the generated mock method.
func (k OperatorKind) Identifier() string {
	if k <= OpNone || k >= operatorKindCount {
		return ""
	}

	return operatorTable[k].identifier
}

// Spelling returns the operator token spelling.
func (k OperatorKind) Spelling() string {
	if k <= OpNone || k >= operatorKindCount {
		return ""
	}

	return operatorTable[k].spelling
}

// Valid reports whether k is a known operator kind.
func (k OperatorKind) Valid() bool {
	return k > OpNone && k < operatorKindCount
}
