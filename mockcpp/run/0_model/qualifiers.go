package model

// QualifierKind is one of the method-head qualifier keywords.
type QualifierKind int

// QualifierKind values.
const (
	QualConst QualifierKind = iota
	QualVolatile
	QualVirtual
	QualInline
)

// String returns the keyword spelling.
func (k QualifierKind) String() string {
	switch k {
	case QualConst:
		return "const"
	case QualVolatile:
		return "volatile"
	case QualVirtual:
		return "virtual"
	case QualInline:
		return "inline"
	default:
		return "qualifier?"
	}
}

// QualifierKindFromKeyword maps a keyword to its QualifierKind.
func QualifierKindFromKeyword(word string) (QualifierKind, bool) {
	switch word {
	case "const":
		return QualConst, true
	case "volatile":
		return QualVolatile, true
	case "virtual":
		return QualVirtual, true
	case "inline":
		return QualInline, true
	default:
		return 0, false
	}
}

// QualifierSite tells where a qualifier was written: in the method head, before the return type's
// first type token, or after the parameter list.
type QualifierSite int

// QualifierSite values.
const (
	SiteHead QualifierSite = iota
	SiteTrailing
)

// QualifierToken is one qualifier keyword captured by the parser.
type QualifierToken struct {
	Kind QualifierKind
	Site QualifierSite
	Pos  Position
}

// Qualifiers is the canonical qualifier record of a method.
//
// Const and Volatile qualify the method (trailing). ReturnConst and ReturnVolatile qualify the return
// type (written in the head, in any order relative to virtual and inline).
type Qualifiers struct {
	Const          bool
	Volatile       bool
	Virtual        bool
	Inline         bool
	ReturnConst    bool
	ReturnVolatile bool
}
