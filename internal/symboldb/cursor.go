package symboldb

import "github.com/rtagsd/rtagsd/internal/usr"

// Kind is the CursorInfo kind taxonomy from spec §3, derived from the
// libclang/tree-sitter entity kind crossed with isDefinition (§4.E "Kind
// mapping").
type Kind int

const (
	KindInvalid Kind = iota
	KindClass
	KindClassForwardDecl
	KindStruct
	KindStructForwardDecl
	KindUnion
	KindEnum
	KindEnumValue
	KindNamespace
	KindField
	KindVariable
	KindMemberFunctionDecl
	KindMemberFunctionDef
	KindMethodDecl
	KindMethodDef
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "Class"
	case KindClassForwardDecl:
		return "ClassForwardDecl"
	case KindStruct:
		return "Struct"
	case KindStructForwardDecl:
		return "StructForwardDecl"
	case KindUnion:
		return "Union"
	case KindEnum:
		return "Enum"
	case KindEnumValue:
		return "EnumValue"
	case KindNamespace:
		return "Namespace"
	case KindField:
		return "Field"
	case KindVariable:
		return "Variable"
	case KindMemberFunctionDecl:
		return "MemberFunctionDecl"
	case KindMemberFunctionDef:
		return "MemberFunctionDef"
	case KindMethodDecl:
		return "MethodDecl"
	case KindMethodDef:
		return "MethodDef"
	case KindReference:
		return "Reference"
	default:
		return "Invalid"
	}
}

// IsDefKind reports whether k represents a definition-shaped entity, used
// to route a restored symbol into decls or defs and to pick cursor targets.
// The indexer callbacks decide decls-vs-defs from Decl.IsDefinition instead.
func (k Kind) IsDefKind() bool {
	switch k {
	case KindMemberFunctionDef, KindMethodDef:
		return true
	default:
		return false
	}
}

// CursorInfo is the value stored at a Location (spec §3).
type CursorInfo struct {
	USR             usr.ID
	Kind            Kind
	StartByteOffset uint32
	EndByteOffset   uint32
}

// Length is end-start, per spec §3.
func (c CursorInfo) Length() uint32 {
	if c.EndByteOffset < c.StartByteOffset {
		return 0
	}
	return c.EndByteOffset - c.StartByteOffset
}

// unite merges other into c in place following the original CursorInfo::unite
// semantics (original_source/rdm/CursorInfo.h): the earliest non-empty value
// for each field wins, used when two jobs independently record the same
// Location (header dedup, spec §8 scenario 2).
func unite(c, other CursorInfo) (CursorInfo, bool) {
	changed := false
	if c.USR == 0 && other.USR != 0 {
		c.USR = other.USR
		changed = true
	}
	if c.Kind == KindInvalid && other.Kind != KindInvalid {
		c.Kind = other.Kind
		changed = true
	}
	if c.StartByteOffset == 0 && c.EndByteOffset == 0 && (other.StartByteOffset != 0 || other.EndByteOffset != 0) {
		c.StartByteOffset = other.StartByteOffset
		c.EndByteOffset = other.EndByteOffset
		changed = true
	}
	return c, changed
}
