package tsparser

import (
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/rtagsd/rtagsd/internal/parseapi"
	"github.com/rtagsd/rtagsd/internal/symboldb"
)

// frame is one entry in the walker's scope stack: a namespace or class/
// struct/union name, used to build qualified names (spec §3 "name
// permutations") and to decide Field-vs-Variable and Method-vs-
// MemberFunction kinds (spec §4.E "Kind mapping").
type frame struct {
	name    string
	isClass bool
}

// cppWalker walks one tree-sitter-cpp parse tree, reporting declarations,
// references, and includes through a parseapi.Sink. It textually follows
// #include directives (see tsparser.go's doc comment) using visitedHeaders
// as a per-IndexSourceFile-call guard against cycles and duplicate work.
type cppWalker struct {
	lang *ts.Language
	sink parseapi.Sink
	opts parseapi.Options

	content []byte
	path    string

	includeDirs    []string
	visitedHeaders map[string]bool

	frames []frame

	// classBases/classMethodUSR drive the textual virtual-override
	// heuristic: a derived class's method overrides a base class's
	// same-named method if the base was already walked (spec §4.E "For
	// virtual methods, query overridden cursors").
	classBases     map[string][]string
	classMethodUSR map[string]map[string]string
}

func (w *cppWalker) aborted() bool {
	return w.sink.AbortRequested()
}

func (w *cppWalker) qualifiedName(leaf string) []string {
	parts := make([]string, 0, len(w.frames)+1)
	for _, f := range w.frames {
		parts = append(parts, f.name)
	}
	if leaf != "" {
		parts = append(parts, leaf)
	}
	return parts
}

func (w *cppWalker) currentClass() string {
	if len(w.frames) == 0 || !w.frames[len(w.frames)-1].isClass {
		return ""
	}
	return w.frames[len(w.frames)-1].name
}

// namePermutations builds the "C", "B::C", "A::B::C" suffix permutations
// spec §3 requires for the names map.
func namePermutations(qualified []string) []string {
	var out []string
	for i := len(qualified) - 1; i >= 0; i-- {
		out = append(out, strings.Join(qualified[i:], "::"))
	}
	return out
}

func (w *cppWalker) walk(n *ts.Node) {
	if n == nil || w.aborted() {
		return
	}
	switch n.Kind() {
	case "preproc_include":
		w.walkInclude(n)
		return
	case "namespace_definition":
		w.walkNamespace(n)
		return
	case "class_specifier", "struct_specifier":
		w.walkClassLike(n, n.Kind() == "struct_specifier")
		return
	case "union_specifier":
		w.walkUnion(n)
		return
	case "enum_specifier":
		w.walkEnum(n)
		return
	case "function_definition":
		w.walkFunctionDefinition(n)
		return
	case "field_declaration":
		w.walkFieldDeclaration(n)
		return
	case "declaration":
		w.walkTopLevelDeclaration(n)
		return
	case "call_expression":
		w.walkCallExpression(n)
		// fall through to visit children (arguments may contain nested calls)
	}
	var i uint
	for i = 0; i < n.ChildCount(); i++ {
		w.walk(n.Child(i))
	}
}

func (w *cppWalker) walkInclude(n *ts.Node) {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	raw := nodeText(pathNode, w.content)
	quoted := strings.HasPrefix(raw, `"`)
	target := strings.Trim(raw, `"<>`)

	resolved, ok := resolveInclude(w.path, target, quoted, w.includeDirs)
	if !ok {
		return
	}

	hashLoc := loc(n, w.path)
	w.sink.IncludedFile(hashLoc, resolved)

	if w.visitedHeaders[resolved] {
		return
	}
	w.visitedHeaders[resolved] = true

	content, err := readFile(resolved)
	if err != nil {
		return
	}

	savedPath, savedContent := w.path, w.content
	parser := ts.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(w.lang); err != nil {
		return
	}
	tree := parser.Parse(content, nil)
	if tree == nil {
		return
	}
	defer tree.Close()

	w.path, w.content = resolved, content
	w.walk(tree.RootNode())
	w.path, w.content = savedPath, savedContent
}

func (w *cppWalker) walkNamespace(n *ts.Node) {
	nameNode := n.ChildByFieldName("name")
	name := nodeText(nameNode, w.content)
	parts := strings.Split(name, "::")
	if name == "" {
		parts = nil
	}
	for _, p := range parts {
		w.frames = append(w.frames, frame{name: p})
	}
	if name != "" {
		w.sink.IndexDeclaration(parseapi.Decl{
			USR:          synthesizeUSR(w.qualifiedName(""), "ns"),
			Kind:         symboldb.KindNamespace,
			Qualified:    w.qualifiedName(""),
			Location:     loc(n, w.path),
			IsDefinition: false,
		})
	}
	if body := n.ChildByFieldName("body"); body != nil {
		w.walkChildren(body)
	}
	w.frames = w.frames[:len(w.frames)-len(parts)]
}

func (w *cppWalker) walkChildren(n *ts.Node) {
	var i uint
	for i = 0; i < n.ChildCount(); i++ {
		w.walk(n.Child(i))
	}
}

func (w *cppWalker) walkClassLike(n *ts.Node, isStruct bool) {
	nameNode := n.ChildByFieldName("name")
	name := nodeText(nameNode, w.content)
	body := n.ChildByFieldName("body")
	isDef := body != nil

	kind := symboldb.KindClass
	fwdKind := symboldb.KindClassForwardDecl
	if isStruct {
		kind, fwdKind = symboldb.KindStruct, symboldb.KindStructForwardDecl
	}
	effKind := fwdKind
	if isDef {
		effKind = kind
	}

	qualified := w.qualifiedName(name)
	if name != "" {
		usr := synthesizeUSR(qualified, "class")
		w.sink.IndexDeclaration(parseapi.Decl{
			USR:          usr,
			Kind:         effKind,
			Qualified:    qualified,
			Location:     loc(n, w.path),
			EndByteOffset: uint32(n.EndByte()),
			IsDefinition: isDef,
		})
	}

	if !isDef {
		return
	}

	if bases := n.ChildByFieldName("base_class_clause"); bases != nil {
		w.classBases[name] = baseClassNames(bases, w.content)
	}

	w.frames = append(w.frames, frame{name: name, isClass: true})
	w.walkChildren(body)
	w.frames = w.frames[:len(w.frames)-1]
}

func (w *cppWalker) walkUnion(n *ts.Node) {
	nameNode := n.ChildByFieldName("name")
	name := nodeText(nameNode, w.content)
	body := n.ChildByFieldName("body")
	qualified := w.qualifiedName(name)
	if name != "" {
		w.sink.IndexDeclaration(parseapi.Decl{
			USR:          synthesizeUSR(qualified, "union"),
			Kind:         symboldb.KindUnion,
			Qualified:    qualified,
			Location:     loc(n, w.path),
			EndByteOffset: uint32(n.EndByte()),
			IsDefinition: body != nil,
		})
	}
	if body == nil {
		return
	}
	w.frames = append(w.frames, frame{name: name, isClass: true})
	w.walkChildren(body)
	w.frames = w.frames[:len(w.frames)-1]
}

func (w *cppWalker) walkEnum(n *ts.Node) {
	nameNode := n.ChildByFieldName("name")
	name := nodeText(nameNode, w.content)
	qualified := w.qualifiedName(name)
	if name != "" {
		w.sink.IndexDeclaration(parseapi.Decl{
			USR:          synthesizeUSR(qualified, "enum"),
			Kind:         symboldb.KindEnum,
			Qualified:    qualified,
			Location:     loc(n, w.path),
			EndByteOffset: uint32(n.EndByte()),
			IsDefinition: true,
		})
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	var i uint
	for i = 0; i < body.ChildCount(); i++ {
		child := body.Child(i)
		if child.Kind() != "enumerator" {
			continue
		}
		enNameNode := child.ChildByFieldName("name")
		enName := nodeText(enNameNode, w.content)
		if enName == "" {
			continue
		}
		enQualified := append(append([]string{}, qualified...), enName)
		w.sink.IndexDeclaration(parseapi.Decl{
			USR:          synthesizeUSR(enQualified, "enumval"),
			Kind:         symboldb.KindEnumValue,
			Qualified:    enQualified,
			Location:     loc(child, w.path),
			EndByteOffset: uint32(child.EndByte()),
			IsDefinition: false,
		})
	}
}

// declaratorName walks a (possibly nested) declarator chain to find the
// simple/qualified name being declared, returning its qualifier parts
// ("N","S","f" for N::S::f) and the declarator node that named it.
func declaratorName(n *ts.Node, content []byte) ([]string, *ts.Node) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind() {
	case "identifier", "field_identifier", "type_identifier", "namespace_identifier":
		return []string{nodeText(n, content)}, n
	case "destructor_name":
		return []string{"~" + nodeText(n.Child(n.ChildCount()-1), content)}, n
	case "operator_name":
		return []string{nodeText(n, content)}, n
	case "qualified_identifier":
		scopeParts, _ := declaratorName(n.ChildByFieldName("scope"), content)
		nameParts, target := declaratorName(n.ChildByFieldName("name"), content)
		return append(scopeParts, nameParts...), target
	case "function_declarator", "pointer_declarator", "reference_declarator", "parenthesized_declarator", "array_declarator":
		return declaratorName(n.ChildByFieldName("declarator"), content)
	default:
		return declaratorName(n.ChildByFieldName("declarator"), content)
	}
}

func functionDeclaratorOf(n *ts.Node) *ts.Node {
	switch n.Kind() {
	case "function_declarator":
		return n
	case "pointer_declarator", "reference_declarator", "parenthesized_declarator":
		return functionDeclaratorOf(n.ChildByFieldName("declarator"))
	default:
		return nil
	}
}

func hasVirtualKeyword(n *ts.Node, content []byte) bool {
	var i uint
	for i = 0; i < n.ChildCount(); i++ {
		if nodeText(n.Child(i), content) == "virtual" {
			return true
		}
	}
	return false
}

func hasOverrideSpecifier(n *ts.Node, content []byte) bool {
	var i uint
	for i = 0; i < n.ChildCount(); i++ {
		text := nodeText(n.Child(i), content)
		if text == "override" || text == "final" {
			return true
		}
	}
	return false
}

// qualifyDeclName resolves a declarator's name parts to a full qualified
// name: a declarator already written with "::" (qualParts has more than
// one segment) is taken as fully qualified as written; a bare name is
// prefixed with the enclosing namespace/class scope.
func (w *cppWalker) qualifyDeclName(qualParts []string) []string {
	if len(qualParts) > 1 {
		return qualParts
	}
	return append(w.qualifiedName(""), qualParts...)
}

func (w *cppWalker) recordMethod(qualified []string, methodName string, usr string, kind symboldb.Kind, n *ts.Node, isDef bool, virtual bool) {
	var overrides []string
	cls := w.currentClass()
	if cls != "" {
		for _, base := range w.classBases[cls] {
			if baseUSR, ok := w.classMethodUSR[base][methodName]; ok {
				overrides = append(overrides, baseUSR)
			}
		}
		if w.classMethodUSR[cls] == nil {
			w.classMethodUSR[cls] = map[string]string{}
		}
		w.classMethodUSR[cls][methodName] = usr
	}
	_ = virtual
	w.sink.IndexDeclaration(parseapi.Decl{
		USR:           usr,
		Kind:          kind,
		Qualified:     qualified,
		Location:      loc(n, w.path),
		EndByteOffset: uint32(n.EndByte()),
		IsDefinition:  isDef,
		Overrides:     overrides,
	})
}

func (w *cppWalker) walkFunctionDefinition(n *ts.Node) {
	declarator := n.ChildByFieldName("declarator")
	qualParts, nameNode := declaratorName(declarator, w.content)
	if len(qualParts) == 0 {
		w.walkChildren(n)
		return
	}
	methodName := qualParts[len(qualParts)-1]
	qualified := w.qualifyDeclName(qualParts)

	inClass := w.currentClass() != "" || w.outOfClassMember(qualParts)
	kind := symboldb.KindMethodDef
	if inClass {
		kind = symboldb.KindMemberFunctionDef
	}

	fd := functionDeclaratorOf(declarator)
	virtual := fd != nil && (hasVirtualKeyword(n, w.content) || hasOverrideSpecifier(fd, w.content))

	usr := synthesizeUSR(qualified, "fn")
	w.recordMethod(qualified, methodName, usr, kind, nameNode, true, virtual)

	if body := n.ChildByFieldName("body"); body != nil {
		w.walkFunctionBody(body)
	}
}

// outOfClassMember reports whether an out-of-class definition's qualifier
// prefix (e.g. the "S" in "void N::S::f(){}") names a previously seen
// class/struct/union, so it is attributed MemberFunctionDef rather than
// MethodDef even though the walker isn't inside that class's body.
func (w *cppWalker) outOfClassMember(qualParts []string) bool {
	if len(qualParts) < 2 {
		return false
	}
	owner := qualParts[len(qualParts)-2]
	_, known := w.classBases[owner]
	if known {
		return true
	}
	_, known = w.classMethodUSR[owner]
	return known
}

func (w *cppWalker) walkFieldDeclaration(n *ts.Node) {
	declarator := n.ChildByFieldName("declarator")
	if fd := functionDeclaratorOf(declarator); fd != nil {
		qualParts, nameNode := declaratorName(declarator, w.content)
		if len(qualParts) == 0 {
			return
		}
		methodName := qualParts[len(qualParts)-1]
		qualified := w.qualifyDeclName(qualParts)
		kind := symboldb.KindMethodDecl
		if w.currentClass() != "" {
			kind = symboldb.KindMemberFunctionDecl
		}
		virtual := hasVirtualKeyword(n, w.content) || hasOverrideSpecifier(fd, w.content)
		usr := synthesizeUSR(qualified, "fn")
		w.recordMethod(qualified, methodName, usr, kind, nameNode, false, virtual)
		return
	}

	qualParts, nameNode := declaratorName(declarator, w.content)
	if len(qualParts) == 0 {
		return
	}
	name := qualParts[len(qualParts)-1]
	qualified := w.qualifyDeclName([]string{name})
	kind := symboldb.KindVariable
	if w.currentClass() != "" {
		kind = symboldb.KindField
	}
	w.sink.IndexDeclaration(parseapi.Decl{
		USR:           synthesizeUSR(qualified, "field"),
		Kind:          kind,
		Qualified:     qualified,
		Location:      loc(nameNode, w.path),
		EndByteOffset: uint32(nameNode.EndByte()),
		IsDefinition:  false,
	})
	w.emitTypeReference(n.ChildByFieldName("type"))
}

func (w *cppWalker) walkTopLevelDeclaration(n *ts.Node) {
	declarator := n.ChildByFieldName("declarator")
	if declarator == nil {
		return
	}
	if fd := functionDeclaratorOf(declarator); fd != nil {
		qualParts, nameNode := declaratorName(declarator, w.content)
		if len(qualParts) == 0 {
			return
		}
		methodName := qualParts[len(qualParts)-1]
		qualified := w.qualifyDeclName(qualParts)
		usr := synthesizeUSR(qualified, "fn")
		kind := symboldb.KindMethodDecl
		if w.outOfClassMember(qualParts) {
			kind = symboldb.KindMemberFunctionDecl
		}
		w.recordMethod(qualified, methodName, usr, kind, nameNode, false, false)
		return
	}

	qualParts, nameNode := declaratorName(declarator, w.content)
	if len(qualParts) == 0 {
		return
	}
	qualified := w.qualifyDeclName(qualParts)
	w.sink.IndexDeclaration(parseapi.Decl{
		USR:           synthesizeUSR(qualified, "var"),
		Kind:          symboldb.KindVariable,
		Qualified:     qualified,
		Location:      loc(nameNode, w.path),
		EndByteOffset: uint32(nameNode.EndByte()),
		IsDefinition:  true,
	})
	w.emitTypeReference(n.ChildByFieldName("type"))
}

func (w *cppWalker) emitTypeReference(typeNode *ts.Node) {
	if typeNode == nil {
		return
	}
	name := nodeText(typeNode, w.content)
	if name == "" || isBuiltinType(name) {
		return
	}
	w.sink.IndexEntityReference(parseapi.Ref{
		USR:           synthesizeUSR([]string{name}, "class"),
		Location:      loc(typeNode, w.path),
		EndByteOffset: uint32(typeNode.EndByte()),
	})
}

func (w *cppWalker) walkCallExpression(n *ts.Node) {
	fnNode := n.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	qualParts, target := declaratorName(fnNode, w.content)
	if len(qualParts) == 0 {
		return
	}
	// A bare call like f() is resolved relative to the current scope when a
	// matching method has already been recorded there; otherwise it is
	// recorded against the literal written name, mirroring the approximate
	// resolution documented for synthesizeUSR.
	qualified := qualParts
	if len(qualParts) == 1 {
		if cls := w.currentClass(); cls != "" {
			if _, ok := w.classMethodUSR[cls][qualParts[0]]; ok {
				qualified = append(w.qualifiedName(""), qualParts[0])
			}
		}
	}
	w.sink.IndexEntityReference(parseapi.Ref{
		USR:           synthesizeUSR(qualified, "fn"),
		Location:      loc(target, w.path),
		EndByteOffset: uint32(target.EndByte()),
	})
}

func (w *cppWalker) walkFunctionBody(body *ts.Node) {
	w.walkChildren(body)
}

func baseClassNames(n *ts.Node, content []byte) []string {
	var names []string
	var i uint
	for i = 0; i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child.Kind() == "type_identifier" || child.Kind() == "qualified_identifier" {
			parts, _ := declaratorName(child, content)
			if len(parts) > 0 {
				names = append(names, parts[len(parts)-1])
			}
		}
	}
	return names
}

var builtinTypes = map[string]bool{
	"void": true, "bool": true, "char": true, "int": true, "short": true,
	"long": true, "float": true, "double": true, "unsigned": true,
	"signed": true, "wchar_t": true, "size_t": true, "auto": true,
	"const": true, "static": true, "struct": true, "class": true,
}

func isBuiltinType(name string) bool {
	for _, tok := range strings.Fields(name) {
		if !builtinTypes[tok] {
			return false
		}
	}
	return len(name) > 0
}
