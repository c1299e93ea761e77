package primitive

import (
	"github.com/pkg/errors"

	"docengine/docerrors"
	"docengine/fractionalindex"
	"docengine/operation"
)

// TreeNodeState is one node of a Tree's flat state representation. A nil
// ParentID marks the root.
type TreeNodeState struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	ParentID *string `json:"parentId,omitempty"`
	Pos      string  `json:"pos"`
	Data     State   `json:"data"`
}

// TreeNodeType declares one node kind a Tree may contain: the schema for
// its Data payload and the set of child type names it may parent.
type TreeNodeType struct {
	Name            string
	Data            Primitive
	AllowedChildren []string
}

// TreePrimitive is the schema descriptor for an ordered tree: a flat
// sequence of typed nodes linked by parent id, with fractional-index
// sibling ordering.
type TreePrimitive struct {
	rootType string
	types    map[string]TreeNodeType
}

// Tree creates a schema descriptor whose root is always of rootType.
func Tree(rootType string, types ...TreeNodeType) *TreePrimitive {
	p := &TreePrimitive{rootType: rootType, types: make(map[string]TreeNodeType, len(types))}
	for _, t := range types {
		p.types[t.Name] = t
	}
	return p
}

func cloneNodes(nodes []TreeNodeState) []TreeNodeState {
	return append([]TreeNodeState(nil), nodes...)
}

func nodesFromState(state State) []TreeNodeState {
	nodes, _ := state.([]TreeNodeState)
	return cloneNodes(nodes)
}

func findNode(nodes []TreeNodeState, id string) (int, bool) {
	for i, n := range nodes {
		if n.ID == id {
			return i, true
		}
	}
	return -1, false
}

func childrenOf(nodes []TreeNodeState, parentID string) []TreeNodeState {
	var out []TreeNodeState
	for _, n := range nodes {
		if n.ParentID != nil && *n.ParentID == parentID {
			out = append(out, n)
		}
	}
	sortNodesByPos(out)
	return out
}

func sortNodesByPos(nodes []TreeNodeState) {
	sortEntries2(nodes)
}

// sortEntries2 sorts tree siblings by position; a separate name from
// sortEntries avoids overloading across the two unrelated state shapes.
func sortEntries2(nodes []TreeNodeState) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j-1].Pos > nodes[j].Pos; j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}

// isDescendant reports whether candidate is id or a descendant of id.
func isDescendant(nodes []TreeNodeState, id, candidate string) bool {
	current := candidate
	for {
		if current == id {
			return true
		}
		idx, ok := findNode(nodes, current)
		if !ok || nodes[idx].ParentID == nil {
			return false
		}
		current = *nodes[idx].ParentID
	}
}

func descendantsOf(nodes []TreeNodeState, id string) map[string]bool {
	out := map[string]bool{}
	var walk func(string)
	walk = func(parent string) {
		for _, n := range nodes {
			if n.ParentID != nil && *n.ParentID == parent && !out[n.ID] {
				out[n.ID] = true
				walk(n.ID)
			}
		}
	}
	walk(id)
	return out
}

func allowedChild(parentType TreeNodeType, childType string) bool {
	for _, t := range parentType.AllowedChildren {
		if t == childType {
			return true
		}
	}
	return false
}

// TreeProxy is the mutation/read API for a tree node.
type TreeProxy struct {
	env    Env
	path   operation.Path
	schema *TreePrimitive
}

// Get returns the tree's current nodes.
func (p TreeProxy) Get() []TreeNodeState {
	return nodesFromState(p.env.GetState(p.path))
}

// Node returns a proxy for the node's Data, addressed by id.
func (p TreeProxy) Node(id string) any {
	nodes := p.Get()
	idx, ok := findNode(nodes, id)
	if !ok {
		return nil
	}
	nodeType, ok := p.schema.types[nodes[idx].Type]
	if !ok {
		return nil
	}
	return nodeType.Data.CreateProxy(p.env, p.path.Append(id))
}

// Insert adds a new node as the last child of parentID. A nil parentID
// inserts a root node, which is rejected unless the tree is empty.
func (p TreeProxy) Insert(id, nodeType string, parentID *string, data any) error {
	nodes := p.Get()
	var pos string
	if parentID != nil {
		siblings := childrenOf(nodes, *parentID)
		var lower, upper *string
		if len(siblings) > 0 {
			last := siblings[len(siblings)-1].Pos
			lower = &last
		}
		generated, err := fractionalindex.GenerateKeyBetween(lower, upper)
		if err != nil {
			return errors.Wrap(err, "generate tree position")
		}
		pos = generated
	} else {
		generated, err := fractionalindex.GenerateKeyBetween(nil, nil)
		if err != nil {
			return errors.Wrap(err, "generate tree position")
		}
		pos = generated
	}
	payload := map[string]any{"id": id, "type": nodeType, "pos": pos, "data": data}
	if parentID != nil {
		payload["parentId"] = *parentID
	}
	return p.env.Push(operation.New(operation.KindTreeInsert, p.path, payload))
}

// Remove deletes id and all of its descendants.
func (p TreeProxy) Remove(id string) error {
	return p.env.Push(operation.New(operation.KindTreeRemove, p.path, map[string]any{"id": id}))
}

// Move relocates id under newParentID as the last child.
func (p TreeProxy) Move(id string, newParentID string) error {
	nodes := p.Get()
	siblings := childrenOf(nodes, newParentID)
	var lower *string
	if len(siblings) > 0 {
		last := siblings[len(siblings)-1].Pos
		lower = &last
	}
	pos, err := fractionalindex.GenerateKeyBetween(lower, nil)
	if err != nil {
		return errors.Wrap(err, "generate tree position")
	}
	return p.env.Push(operation.New(operation.KindTreeMove, p.path, map[string]any{
		"id": id, "newParentId": newParentID, "pos": pos,
	}))
}

// CreateProxy implements Primitive.
func (p *TreePrimitive) CreateProxy(env Env, path operation.Path) any {
	return TreeProxy{env: env, path: path, schema: p}
}

func decodeNodeData(nodeType TreeNodeType, v any) (State, error) {
	kind, ok := wholesaleSetKind(nodeType.Data)
	if !ok {
		return nil, docerrors.ErrSchemaValidation{Message: "tree node type has no wholesale-set data form"}
	}
	return nodeType.Data.ApplyOperation(nil, operation.New(kind, operation.NewPath(), v))
}

func decodeTreeSetPayload(p *TreePrimitive, raw []any) ([]TreeNodeState, error) {
	next := make([]TreeNodeState, 0, len(raw))
	seen := map[string]bool{}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, docerrors.ErrSchemaValidation{Message: "tree.set entry must be an object"}
		}
		id, _ := m["id"].(string)
		typ, _ := m["type"].(string)
		pos, _ := m["pos"].(string)
		if id == "" || typ == "" || pos == "" {
			return nil, docerrors.ErrSchemaValidation{Message: "tree.set entry requires id, type and pos"}
		}
		if seen[id] {
			return nil, docerrors.ErrSchemaValidation{Message: "tree.set entry id repeated: " + id}
		}
		seen[id] = true
		nodeType, ok := p.types[typ]
		if !ok {
			return nil, docerrors.ErrTreeInvariant{Message: "unknown node type: " + typ}
		}
		var parentID *string
		if raw, ok := m["parentId"]; ok && raw != nil {
			s, _ := raw.(string)
			parentID = &s
		}
		data, err := decodeNodeData(nodeType, m["data"])
		if err != nil {
			return nil, errors.Wrapf(err, "node %s", id)
		}
		next = append(next, TreeNodeState{ID: id, Type: typ, ParentID: parentID, Pos: pos, Data: data})
	}
	if err := validateTreeInvariants(p, next); err != nil {
		return nil, err
	}
	return next, nil
}

func validateTreeInvariants(p *TreePrimitive, nodes []TreeNodeState) error {
	if len(nodes) == 0 {
		return nil
	}
	roots := 0
	byID := map[string]TreeNodeState{}
	for _, n := range nodes {
		byID[n.ID] = n
		if n.ParentID == nil {
			roots++
		}
	}
	if roots != 1 {
		return docerrors.ErrTreeInvariant{Message: "tree must have exactly one root"}
	}
	for _, n := range nodes {
		if n.ParentID == nil {
			if n.Type != p.rootType {
				return docerrors.ErrTreeInvariant{Message: "root node must have type " + p.rootType}
			}
			continue
		}
		parent, ok := byID[*n.ParentID]
		if !ok {
			return docerrors.ErrTreeInvariant{Message: "unknown parent id: " + *n.ParentID}
		}
		parentType, ok := p.types[parent.Type]
		if !ok || !allowedChild(parentType, n.Type) {
			return docerrors.ErrTreeInvariant{Message: "type " + n.Type + " is not an allowed child of " + parent.Type}
		}
	}
	for _, n := range nodes {
		seen := map[string]bool{}
		current := n.ID
		for {
			if seen[current] {
				return docerrors.ErrTreeInvariant{Message: "cycle detected at node " + n.ID}
			}
			seen[current] = true
			node, ok := byID[current]
			if !ok || node.ParentID == nil {
				break
			}
			current = *node.ParentID
		}
	}
	return nil
}

// ApplyOperation implements Primitive.
func (p *TreePrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	nodes := nodesFromState(state)

	if op.Path.Empty() {
		switch op.Kind {
		case operation.KindTreeSet:
			raw, ok := op.Payload.([]any)
			if !ok {
				return nil, docerrors.ErrSchemaValidation{Message: "tree.set payload must be a list"}
			}
			return decodeTreeSetPayload(p, raw)

		case operation.KindTreeInsert:
			m, ok := op.Payload.(map[string]any)
			if !ok {
				return nil, docerrors.ErrSchemaValidation{Message: "tree.insert payload must be an object"}
			}
			id, _ := m["id"].(string)
			typ, _ := m["type"].(string)
			pos, _ := m["pos"].(string)
			if id == "" || typ == "" || pos == "" {
				return nil, docerrors.ErrSchemaValidation{Message: "tree.insert requires id, type and pos"}
			}
			if _, exists := findNode(nodes, id); exists {
				return nil, docerrors.ErrTreeInvariant{Message: "tree.insert id already exists: " + id}
			}
			nodeType, ok := p.types[typ]
			if !ok {
				return nil, docerrors.ErrTreeInvariant{Message: "unknown node type: " + typ}
			}
			var parentID *string
			if raw, ok := m["parentId"]; ok && raw != nil {
				s, _ := raw.(string)
				parentID = &s
			}
			if parentID == nil {
				if len(nodes) > 0 {
					return nil, docerrors.ErrTreeInvariant{Message: "tree already has a root"}
				}
				if typ != p.rootType {
					return nil, docerrors.ErrTreeInvariant{Message: "root node must have type " + p.rootType}
				}
			} else {
				parentIdx, ok := findNode(nodes, *parentID)
				if !ok {
					return nil, docerrors.ErrUnknownID{ID: *parentID}
				}
				parentType, ok := p.types[nodes[parentIdx].Type]
				if !ok || !allowedChild(parentType, typ) {
					return nil, docerrors.ErrTreeInvariant{Message: "type " + typ + " is not an allowed child of " + nodes[parentIdx].Type}
				}
			}
			data, err := decodeNodeData(nodeType, m["data"])
			if err != nil {
				return nil, err
			}
			return append(nodes, TreeNodeState{ID: id, Type: typ, ParentID: parentID, Pos: pos, Data: data}), nil

		case operation.KindTreeRemove:
			m, ok := op.Payload.(map[string]any)
			if !ok {
				return nil, docerrors.ErrSchemaValidation{Message: "tree.remove payload must be an object"}
			}
			id, _ := m["id"].(string)
			if _, ok := findNode(nodes, id); !ok {
				return nil, docerrors.ErrUnknownID{ID: id}
			}
			toRemove := descendantsOf(nodes, id)
			toRemove[id] = true
			next := make([]TreeNodeState, 0, len(nodes))
			for _, n := range nodes {
				if !toRemove[n.ID] {
					next = append(next, n)
				}
			}
			return next, nil

		case operation.KindTreeMove:
			m, ok := op.Payload.(map[string]any)
			if !ok {
				return nil, docerrors.ErrSchemaValidation{Message: "tree.move payload must be an object"}
			}
			id, _ := m["id"].(string)
			newParentID, _ := m["newParentId"].(string)
			pos, _ := m["pos"].(string)
			idx, ok := findNode(nodes, id)
			if !ok {
				return nil, docerrors.ErrUnknownID{ID: id}
			}
			if nodes[idx].ParentID == nil {
				return nil, docerrors.ErrTreeInvariant{Message: "cannot reparent the root"}
			}
			parentIdx, ok := findNode(nodes, newParentID)
			if !ok {
				return nil, docerrors.ErrUnknownID{ID: newParentID}
			}
			if id == newParentID || isDescendant(nodes, id, newParentID) {
				return nil, docerrors.ErrTreeInvariant{Message: "move would create a cycle"}
			}
			parentType, ok := p.types[nodes[parentIdx].Type]
			if !ok || !allowedChild(parentType, nodes[idx].Type) {
				return nil, docerrors.ErrTreeInvariant{Message: "type " + nodes[idx].Type + " is not an allowed child of " + nodes[parentIdx].Type}
			}
			next := cloneNodes(nodes)
			next[idx].ParentID = &newParentID
			next[idx].Pos = pos
			return next, nil

		default:
			return nil, docerrors.ErrSchemaValidation{Message: "unsupported operation kind for tree: " + string(op.Kind)}
		}
	}

	token, childOp, _ := shiftPath(op)
	idx, ok := findNode(nodes, token)
	if !ok {
		return nil, docerrors.ErrUnknownID{ID: token}
	}
	nodeType, ok := p.types[nodes[idx].Type]
	if !ok {
		return nil, docerrors.ErrTreeInvariant{Message: "unknown node type: " + nodes[idx].Type}
	}
	newData, err := nodeType.Data.ApplyOperation(nodes[idx].Data, childOp)
	if err != nil {
		return nil, err
	}
	next := cloneNodes(nodes)
	next[idx].Data = newData
	return next, nil
}

// InitialState implements Primitive: a single synthesized root node with
// its type's default data and a deterministic starting position.
func (p *TreePrimitive) InitialState() State {
	rootType, ok := p.types[p.rootType]
	if !ok {
		return []TreeNodeState{}
	}
	pos, err := fractionalindex.GenerateKeyBetween(nil, nil)
	if err != nil {
		pos = "a0"
	}
	return []TreeNodeState{{ID: "root", Type: p.rootType, ParentID: nil, Pos: pos, Data: rootType.Data.InitialState()}}
}

// treeReferencedIDs extracts every node id an operation names, whether
// through its path (nested op) or its payload (remove's target,
// move's target and destination, insert's destination).
func treeReferencedIDs(op operation.Operation) []string {
	if !op.Path.Empty() {
		head, _ := op.Path.Head()
		return []string{head}
	}
	m, ok := op.Payload.(map[string]any)
	if !ok {
		return nil
	}
	switch op.Kind {
	case operation.KindTreeRemove:
		if id, ok := m["id"].(string); ok {
			return []string{id}
		}
	case operation.KindTreeMove:
		var ids []string
		if id, ok := m["id"].(string); ok {
			ids = append(ids, id)
		}
		if pid, ok := m["newParentId"].(string); ok {
			ids = append(ids, pid)
		}
		return ids
	case operation.KindTreeInsert:
		if pid, ok := m["parentId"].(string); ok {
			return []string{pid}
		}
	}
	return nil
}

// TransformOperation implements Primitive. As with Union, nested-vs-nested
// overlap cannot generally resolve which node type's Data schema governs
// a given id without the state TransformOperation is not given; when more
// than one node type is declared this degrades to last-write-wins, which
// is documented as a known simplification.
func (p *TreePrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	if serverOp.Path.Empty() && serverOp.Kind == operation.KindTreeRemove {
		if m, ok := serverOp.Payload.(map[string]any); ok {
			if removedID, ok := m["id"].(string); ok {
				for _, ref := range treeReferencedIDs(clientOp) {
					if ref == removedID {
						return NoopResult()
					}
				}
			}
		}
	}
	if clientOp.Path.Empty() || serverOp.Path.Empty() {
		return TransformedResult(clientOp)
	}
	cHead, cRest := clientOp.Path.Shift()
	sHead, sRest := serverOp.Path.Shift()
	if cHead != sHead {
		return TransformedResult(clientOp)
	}
	if len(p.types) != 1 {
		return TransformedResult(clientOp)
	}
	for _, nodeType := range p.types {
		result := nodeType.Data.TransformOperation(withPath(clientOp, cRest), withPath(serverOp, sRest))
		return withResultPath(result, cHead, operation.NewPath())
	}
	return TransformedResult(clientOp)
}
