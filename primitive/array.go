package primitive

import (
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"docengine/docerrors"
	"docengine/fractionalindex"
	"docengine/operation"
)

// ArrayEntry is one element of an Array's state: a value at a
// fractional-index position, keyed by a stable id independent of
// position.
type ArrayEntry struct {
	ID    string `json:"id"`
	Pos   string `json:"pos"`
	Value State  `json:"value"`
}

// ArrayPrimitive is the schema descriptor for an ordered, keyed sequence
// of elements sharing one element schema.
type ArrayPrimitive struct {
	element  Primitive
	required bool
}

// Array creates a schema descriptor whose elements all conform to element.
func Array(element Primitive) *ArrayPrimitive {
	return &ArrayPrimitive{element: element}
}

// Element returns the declared element schema.
func (p *ArrayPrimitive) Element() Primitive { return p.element }

func sortEntries(entries []ArrayEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Pos < entries[j].Pos })
}

func entriesFromState(state State) []ArrayEntry {
	entries, _ := state.([]ArrayEntry)
	return append([]ArrayEntry(nil), entries...)
}

func findEntry(entries []ArrayEntry, id string) (int, bool) {
	for i, e := range entries {
		if e.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ArrayProxy is the mutation/read API for an array node.
type ArrayProxy struct {
	env    Env
	path   operation.Path
	schema *ArrayPrimitive
}

// Get returns the array's current entries, sorted by position.
func (p ArrayProxy) Get() []ArrayEntry {
	entries := entriesFromState(p.env.GetState(p.path))
	sortEntries(entries)
	return entries
}

// At returns a proxy for the element with the given id, or nil if no
// such id exists in the current state.
func (p ArrayProxy) At(id string) any {
	if _, ok := findEntry(p.Get(), id); !ok {
		return nil
	}
	return p.schema.element.CreateProxy(p.env, p.path.Append(id))
}

// Set replaces the whole entries list in one operation.
func (p ArrayProxy) Set(entries []ArrayEntry) error {
	payload := make([]any, len(entries))
	for i, e := range entries {
		payload[i] = map[string]any{"id": e.ID, "pos": e.Pos, "value": e.Value}
	}
	return p.env.Push(operation.New(operation.KindArraySet, p.path, payload))
}

// InsertAt inserts value at visual index, generating a fresh id and a
// fractional position strictly between the current neighbours at
// index-1 and index.
func (p ArrayProxy) InsertAt(index int, value any) (string, error) {
	entries := p.Get()
	if index < 0 {
		index = 0
	}
	if index > len(entries) {
		index = len(entries)
	}
	var lower, upper *string
	if index > 0 {
		lower = &entries[index-1].Pos
	}
	if index < len(entries) {
		upper = &entries[index].Pos
	}
	pos, err := fractionalindex.GenerateKeyBetween(lower, upper)
	if err != nil {
		return "", errors.Wrap(err, "generate array position")
	}
	id := uuid.NewString()
	payload := map[string]any{"id": id, "pos": pos, "value": value}
	return id, p.env.Push(operation.New(operation.KindArrayInsert, p.path, payload))
}

// Append inserts value at the end of the array.
func (p ArrayProxy) Append(value any) (string, error) {
	return p.InsertAt(len(p.Get()), value)
}

// Remove drops the element with the given id.
func (p ArrayProxy) Remove(id string) error {
	return p.env.Push(operation.New(operation.KindArrayRemove, p.path, map[string]any{"id": id}))
}

// Move relocates the element with the given id to visual index.
func (p ArrayProxy) Move(id string, index int) error {
	entries := p.Get()
	withoutID := entries[:0:0]
	for _, e := range entries {
		if e.ID != id {
			withoutID = append(withoutID, e)
		}
	}
	if index < 0 {
		index = 0
	}
	if index > len(withoutID) {
		index = len(withoutID)
	}
	var lower, upper *string
	if index > 0 {
		lower = &withoutID[index-1].Pos
	}
	if index < len(withoutID) {
		upper = &withoutID[index].Pos
	}
	pos, err := fractionalindex.GenerateKeyBetween(lower, upper)
	if err != nil {
		return errors.Wrap(err, "generate array position")
	}
	return p.env.Push(operation.New(operation.KindArrayMove, p.path, map[string]any{"id": id, "pos": pos}))
}

// CreateProxy implements Primitive.
func (p *ArrayPrimitive) CreateProxy(env Env, path operation.Path) any {
	return ArrayProxy{env: env, path: path, schema: p}
}

func decodeEntryValue(element Primitive, v any) (State, error) {
	kind, ok := wholesaleSetKind(element)
	if !ok {
		return nil, docerrors.ErrSchemaValidation{Message: "array element schema has no wholesale-set form"}
	}
	return element.ApplyOperation(nil, operation.New(kind, operation.NewPath(), v))
}

// ApplyOperation implements Primitive.
func (p *ArrayPrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	entries := entriesFromState(state)

	if op.Path.Empty() {
		switch op.Kind {
		case operation.KindArraySet:
			raw, ok := op.Payload.([]any)
			if !ok {
				return nil, docerrors.ErrSchemaValidation{Message: "array.set payload must be a list"}
			}
			next := make([]ArrayEntry, 0, len(raw))
			seen := map[string]bool{}
			for _, item := range raw {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, docerrors.ErrSchemaValidation{Message: "array.set entry must be an object"}
				}
				id, _ := m["id"].(string)
				pos, _ := m["pos"].(string)
				if id == "" || pos == "" {
					return nil, docerrors.ErrSchemaValidation{Message: "array.set entry requires id and pos"}
				}
				if seen[id] {
					return nil, docerrors.ErrSchemaValidation{Message: "array.set entry id repeated: " + id}
				}
				seen[id] = true
				value, err := decodeEntryValue(p.element, m["value"])
				if err != nil {
					return nil, errors.Wrapf(err, "entry %s", id)
				}
				next = append(next, ArrayEntry{ID: id, Pos: pos, Value: value})
			}
			sortEntries(next)
			return next, nil

		case operation.KindArrayInsert:
			m, ok := op.Payload.(map[string]any)
			if !ok {
				return nil, docerrors.ErrSchemaValidation{Message: "array.insert payload must be an object"}
			}
			id, _ := m["id"].(string)
			pos, _ := m["pos"].(string)
			if id == "" || pos == "" {
				return nil, docerrors.ErrSchemaValidation{Message: "array.insert requires id and pos"}
			}
			if _, exists := findEntry(entries, id); exists {
				return nil, docerrors.ErrSchemaValidation{Message: "array.insert id already exists: " + id}
			}
			value, err := decodeEntryValue(p.element, m["value"])
			if err != nil {
				return nil, err
			}
			next := append(entries, ArrayEntry{ID: id, Pos: pos, Value: value})
			sortEntries(next)
			return next, nil

		case operation.KindArrayRemove:
			m, ok := op.Payload.(map[string]any)
			if !ok {
				return nil, docerrors.ErrSchemaValidation{Message: "array.remove payload must be an object"}
			}
			id, _ := m["id"].(string)
			idx, ok := findEntry(entries, id)
			if !ok {
				return nil, docerrors.ErrUnknownID{ID: id}
			}
			next := append(append([]ArrayEntry(nil), entries[:idx]...), entries[idx+1:]...)
			return next, nil

		case operation.KindArrayMove:
			m, ok := op.Payload.(map[string]any)
			if !ok {
				return nil, docerrors.ErrSchemaValidation{Message: "array.move payload must be an object"}
			}
			id, _ := m["id"].(string)
			pos, _ := m["pos"].(string)
			idx, ok := findEntry(entries, id)
			if !ok {
				return nil, docerrors.ErrUnknownID{ID: id}
			}
			next := append([]ArrayEntry(nil), entries...)
			next[idx].Pos = pos
			sortEntries(next)
			return next, nil

		default:
			return nil, docerrors.ErrSchemaValidation{Message: "unsupported operation kind for array: " + string(op.Kind)}
		}
	}

	token, childOp, _ := shiftPath(op)
	idx, ok := findEntry(entries, token)
	if !ok {
		return nil, docerrors.ErrUnknownID{ID: token}
	}
	newValue, err := p.element.ApplyOperation(entries[idx].Value, childOp)
	if err != nil {
		return nil, err
	}
	next := append([]ArrayEntry(nil), entries...)
	next[idx].Value = newValue
	return next, nil
}

// InitialState implements Primitive: an empty array.
func (p *ArrayPrimitive) InitialState() State {
	return []ArrayEntry{}
}

// arrayTargetID extracts the element id an array operation names, either
// from a path token (nested op) or from its own payload (remove/move).
func arrayTargetID(op operation.Operation) (string, bool) {
	if !op.Path.Empty() {
		head, _ := op.Path.Head()
		return head, true
	}
	switch op.Kind {
	case operation.KindArrayRemove, operation.KindArrayMove:
		m, ok := op.Payload.(map[string]any)
		if !ok {
			return "", false
		}
		id, ok := m["id"].(string)
		return id, ok
	default:
		return "", false
	}
}

// TransformOperation implements Primitive.
func (p *ArrayPrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	if serverOp.Path.Empty() && serverOp.Kind == operation.KindArrayRemove {
		if removedID, ok := arrayTargetID(serverOp); ok {
			if targetID, ok2 := arrayTargetID(clientOp); ok2 && targetID == removedID {
				return NoopResult()
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
	result := p.element.TransformOperation(withPath(clientOp, cRest), withPath(serverOp, sRest))
	return withResultPath(result, cHead, operation.NewPath())
}
