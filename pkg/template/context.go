package template

// frame scopes name lookups for the dynamic extent of one block instance
// (or, for the bottom frame, the whole render). Caller-provided mappings are
// only ever read; the synthetic per-instance entries (the self-reference and
// the <block>#First/#Separator/#Last markers) live in the frame itself
// rather than being written into caller data.
type frame struct {
	values  map[string]any
	self    any
	hasSelf bool
	markers map[string]struct{}
}

// newFrame builds the frame for one block instance. Mapping instances
// expose their own keys and double as their self-reference; every other
// instance shape is reachable only through the self-reference.
func newFrame(instance any) *frame {
	if m, ok := asMapping(instance); ok {
		return &frame{values: m, self: m, hasSelf: true}
	}
	return &frame{self: instance, hasSelf: true}
}

func (f *frame) addMarker(name string) {
	if f.markers == nil {
		f.markers = make(map[string]struct{}, 3)
	}
	f.markers[name] = struct{}{}
}

// lookup resolves a name within this frame only. Markers resolve to an
// empty mapping: present and non-null, so a degenerate block probe renders
// its body exactly once.
func (f *frame) lookup(name string) (any, bool) {
	if name == "." {
		if f.hasSelf {
			return f.self, true
		}
	} else {
		if _, ok := f.markers[name]; ok {
			return map[string]any{}, true
		}
		if v, ok := f.values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// contextStack is the stack of frames a render resolves names against.
// Lookup searches innermost-first, which gives lexical shadowing with
// outer-scope fallback for both values and block names.
type contextStack struct {
	frames []*frame
}

func newContextStack(root map[string]any) *contextStack {
	return &contextStack{frames: []*frame{{values: root}}}
}

func (cs *contextStack) push(f *frame) {
	cs.frames = append(cs.frames, f)
}

func (cs *contextStack) pop() {
	cs.frames = cs.frames[:len(cs.frames)-1]
}

// lookup searches the stack innermost-first. The second return value
// distinguishes "found with a null value" from "not found anywhere", which
// the block expansion policy depends on.
func (cs *contextStack) lookup(name string) (any, bool) {
	for i := len(cs.frames) - 1; i >= 0; i-- {
		if v, ok := cs.frames[i].lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}
