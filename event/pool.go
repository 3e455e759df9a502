package event

import "fmt"

// StringPool is an append only table assigning dense ids to distinct strings.
// Ids are handed out in allocation order starting at zero and the text of an
// id never changes.
//
// The producer interns strings with Intern. The consumer keeps a mirror which
// it fills with Append in the order the producer announced them, so ids line
// up on both sides.
type StringPool struct {
	strs  []string
	ids   map[string]int32
	onNew func(id int32, s string)
}

// NewStringPool returns an empty pool. If onNew is non-nil it is called each
// time Intern allocates an id, before Intern returns.
func NewStringPool(onNew func(id int32, s string)) *StringPool {
	return &StringPool{ids: make(map[string]int32), onNew: onNew}
}

// Intern returns the id of s, allocating a new one if s was never seen.
func (p *StringPool) Intern(s string) int32 {
	if id, ok := p.ids[s]; ok {
		return id
	}
	if p.ids == nil {
		p.ids = make(map[string]int32)
	}
	id := int32(len(p.strs))
	p.strs = append(p.strs, s)
	p.ids[s] = id
	if p.onNew != nil {
		p.onNew(id, s)
	}
	return id
}

// Append adds s as the next id without de-duplication and returns that id. It
// is meant for mirrors of a remote pool whose entries are already distinct.
func (p *StringPool) Append(s string) int32 {
	id := int32(len(p.strs))
	p.strs = append(p.strs, s)
	if p.ids == nil {
		p.ids = make(map[string]int32)
	}
	if _, ok := p.ids[s]; !ok {
		p.ids[s] = id
	}
	return id
}

// Lookup returns the string for id, or false if id was never allocated.
func (p *StringPool) Lookup(id int32) (string, bool) {
	if id < 0 || int(id) >= len(p.strs) {
		return ``, false
	}
	return p.strs[id], true
}

// Get returns the string for id or a placeholder naming the missing id.
func (p *StringPool) Get(id int32) string {
	if s, ok := p.Lookup(id); ok {
		return s
	}
	return fmt.Sprintf(`ID(%v missing)`, id)
}

// ID returns the id previously assigned to s.
func (p *StringPool) ID(s string) (int32, bool) {
	id, ok := p.ids[s]
	return id, ok
}

// Len returns the number of allocated ids.
func (p *StringPool) Len() int {
	return len(p.strs)
}

// Strings returns the pool contents indexed by id. The returned slice must not
// be modified.
func (p *StringPool) Strings() []string {
	return p.strs
}
