package shadow

import "sync"

// Map is the address-indexed shadow store. Each tracked address maps to the
// Cell holding its access history. Backed by sync.Map: the workload is
// read-mostly (a cell is allocated once per address, then hit on every
// access), which is the case sync.Map is built for.
type Map struct {
	cells sync.Map // uintptr -> *Cell
}

// NewMap returns an empty shadow store.
func NewMap() *Map {
	return &Map{}
}

// GetOrCreate returns the cell for addr, allocating one on first access.
// Concurrent first accesses to the same address all receive the same cell.
func (m *Map) GetOrCreate(addr uintptr) *Cell {
	if v, ok := m.cells.Load(addr); ok {
		return v.(*Cell)
	}
	v, _ := m.cells.LoadOrStore(addr, NewCell())
	return v.(*Cell)
}

// Lookup returns the cell for addr, or nil if the address was never tracked.
func (m *Map) Lookup(addr uintptr) *Cell {
	v, ok := m.cells.Load(addr)
	if !ok {
		return nil
	}
	return v.(*Cell)
}

// Reset drops every cell. Not safe against concurrent tracker use; test and
// reinitialization paths only.
func (m *Map) Reset() {
	m.cells = sync.Map{}
}
