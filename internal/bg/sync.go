package bg

// Sync runs each function inline; Do returns after fn does.
type Sync struct{}

// Do calls fn.
func (Sync) Do(fn func()) {
	fn()
}
