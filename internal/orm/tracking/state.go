package tracking

// EntityState is the tracking state of an entry
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

// String returns the string representation of the state
func (s EntityState) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// HasPendingChanges reports whether saving would write the entry
func (s EntityState) HasPendingChanges() bool {
	return s == Added || s == Modified || s == Deleted
}
