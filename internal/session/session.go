package session

// Session is the narrow identity capability flows declare instead of reaching
// into ambient auth state. Consumers only ever need the owner id and the
// department claim.
type Session interface {
	UserID() string
	Department() string
}

// Static is a fixed Session, handy for construction from verified claims and
// for tests.
type Static struct {
	User string
	Dept string
}

func (s Static) UserID() string     { return s.User }
func (s Static) Department() string { return s.Dept }
