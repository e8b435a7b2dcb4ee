package lifecycle

// Session is the identity acting on a job. It is passed explicitly into every
// operation; nothing reads the acting staff member from ambient state.
type Session struct {
	StaffID   string
	SessionID string
	Name      string
}
