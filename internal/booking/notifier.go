package booking

// Notifier receives transient, user-facing notices. key identifies the
// action so a pending notice can be replaced by its outcome.
type Notifier interface {
	Pending(key, msg string)
	Success(key, msg string)
	Error(key, msg string)
}

type NopNotifier struct{}

func (NopNotifier) Pending(string, string) {}
func (NopNotifier) Success(string, string) {}
func (NopNotifier) Error(string, string)   {}
