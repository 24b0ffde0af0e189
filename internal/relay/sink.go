package relay

// Sink receives traffic and failure counts from the router. Implementations
// must be safe for concurrent use.
type Sink interface {
	MessageRouted(kind string)
	Registration(result string)
	DeliveryFailed(reason string)
	CollaboratorFailed(collaborator string)
	ActiveSessions(n int)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) MessageRouted(string)      {}
func (NopSink) Registration(string)       {}
func (NopSink) DeliveryFailed(string)     {}
func (NopSink) CollaboratorFailed(string) {}
func (NopSink) ActiveSessions(int)        {}

func deliveryReason(err error) string {
	switch err {
	case ErrTransportClosed:
		return "transport_closed"
	case ErrSendTimeout:
		return "send_timeout"
	default:
		return "other"
	}
}
