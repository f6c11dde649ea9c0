package transport

// Update is a push event from the backend. The variant set is closed:
// consumers dispatch with a type switch and route unknown variants to an
// explicit ignored bucket.
type Update interface {
	isUpdate()
}

// AuthStateChanged reports a change of the backend authentication state.
type AuthStateChanged struct {
	State AuthState

	// Hint is the backend's password hint, set when State is
	// [AuthWaitPassword].
	Hint string
}

// NewMessage reports a message delivered to one of the client's chats.
// Deliveries may arrive duplicated or out of order; consumers deduplicate by
// [Message.ID].
type NewMessage struct {
	Message Message
}

// FileDownloaded reports completion of a background file transfer.
type FileDownloaded struct {
	FileID string
	Path   string
}

// SessionClosed reports an unrecoverable session teardown initiated by the
// backend.
type SessionClosed struct {
	Reason string
}

func (AuthStateChanged) isUpdate() {}
func (NewMessage) isUpdate()       {}
func (FileDownloaded) isUpdate()   {}
func (SessionClosed) isUpdate()    {}
