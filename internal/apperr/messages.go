package apperr

// User-facing messages. Each action has its own validation message so the
// caller can tell which form was rejected.
const (
	MsgScriptInvalid   = "Invalid script configuration."
	MsgScriptFailed    = "Unable to generate script. Check API key and try again."
	MsgCallInvalid     = "Invalid call request."
	MsgCallDuplicate   = "A call to this number was just placed."
	MsgCallFailed      = "Unable to start call. Verify Twilio credentials and destination number."
	MsgStatusRefresh   = "Unable to refresh call status."
	MsgStatusRetrieval = "Unable to retrieve call status."
)

// ScriptMessage maps a script generation failure to its user-facing message.
func ScriptMessage(err error) string {
	if IsKind(err, KindValidation) {
		return MsgScriptInvalid
	}
	return MsgScriptFailed
}

// CallMessage maps a call initiation failure to its user-facing message.
func CallMessage(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return MsgCallInvalid
	case KindDuplicateLaunch:
		return MsgCallDuplicate
	default:
		return MsgCallFailed
	}
}
