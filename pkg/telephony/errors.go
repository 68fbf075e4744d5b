package telephony

import (
	"errors"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// Twilio error codes meaning the destination cannot be called from a trial
// or unverified account.
const (
	CodeTrialUnverified  = 21219
	CodeNotVerified      = 21210
	CodeUnverifiedRegion = 21608
)

// Rejection is the diagnostic detail of a provider refusal.
type Rejection struct {
	Code     int
	Status   int
	Message  string
	MoreInfo string
}

// AsRejection extracts the REST error, if any.
func AsRejection(err error) (Rejection, bool) {
	var rest *client.TwilioRestError
	if errors.As(err, &rest) && rest != nil {
		return Rejection{Code: rest.Code, Status: rest.Status, Message: rest.Message, MoreInfo: rest.MoreInfo}, true
	}
	return Rejection{}, false
}

// IsUnverified reports whether err is the "destination not verified" class.
func IsUnverified(err error) bool {
	if err == nil {
		return false
	}
	if r, ok := AsRejection(err); ok {
		switch r.Code {
		case CodeTrialUnverified, CodeNotVerified, CodeUnverifiedRegion:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not verified") || strings.Contains(msg, "unverified")
}
