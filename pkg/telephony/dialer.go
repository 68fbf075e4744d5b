// Package telephony wraps the Twilio REST client and webhook plumbing.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Credentials authenticate against the Twilio REST API.
type Credentials struct {
	AccountSID string
	AuthToken  string
}

// PlaceCallParams describe one outbound call carrying inline TwiML.
type PlaceCallParams struct {
	From           string
	To             string
	Twiml          string
	StatusCallback string
}

type CallResult struct {
	SID    string
	Status string
}

// Caller places outbound calls.
type Caller interface {
	PlaceCall(ctx context.Context, p PlaceCallParams) (CallResult, error)
}

// Dialer provides outbound call creation via Twilio REST API.
type Dialer struct {
	creds  Credentials
	client callCreator
}

// NewDialer creates a new Twilio dialer.
func NewDialer(creds Credentials) *Dialer {
	return &Dialer{creds: creds}
}

// PlaceCall creates the call. The request runs once; there is no retry.
func (d *Dialer) PlaceCall(ctx context.Context, p PlaceCallParams) (CallResult, error) {
	if err := ctx.Err(); err != nil {
		return CallResult{}, errorsx.Wrap(err, errorsx.ReasonTelephonyPlaceCall)
	}
	if p.To == "" || p.From == "" {
		return CallResult{}, errorsx.Wrap(errors.New("to/from required"), errorsx.ReasonTelephonyPlaceCall)
	}
	if strings.TrimSpace(p.Twiml) == "" {
		return CallResult{}, errorsx.Wrap(errors.New("twiml required"), errorsx.ReasonTelephonyPlaceCall)
	}
	if d.creds.AccountSID == "" || d.creds.AuthToken == "" {
		return CallResult{}, errorsx.Wrap(errors.New("missing twilio credentials"), errorsx.ReasonTelephonyPlaceCall)
	}
	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.creds.AccountSID,
			Password: d.creds.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateCallParams{}
	params.SetTo(p.To)
	params.SetFrom(p.From)
	params.SetTwiml(p.Twiml)
	if p.StatusCallback != "" {
		params.SetStatusCallback(p.StatusCallback)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent([]string{"completed"})
	}
	resp, err := client.CreateCall(params)
	if err != nil {
		if IsUnverified(err) {
			return CallResult{}, errorsx.Wrap(err, errorsx.ReasonTelephonyUnverified)
		}
		return CallResult{}, errorsx.Wrap(err, errorsx.ReasonTelephonyPlaceCall)
	}
	if resp == nil || resp.Sid == nil {
		return CallResult{}, errorsx.Wrap(fmt.Errorf("missing call sid"), errorsx.ReasonTelephonyPlaceCall)
	}
	out := CallResult{SID: *resp.Sid}
	if resp.Status != nil {
		out.Status = *resp.Status
	}
	return out, nil
}

var _ Caller = (*Dialer)(nil)
