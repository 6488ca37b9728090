// Package signature computes the HMAC credentials the platform requires for
// webhook ownership validation and for the streaming handshake.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
)

var ErrMissingCredentials = errors.New("missing credential material")

// Service holds validated key material. Construction is the only failure
// point; the digest methods never fail.
type Service struct {
	clientID     string
	clientSecret []byte
	secretToken  []byte
}

func New(clientID, clientSecret, secretToken string) (*Service, error) {
	if clientID == "" || clientSecret == "" || secretToken == "" {
		return nil, fmt.Errorf("%w: client_id, client_secret and secret_token are all required", ErrMissingCredentials)
	}
	return &Service{
		clientID:     clientID,
		clientSecret: []byte(clientSecret),
		secretToken:  []byte(secretToken),
	}, nil
}

func (s *Service) ClientID() string { return s.clientID }

// ChallengeResponse answers the webhook ownership-validation challenge:
// HMAC-SHA256 over plainToken keyed by the webhook secret token, as
// lowercase hex.
func (s *Service) ChallengeResponse(plainToken string) string {
	mac := hmac.New(sha256.New, s.secretToken)
	mac.Write([]byte(plainToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// HandshakeSignature signs the streaming join request: HMAC-SHA256 over
// "clientID,meetingID,streamID,timestamp" keyed by the client secret.
func (s *Service) HandshakeSignature(meetingID, streamID string, timestamp int64) string {
	mac := hmac.New(sha256.New, s.clientSecret)
	mac.Write([]byte(s.clientID + "," + meetingID + "," + streamID + "," + strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
