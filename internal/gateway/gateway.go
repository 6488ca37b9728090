// Package gateway is the sole ingress for platform control-plane webhooks.
// It answers the ownership-validation challenge synchronously and turns
// every other notification into bus events after acknowledging it.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/signature"
)

const (
	eventURLValidation = "endpoint.url_validation"
	eventMeetingStart  = "meeting.started"

	suffixStreamStarted = ".rtms_started"
	suffixStreamStopped = ".rtms_stopped"
)

// MeetingStarter is the administrative collaborator that asks the platform
// to begin streaming for a meeting that just started. Optional.
type MeetingStarter interface {
	StartMeetingStream(ctx context.Context, meetingID string) error
}

type Controller struct {
	Sig *signature.Service
	Bus *core.Bus

	// DefaultMedia is the subscription mask applied to new sessions.
	DefaultMedia core.MediaType

	// Starter handles meeting.started; nil makes it a logged no-op.
	Starter MeetingStarter
}

type webhookEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// serverURLs accepts both the single-string and the array form the platform
// uses for stream endpoints.
type serverURLs []string

func (s *serverURLs) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = serverURLs{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = serverURLs(many)
	return nil
}

type streamPayload struct {
	MeetingUUID string     `json:"meeting_uuid"`
	StreamID    string     `json:"rtms_stream_id"`
	ServerURLs  serverURLs `json:"server_urls"`
	MediaTypes  uint32     `json:"media_types"`
}

type meetingPayload struct {
	Object struct {
		ID string `json:"id"`
	} `json:"object"`
}

// Webhook handles POST <webhookPath>. The validation challenge is answered
// inline; everything else gets its 200 flushed first and is dispatched on a
// separate goroutine so slow work never delays the acknowledgment.
func (ct *Controller) Webhook(c *gin.Context) {
	var env webhookEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		log.Warn().Err(err).Str("module", "gateway").Msg("malformed webhook body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed webhook body"})
		return
	}

	if env.Event == eventURLValidation {
		ct.validate(c, env.Payload)
		return
	}

	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	// The request context dies with the handler; dispatch must outlive it.
	go ct.dispatch(context.WithoutCancel(c.Request.Context()), env)
}

func (ct *Controller) validate(c *gin.Context, payload json.RawMessage) {
	var p struct {
		PlainToken string `json:"plainToken"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.PlainToken == "" {
		log.Warn().Str("module", "gateway").Msg("validation challenge without plainToken")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing plainToken"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plainToken":     p.PlainToken,
		"encryptedToken": ct.Sig.ChallengeResponse(p.PlainToken),
	})
}

func (ct *Controller) dispatch(ctx context.Context, env webhookEnvelope) {
	switch {
	case strings.HasSuffix(env.Event, suffixStreamStarted):
		var p streamPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.MeetingUUID == "" {
			log.Warn().Err(err).Str("module", "gateway").Str("event", env.Event).Msg("unusable stream-started payload")
			return
		}
		media := ct.DefaultMedia
		if p.MediaTypes != 0 {
			media = core.ParseMediaTypes(p.MediaTypes)
		}
		ct.Bus.Publish(core.SessionStarted{
			MeetingID:  p.MeetingUUID,
			StreamID:   p.StreamID,
			Endpoints:  p.ServerURLs,
			MediaTypes: media,
		})
	case strings.HasSuffix(env.Event, suffixStreamStopped):
		var p streamPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.MeetingUUID == "" {
			log.Warn().Err(err).Str("module", "gateway").Str("event", env.Event).Msg("unusable stream-stopped payload")
			return
		}
		ct.Bus.Publish(core.SessionStopped{MeetingID: p.MeetingUUID})
	case env.Event == eventMeetingStart:
		if ct.Starter == nil {
			log.Debug().Str("module", "gateway").Msg("meeting.started received, no starter configured")
			return
		}
		var p meetingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Object.ID == "" {
			log.Warn().Err(err).Str("module", "gateway").Msg("unusable meeting.started payload")
			return
		}
		if err := ct.Starter.StartMeetingStream(ctx, p.Object.ID); err != nil {
			log.Warn().Err(err).Str("module", "gateway").Str("meeting", p.Object.ID).Msg("start stream request failed")
		}
	default:
		log.Debug().Str("module", "gateway").Str("event", env.Event).Msg("unhandled webhook event")
	}
}
