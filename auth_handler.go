package mq

import (
	"context"

	"github.com/mqttc/client/internal/packets"
)

// handleAuth processes an AUTH packet from the server during authentication exchange.
func (c *Client) handleAuth(p *packets.AuthPacket) {
	if c.opts.Authenticator == nil {
		c.opts.Logger.Warn("received AUTH packet but no authenticator configured")
		return
	}

	var challengeData []byte
	if p.Properties != nil && len(p.Properties.AuthenticationData) > 0 {
		challengeData = p.Properties.AuthenticationData
	}

	// Verify authentication method matches
	if p.Properties != nil && p.Properties.Presence&packets.PresAuthenticationMethod != 0 {
		if p.Properties.AuthenticationMethod != c.opts.Authenticator.Method() {
			c.opts.Logger.Error("authentication method mismatch",
				"expected", c.opts.Authenticator.Method(),
				"received", p.Properties.AuthenticationMethod)
			return
		}
	}

	responseData, err := c.opts.Authenticator.HandleChallenge(challengeData, p.ReasonCode)
	if err != nil {
		// Always a fresh *MqttError: this refusal must never be the same
		// object returned from a previous failed attempt, or a caller
		// comparing errors across reconnects would see a stale reason.
		refusal := &MqttError{
			ReasonCode: ReasonCode(ReasonCodeNotAuthorized),
			Message:    "enhanced authentication challenge failed: " + err.Error(),
		}
		c.opts.Logger.Error("authentication challenge failed", "error", err)

		// disconnectWithReason blocks on wg.Wait() for this very goroutine
		// (logicLoop), so it must run on its own goroutine here.
		go func() {
			if dErr := c.disconnectWithReason(context.Background(), uint8(refusal.ReasonCode), nil); dErr != nil {
				c.opts.Logger.Warn("failed to disconnect after auth failure", "error", dErr)
			}
		}()
		return
	}

	// Send AUTH response
	authResp := &packets.AuthPacket{
		ReasonCode: packets.AuthReasonContinue, // Continue authentication
		Properties: &packets.Properties{
			AuthenticationMethod: c.opts.Authenticator.Method(),
			AuthenticationData:   responseData,
			Presence:             packets.PresAuthenticationMethod,
		},
		Version: c.opts.ProtocolVersion,
	}

	c.outgoing <- authResp
	c.opts.Logger.Debug("sent AUTH response", "reason_code", authResp.ReasonCode)
}
