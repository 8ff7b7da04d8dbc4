package mq

import "github.com/mqttc/client/internal/packets"

// RemoveOutgoingMessage cancels a pending outgoing PUBLISH, SUBSCRIBE, or
// UNSUBSCRIBE before it has been acknowledged, as though it had never been
// sent. Its token (if any caller is still waiting on one) completes with
// ErrMessageRemoved, its packet id is returned to the pool, and its
// outgoing-store record (if any) is deleted so a later replay cannot
// resurrect it.
//
// Returns ErrPacketIDNotOutstanding if no operation is tracked under id.
func (c *Client) RemoveOutgoingMessage(packetID uint16) error {
	c.sessionLock.Lock()
	defer c.sessionLock.Unlock()

	op, ok := c.pending[packetID]
	if !ok {
		return ErrPacketIDNotOutstanding
	}

	delete(c.pending, packetID)
	c.packetIDs.Deallocate(packetID)

	if pub, ok := op.packet.(*packets.PublishPacket); ok && pub.QoS > 0 {
		c.inFlightCount--
	}

	c.deleteOutgoingRecord(packetID)

	if op.token != nil {
		op.token.complete(ErrMessageRemoved)
	}

	c.processPublishQueue()

	return nil
}

// GetLastMessageID returns the most recently allocated packet id.
//
// Returns ErrNoMessageSent if the client has not yet sent any PUBLISH
// (QoS>0), SUBSCRIBE, or UNSUBSCRIBE.
func (c *Client) GetLastMessageID() (uint16, error) {
	c.sessionLock.Lock()
	defer c.sessionLock.Unlock()

	id, ok := c.packetIDs.LastAllocated()
	if !ok {
		return 0, ErrNoMessageSent
	}
	return id, nil
}
