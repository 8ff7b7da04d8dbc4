package mq

// storeProcessingEntry defers a publish/subscribe/unsubscribe request that
// arrived while a replay was draining, so it cannot race ahead of the
// packets the replay is still resending.
type storeProcessingEntry struct {
	publish     *publishRequest
	subscribe   *subscribeRequest
	unsubscribe *unsubscribeRequest
}

// beginReplay implements the post-CONNACK store-processing interlock: every
// record still outstanding in outgoingStore from before this connection is
// resent, in store order, before any new publish/subscribe/unsubscribe
// request is allowed onto the wire. Requests arriving during replay are
// queued on storeProcessingQueue and drained, in arrival order, once the
// stream is exhausted.
//
// Must be called with sessionLock held; it releases the lock while blocked
// on the one potentially-blocking send per record, and returns with the
// lock held again.
func (c *Client) beginReplay() {
	if c.outgoingStore == nil {
		return
	}

	stream, err := c.outgoingStore.CreateStream()
	if err != nil {
		c.opts.Logger.Warn("failed to open store replay stream", "error", err)
		return
	}

	c.storeProcessing = true
	c.replayedIDs = make(map[uint16]struct{})

	c.sessionLock.Unlock()
	for {
		id, rec, ok, err := stream.Next()
		if err != nil {
			c.opts.Logger.Warn("store replay stream error", "error", err)
			break
		}
		if !ok {
			break
		}

		pkt := recordToPacket(id, rec)
		if pkt == nil {
			continue
		}

		select {
		case c.outgoing <- pkt:
		case <-c.stop:
			stream.Close()
			c.sessionLock.Lock()
			return
		}

		c.sessionLock.Lock()
		c.replayedIDs[id] = struct{}{}
		c.sessionLock.Unlock()
	}
	stream.Close()
	c.sessionLock.Lock()

	c.storeProcessing = false
	c.opts.Logger.Debug("replay complete", "replayed", len(c.replayedIDs))
	c.drainStoreProcessingQueue()
}

// drainStoreProcessingQueue sends every request queued while storeProcessing
// was true, in arrival order. Must be called with sessionLock held; it
// releases the lock for each request (internalPublish/Subscribe/Unsubscribe
// each acquire it themselves) and re-acquires it before returning.
func (c *Client) drainStoreProcessingQueue() {
	queue := c.storeProcessingQueue
	c.storeProcessingQueue = nil

	c.sessionLock.Unlock()
	for _, entry := range queue {
		switch {
		case entry.publish != nil:
			c.internalPublish(entry.publish)
		case entry.subscribe != nil:
			c.internalSubscribe(entry.subscribe)
		case entry.unsubscribe != nil:
			c.internalUnsubscribe(entry.unsubscribe)
		}
	}
	c.sessionLock.Lock()
}

// allReplayedIDsAcked reports whether every packet id resent during the
// most recent replay has since been acknowledged (i.e. is no longer in
// c.pending). Must be called with sessionLock held.
func (c *Client) allReplayedIDsAcked() bool {
	for id := range c.replayedIDs {
		if _, stillPending := c.pending[id]; stillPending {
			return false
		}
	}
	return true
}
