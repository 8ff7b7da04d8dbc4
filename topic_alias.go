package mq

import (
	"container/list"

	"github.com/mqttc/client/internal/packets"
)

// topicAliasSend is the client→server topic alias table (MQTT v5.0). It
// enforces a capacity negotiated from the broker's CONNACK and evicts the
// least-recently-used alias when a new topic needs a slot and none are free.
//
// Not safe for concurrent use; callers hold topicAliasesLock.
type topicAliasSend struct {
	max      uint16
	byTopic  map[string]*list.Element
	byAlias  map[uint16]*list.Element
	order    *list.List // front = most recently used
	lastUsed uint16     // highest alias ever handed out, for filling unused slots first
}

type aliasEntry struct {
	topic string
	alias uint16
}

func newTopicAliasSend(max uint16) *topicAliasSend {
	return &topicAliasSend{
		max:     max,
		byTopic: make(map[string]*list.Element),
		byAlias: make(map[uint16]*list.Element),
		order:   list.New(),
	}
}

// getAliasByTopic returns the alias registered for topic, if any, and
// promotes it to most-recently-used.
func (t *topicAliasSend) getAliasByTopic(topic string) (uint16, bool) {
	el, ok := t.byTopic[topic]
	if !ok {
		return 0, false
	}
	t.order.MoveToFront(el)
	return el.Value.(*aliasEntry).alias, true
}

// getTopicByAlias returns the topic currently registered to alias.
func (t *topicAliasSend) getTopicByAlias(alias uint16) (string, bool) {
	el, ok := t.byAlias[alias]
	if !ok {
		return "", false
	}
	return el.Value.(*aliasEntry).topic, true
}

// put registers topic under alias, evicting any previous occupant of either
// slot and marking the pair most-recently-used.
func (t *topicAliasSend) put(topic string, alias uint16) {
	if el, ok := t.byTopic[topic]; ok {
		t.order.Remove(el)
		delete(t.byAlias, el.Value.(*aliasEntry).alias)
		delete(t.byTopic, topic)
	}
	if el, ok := t.byAlias[alias]; ok {
		t.order.Remove(el)
		delete(t.byTopic, el.Value.(*aliasEntry).topic)
		delete(t.byAlias, alias)
	}

	entry := &aliasEntry{topic: topic, alias: alias}
	el := t.order.PushFront(entry)
	t.byTopic[topic] = el
	t.byAlias[alias] = el

	if alias > t.lastUsed {
		t.lastUsed = alias
	}
}

// getLruAlias returns the alias to use for a brand-new topic: an unused slot
// if capacity remains, otherwise the least-recently-used occupied slot
// (which the caller is about to evict via put).
func (t *topicAliasSend) getLruAlias() (alias uint16, reused bool) {
	if t.lastUsed < t.max {
		return t.lastUsed + 1, false
	}
	back := t.order.Back()
	if back == nil {
		return 1, false
	}
	return back.Value.(*aliasEntry).alias, true
}

func (t *topicAliasSend) reset() {
	t.byTopic = make(map[string]*list.Element)
	t.byAlias = make(map[uint16]*list.Element)
	t.order = list.New()
	t.lastUsed = 0
}

// topicAliasRecv is the server→client topic alias table (MQTT v5.0). Unlike
// the send side it has no LRU eviction: the broker owns alias assignment and
// the client simply remembers what it is told, rejecting anything outside
// [1..max].
type topicAliasRecv struct {
	max  uint16
	byID map[uint16]string
}

func newTopicAliasRecv(max uint16) *topicAliasRecv {
	return &topicAliasRecv{max: max, byID: make(map[uint16]string)}
}

// put registers alias→topic; fails if alias is outside [1..max].
func (t *topicAliasRecv) put(alias uint16, topic string) bool {
	if alias < 1 || alias > t.max {
		return false
	}
	t.byID[alias] = topic
	return true
}

func (t *topicAliasRecv) get(alias uint16) (string, bool) {
	topic, ok := t.byID[alias]
	return topic, ok
}

func (t *topicAliasRecv) reset() {
	t.byID = make(map[uint16]string)
}

// applyTopicAlias applies topic alias optimization to an outbound publish
// packet (MQTT v5.0 only): explicit caller-supplied alias vs.
// autoAssignTopicAlias vs. autoUseTopicAlias.
//
// Returns an error if the caller supplied an alias that is out of range, or
// if no TopicAliasSend table has been instantiated (no CONNACK
// topicAliasMaximum seen yet) but an alias was requested.
func (c *Client) applyTopicAlias(pkt *packets.PublishPacket) error {
	c.topicAliasesLock.Lock()
	defer c.topicAliasesLock.Unlock()

	callerAlias := uint16(0)
	if pkt.Properties != nil && pkt.Properties.Presence&packets.PresTopicAlias != 0 {
		callerAlias = pkt.Properties.TopicAlias
	}

	if callerAlias != 0 {
		if c.topicAliasSend == nil {
			return &MqttError{ReasonCode: ReasonCode(ReasonCodeTopicAliasInvalid), Message: "Sending Topic Alias out of range"}
		}
		if callerAlias > c.topicAliasSend.max {
			return &MqttError{ReasonCode: ReasonCode(ReasonCodeTopicAliasInvalid), Message: "Sending Topic Alias out of range"}
		}
		if pkt.Topic != "" {
			c.topicAliasSend.put(pkt.Topic, callerAlias)
		}
		return nil
	}

	if pkt.Topic == "" || c.topicAliasSend == nil {
		return nil
	}

	if c.opts.AutoAssignTopicAlias {
		if alias, ok := c.topicAliasSend.getAliasByTopic(pkt.Topic); ok {
			pkt.Topic = ""
			setPublishAlias(pkt, alias)
			return nil
		}
		alias, _ := c.topicAliasSend.getLruAlias()
		c.topicAliasSend.put(pkt.Topic, alias)
		setPublishAlias(pkt, alias) // keep pkt.Topic: first use of this alias
		return nil
	}

	if c.opts.AutoUseTopicAlias || pkt.UseAlias {
		if alias, ok := c.topicAliasSend.getAliasByTopic(pkt.Topic); ok {
			pkt.Topic = ""
			setPublishAlias(pkt, alias)
			return nil
		}
	}

	// A WithAlias publish takes a free slot while one remains; once the
	// table is full the full topic is sent without an alias.
	if pkt.UseAlias {
		if alias, reused := c.topicAliasSend.getLruAlias(); !reused && alias <= c.topicAliasSend.max {
			c.topicAliasSend.put(pkt.Topic, alias)
			setPublishAlias(pkt, alias) // keep pkt.Topic: first use of this alias
		}
	}

	return nil
}

// resetAllTopicAliases is called on reconnect. A fresh connection means the
// broker remembers none of the previous session's topic alias assignments,
// so every packet that still carries a bare alias - whether already queued
// on outgoing or sitting in pending awaiting an ack - must have its full
// topic name restored before it can be resent.
func (c *Client) resetAllTopicAliases() {
	c.receivedAliasesLock.Lock()
	if c.topicAliasRecv != nil {
		c.topicAliasRecv.reset()
	}
	c.receivedAliasesLock.Unlock()

	for _, op := range c.pending {
		if pub, ok := op.packet.(*packets.PublishPacket); ok {
			_ = c.removeTopicAliasAndRecoverTopicName(pub)
		}
	}

	n := len(c.outgoing)
	for i := 0; i < n; i++ {
		pkt := <-c.outgoing
		if pub, ok := pkt.(*packets.PublishPacket); ok {
			_ = c.removeTopicAliasAndRecoverTopicName(pub)
		}
		c.outgoing <- pkt
	}

	// The send table is cleared only after the loops above, which look up
	// each bare alias in it to recover the topic name.
	c.topicAliasesLock.Lock()
	if c.topicAliasSend != nil {
		c.topicAliasSend.reset()
	}
	c.topicAliasesLock.Unlock()
}

func setPublishAlias(pkt *packets.PublishPacket, alias uint16) {
	if pkt.Properties == nil {
		pkt.Properties = &packets.Properties{}
	}
	pkt.Properties.TopicAlias = alias
	pkt.Properties.Presence |= packets.PresTopicAlias
}

// removeTopicAliasAndRecoverTopicName restores the full topic name onto a
// packet clone destined for the outgoing store, and strips the alias, so
// that replay after a reconnect never assumes the broker remembers an alias
// assignment from the prior connection.
func (c *Client) removeTopicAliasAndRecoverTopicName(clone *packets.PublishPacket) error {
	c.topicAliasesLock.Lock()
	defer c.topicAliasesLock.Unlock()

	if clone.Topic == "" {
		if clone.Properties == nil || clone.Properties.Presence&packets.PresTopicAlias == 0 {
			return &MqttError{Message: "Unregistered Topic Alias"}
		}
		if c.topicAliasSend == nil {
			return &MqttError{Message: "Unregistered Topic Alias"}
		}
		topic, ok := c.topicAliasSend.getTopicByAlias(clone.Properties.TopicAlias)
		if !ok {
			return &MqttError{Message: "Unregistered Topic Alias"}
		}
		clone.Topic = topic
	}

	if clone.Properties != nil {
		clone.Properties.TopicAlias = 0
		clone.Properties.Presence &^= packets.PresTopicAlias
	}
	return nil
}

// resolveInboundTopicAlias resolves the topic alias on an inbound PUBLISH
// (MQTT v5.0). If the packet carries an alias with an empty topic, the
// previously-registered topic is substituted in place. If it carries both an
// alias and a non-empty topic, the pair is registered for future aliased
// deliveries.
func (c *Client) resolveInboundTopicAlias(p *packets.PublishPacket) error {
	if p.Properties == nil || p.Properties.Presence&packets.PresTopicAlias == 0 {
		return nil
	}

	c.receivedAliasesLock.Lock()
	defer c.receivedAliasesLock.Unlock()

	if c.topicAliasRecv == nil {
		return &MqttError{ReasonCode: ReasonCode(ReasonCodeTopicAliasInvalid), Message: "Received Topic Alias is out of range"}
	}

	alias := p.Properties.TopicAlias

	if p.Topic == "" {
		topic, ok := c.topicAliasRecv.get(alias)
		if !ok {
			return &MqttError{ReasonCode: ReasonCode(ReasonCodeTopicAliasInvalid), Message: "Received unregistered Topic Alias"}
		}
		p.Topic = topic
		return nil
	}

	if !c.topicAliasRecv.put(alias, p.Topic) {
		return &MqttError{ReasonCode: ReasonCode(ReasonCodeTopicAliasInvalid), Message: "Received Topic Alias is out of range"}
	}
	return nil
}
