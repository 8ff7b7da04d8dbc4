package mq

import (
	"github.com/mqttc/client/internal/packets"
)

// storeKind identifies which packet type a storeRecord reconstructs into.
type storeKind uint8

const (
	storeKindPublish storeKind = iota
	storeKindSubscribe
	storeKindUnsubscribe
)

// storeRecord is the on-disk/on-wire shape persisted under a packet id. It is
// deliberately packet-shaped rather than a raw encoded byte string so that
// every backend (memory, pebble, redis) can be inspected and migrated without
// understanding the MQTT wire format.
type storeRecord struct {
	Kind     storeKind
	Version  uint8
	Topic    string
	Payload  []byte
	QoS      uint8
	Retain   bool
	Dup      bool
	Topics   []string
	SubQoS   []uint8
	NoLocal  []bool
	RAP      []bool
	RH       []uint8
	Props    *packets.Properties
}

// Store is the restartable, messageId-keyed persistence abstraction behind
// outgoing QoS 1/2 delivery. No two in-flight operations ever share a
// packet id while a record for that id is live in the store, and it is the
// data source the ReplayEngine drains after every reconnect.
//
// Implementations only need to be safe for sequential use from the
// logicLoop goroutine; Store is never called concurrently by this package.
type Store interface {
	// Put persists rec under id, replacing any existing record.
	Put(id uint16, rec *storeRecord) error
	// Get retrieves the record stored under id, if any.
	Get(id uint16) (*storeRecord, bool, error)
	// Del removes the record stored under id. Deleting an absent id is not an error.
	Del(id uint16) error
	// CreateStream opens a RestartableStream over every record currently
	// held, in ascending packet-id order.
	CreateStream() (RestartableStream, error)
	// Close releases resources (file handles, connections) held by the store.
	Close() error
}

// RestartableStream iterates a Store's contents for replay. It is
// "restartable" in the sense that the ReplayEngine is free to abandon a
// stream mid-iteration and open a fresh one via Store.CreateStream, rather
// than being forced to exhaust one iterator before it can see packets
// queued after the stream was opened.
type RestartableStream interface {
	// Next returns the next record in id order, or ok=false once exhausted.
	Next() (id uint16, rec *storeRecord, ok bool, err error)
	Close() error
}

// recordFromPending converts a live pendingOp into the shape Store persists.
func recordFromPending(op *pendingOp) *storeRecord {
	switch pkt := op.packet.(type) {
	case *packets.PublishPacket:
		return &storeRecord{
			Kind:    storeKindPublish,
			Version: pkt.Version,
			Topic:   pkt.Topic,
			Payload: pkt.Payload,
			QoS:     pkt.QoS,
			Retain:  pkt.Retain,
			Dup:     pkt.Dup,
			Props:   pkt.Properties,
		}
	case *packets.SubscribePacket:
		return &storeRecord{
			Kind:    storeKindSubscribe,
			Version: pkt.Version,
			Topics:  pkt.Topics,
			SubQoS:  pkt.QoS,
			NoLocal: pkt.NoLocal,
			RAP:     pkt.RetainAsPublished,
			RH:      pkt.RetainHandling,
			Props:   pkt.Properties,
		}
	case *packets.UnsubscribePacket:
		return &storeRecord{
			Kind:    storeKindUnsubscribe,
			Version: pkt.Version,
			Topics:  pkt.Topics,
			Props:   pkt.Properties,
		}
	default:
		return nil
	}
}

// recordToPacket reconstructs the wire packet a storeRecord was derived
// from, with Dup set so the broker knows this is a retransmission.
func recordToPacket(id uint16, rec *storeRecord) packets.Packet {
	switch rec.Kind {
	case storeKindPublish:
		return &packets.PublishPacket{
			Topic:      rec.Topic,
			Payload:    rec.Payload,
			QoS:        rec.QoS,
			Retain:     rec.Retain,
			Dup:        rec.QoS > 0,
			PacketID:   id,
			Properties: rec.Props,
			Version:    rec.Version,
		}
	case storeKindSubscribe:
		return &packets.SubscribePacket{
			PacketID:          id,
			Topics:            rec.Topics,
			QoS:               rec.SubQoS,
			NoLocal:           rec.NoLocal,
			RetainAsPublished: rec.RAP,
			RetainHandling:    rec.RH,
			Properties:        rec.Props,
			Version:           rec.Version,
		}
	case storeKindUnsubscribe:
		return &packets.UnsubscribePacket{
			PacketID:   id,
			Topics:     rec.Topics,
			Properties: rec.Props,
			Version:    rec.Version,
		}
	default:
		return nil
	}
}

