package rpc

import (
	"dsbuild/process"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	ServiceName       = "message_passing.MessagePassing"
	SendMessageMethod = "/message_passing.MessagePassing/SendMessage"

	StatusSuccess = "success"
)

// SendMessageRequest carries one message from a process to a remote process.
type SendMessageRequest struct {
	SenderHost      string
	SenderPort      uint32
	SenderProcess   string
	ReceiverHost    string
	ReceiverPort    uint32
	ReceiverProcess string
	MessageTip      string
	MessageData     []byte
	Tag             *uint64
}

type SendMessageResponse struct {
	Status string
}

func NewRequest(from, to process.Address, msg process.Message, tag *process.Tag) *SendMessageRequest {
	req := &SendMessageRequest{
		SenderHost:      from.Host,
		SenderPort:      uint32(from.Port),
		SenderProcess:   from.ProcessName,
		ReceiverHost:    to.Host,
		ReceiverPort:    uint32(to.Port),
		ReceiverProcess: to.ProcessName,
		MessageTip:      msg.Tip(),
		MessageData:     msg.RawData(),
	}
	if tag != nil {
		t := uint64(*tag)
		req.Tag = &t
	}
	return req
}

func (r *SendMessageRequest) From() process.Address {
	return process.NewAddress(r.SenderHost, uint16(r.SenderPort), r.SenderProcess)
}

func (r *SendMessageRequest) To() process.Address {
	return process.NewAddress(r.ReceiverHost, uint16(r.ReceiverPort), r.ReceiverProcess)
}

func (r *SendMessageRequest) Message() process.Message {
	return process.RawMessage(r.MessageTip, r.MessageData)
}

// MessageTag returns the tag of the message or nil for an untagged one.
func (r *SendMessageRequest) MessageTag() *process.Tag {
	if r.Tag == nil {
		return nil
	}
	t := process.Tag(*r.Tag)
	return &t
}

func (r *SendMessageRequest) marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.SenderHost)
	b = appendVarint(b, 2, uint64(r.SenderPort))
	b = appendString(b, 3, r.SenderProcess)
	b = appendString(b, 4, r.ReceiverHost)
	b = appendVarint(b, 5, uint64(r.ReceiverPort))
	b = appendString(b, 6, r.ReceiverProcess)
	b = appendString(b, 7, r.MessageTip)
	if len(r.MessageData) > 0 {
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, r.MessageData)
	}
	if r.Tag != nil {
		// explicit presence: zero is written too
		b = protowire.AppendTag(b, 9, protowire.VarintType)
		b = protowire.AppendVarint(b, *r.Tag)
	}
	return b
}

func (r *SendMessageRequest) unmarshal(b []byte) error {
	*r = SendMessageRequest{}
	return consumeFields(b, func(num protowire.Number, v []byte) {
		switch num {
		case 1:
			r.SenderHost = string(v)
		case 3:
			r.SenderProcess = string(v)
		case 4:
			r.ReceiverHost = string(v)
		case 6:
			r.ReceiverProcess = string(v)
		case 7:
			r.MessageTip = string(v)
		case 8:
			r.MessageData = append([]byte(nil), v...)
		}
	}, func(num protowire.Number, v uint64) {
		switch num {
		case 2:
			r.SenderPort = uint32(v)
		case 5:
			r.ReceiverPort = uint32(v)
		case 9:
			r.Tag = &v
		}
	})
}

func (r *SendMessageResponse) marshal() []byte {
	return appendString(nil, 1, r.Status)
}

func (r *SendMessageResponse) unmarshal(b []byte) error {
	*r = SendMessageResponse{}
	return consumeFields(b, func(num protowire.Number, v []byte) {
		if num == 1 {
			r.Status = string(v)
		}
	}, func(protowire.Number, uint64) {})
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// consumeFields walks the fields of an encoded message. Fields of other
// wire types are skipped.
func consumeFields(b []byte, onBytes func(protowire.Number, []byte), onVarint func(protowire.Number, uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				onBytes(num, v)
			}
		case protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if n >= 0 {
				onVarint(num, v)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}
