package process

import (
	"encoding/json"
	"fmt"
)

// InfoTip is the tip of plain text messages created by Info.
const InfoTip = "info"

// Message is the unit of communication between processes.
// Data is a JSON document whose shape is determined by the tip.
type Message struct {
	tip  string
	data []byte
}

// Tipped is implemented by payloads which know their own tip.
type Tipped interface {
	Tip() string
}

func NewMessage(tip string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("encode %q message: %w", tip, err)
	}
	return Message{tip: tip, data: data}, nil
}

// MustMessage is NewMessage for payloads which always encode.
func MustMessage(tip string, v any) Message {
	msg, err := NewMessage(tip, v)
	if err != nil {
		panic(err)
	}
	return msg
}

// MessageFrom builds a message from a payload carrying its own tip.
func MessageFrom(v Tipped) Message {
	return MustMessage(v.Tip(), v)
}

// RawMessage builds a message from already encoded data.
func RawMessage(tip string, data []byte) Message {
	return Message{tip: tip, data: append([]byte(nil), data...)}
}

// Info builds a plain text message.
func Info(s string) Message {
	return MustMessage(InfoTip, s)
}

func (m Message) Tip() string {
	return m.tip
}

func (m Message) RawData() []byte {
	return m.data
}

// Data decodes the message payload into v.
func (m Message) Data(v any) error {
	if err := json.Unmarshal(m.data, v); err != nil {
		return fmt.Errorf("decode %q message: %w", m.tip, err)
	}
	return nil
}

// InfoText returns the text of an info message.
func (m Message) InfoText() (string, bool) {
	if m.tip != InfoTip {
		return "", false
	}
	var s string
	if err := m.Data(&s); err != nil {
		return "", false
	}
	return s, true
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s", m.tip, m.data)
}
