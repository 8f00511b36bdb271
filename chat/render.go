package chat

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	timeStyle  = lipgloss.NewStyle().Italic(true).Faint(true)
	nameStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	verbStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	textStyle  = lipgloss.NewStyle().Italic(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func stamp(sec float64) string {
	whole, frac := math.Modf(sec)
	t := time.Unix(int64(whole), int64(frac*float64(time.Second)))
	return timeStyle.Render(t.Format(time.DateTime))
}

func (e ChatEvent) String() string {
	user, chat := nameStyle.Render(e.User), nameStyle.Render(e.Chat)
	switch e.Type {
	case SentMessageEvent:
		return fmt.Sprintf("[%s] %s %s %s: %s", stamp(e.Time), user, verbStyle.Render("->"), chat, textStyle.Render(e.Message))
	case ConnectedEvent:
		return fmt.Sprintf("[%s] %s %s %s", stamp(e.Time), user, verbStyle.Render("connected to"), chat)
	case DisconnectedEvent:
		return fmt.Sprintf("[%s] %s %s %s", stamp(e.Time), user, verbStyle.Render("disconnected from"), chat)
	default:
		return fmt.Sprintf("[%s] %s %s %s", stamp(e.Time), user, verbStyle.Render("created"), chat)
	}
}

func (k RequestKind) String() string {
	switch k.Type {
	case SendMessageRequest:
		return textStyle.Render(k.Arg)
	case CreateRequest, ConnectRequest:
		return fmt.Sprintf("%s %s", k.Type, nameStyle.Render(k.Arg))
	default:
		return string(k.Type)
	}
}

func (r ClientRequest) String() string {
	var at float64
	if r.Time != nil {
		at = *r.Time
	}
	return fmt.Sprintf("[%s] [id=%d] %s: %s", stamp(at), r.ID, nameStyle.Render(r.Client), r.Kind)
}

func (m ServerMessage) String() string {
	switch {
	case m.Type == ChatEventsMessage:
		return fmt.Sprintf("%d events of %s", len(m.Events), nameStyle.Render(m.Chat))
	case m.Err != nil:
		return fmt.Sprintf("request %d failed: %s", m.RequestID, errorStyle.Render(*m.Err))
	default:
		return fmt.Sprintf("request %d done", m.RequestID)
	}
}

func (i Info) String() string {
	if i.Event != nil {
		return i.Event.String()
	}
	return i.Text
}
