package dialogue

import (
	"context"

	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	"github.com/hackgods/whatsapp-hospital-bot/internal/session"
)

type outboundKind int

const (
	outText outboundKind = iota
	outButtons
	outList
)

type outbound struct {
	kind    outboundKind
	body    string
	buttons []messaging.Button
	list    messaging.List
}

// turn buffers one message's transition and replies. Handlers record what
// should happen; the engine persists the session and only then sends.
type turn struct {
	sess  *session.Session
	next  session.Step
	clear bool
	out   []outbound
}

func newTurn(sess *session.Session) *turn {
	return &turn{sess: sess}
}

func (t *turn) goTo(step session.Step) {
	t.next = step
	t.clear = false
}

// end deletes the session once the turn commits.
func (t *turn) end() {
	t.next = nil
	t.clear = true
}

func (t *turn) say(body string) {
	t.out = append(t.out, outbound{kind: outText, body: body})
}

func (t *turn) buttons(body string, buttons []messaging.Button) {
	t.out = append(t.out, outbound{kind: outButtons, body: body, buttons: messaging.NormalizeButtons(buttons)})
}

func (t *turn) list(l messaging.List) {
	t.out = append(t.out, outbound{kind: outList, list: messaging.NormalizeList(l)})
}

func (t *turn) flush(ctx context.Context, sender messaging.Sender, to string) error {
	for _, o := range t.out {
		var err error
		switch o.kind {
		case outText:
			err = sender.SendText(ctx, to, o.body)
		case outButtons:
			err = sender.SendButtons(ctx, to, o.body, o.buttons)
		case outList:
			err = sender.SendList(ctx, to, o.list)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
