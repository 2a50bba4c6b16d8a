package app

import (
	"errors"
	"fmt"

	"github.com/dkeye/GameFinder/internal/core"
	"github.com/dkeye/GameFinder/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrUnhandledEvent = errors.New("unhandled event")

// Dispatcher applies decoded events to the session their connection is bound
// to and fans the resulting notification out to every attached peer,
// the originator included.
type Dispatcher struct {
	Policy Policy
}

func NewDispatcher(policy Policy) *Dispatcher {
	return &Dispatcher{Policy: policy}
}

// Join attaches peer to sess and sends it the state it starts from.
// The snapshot is queued before the peer can receive any broadcast, so the
// first frame it reads is always SendInfo.
func (d *Dispatcher) Join(sess *core.Session, peer core.Peer) error {
	var dropped bool
	_, err := sess.Attach(peer, func(snap core.Snapshot) error {
		frame, err := protocol.Encode(protocol.SessionSnapshot{Session: snap})
		if err != nil {
			log.Error().Err(err).Str("module", "app.dispatcher").Str("session", string(sess.ID())).Msg("encode snapshot")
			return err
		}
		if err := peer.TrySend(frame); err != nil {
			dropped = true
			return err
		}
		return nil
	})
	if dropped {
		d.onDropped(sess, []core.Peer{peer})
	}
	return err
}

// Leave detaches peer; the last one out disposes the session.
func (d *Dispatcher) Leave(sess *core.Session, peer core.Peer) {
	if sess.Detach(peer) {
		log.Info().Str("module", "app.dispatcher").Str("session", string(sess.ID())).Msg("last peer left")
	}
}

// Execute runs one receive event: a single session mutation, then one
// broadcast of the matching send event. The fan-out has completed when it
// returns.
func (d *Dispatcher) Execute(sess *core.Session, ev protocol.ReceiveEvent) (core.PublishResult, error) {
	var (
		out   protocol.SendEvent
		peers []core.Peer
	)
	switch e := ev.(type) {
	case protocol.ChangeMembers:
		members, attached := sess.ReplaceMembers(e.Members)
		out, peers = protocol.MembersChanged{Members: members}, attached
	case protocol.SetUnavailable:
		peers = sess.SetUnavailable(e.Member, e.Unavailable)
		out = protocol.UnavailableChangedFrom(e)
	case protocol.SetPreference:
		peers = sess.SetPreference(e.Member, e.Item, e.Preference)
		out = protocol.PreferenceChangedFrom(e)
	default:
		return core.PublishResult{}, fmt.Errorf("%w: %T", ErrUnhandledEvent, ev)
	}

	frame, err := protocol.Encode(out)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatcher").Str("tag", out.Tag()).Msg("encode")
		return core.PublishResult{}, err
	}

	res := core.Broadcast(peers, frame)
	log.Debug().
		Str("module", "app.dispatcher").
		Str("session", string(sess.ID())).
		Str("tag", ev.Tag()).
		Int("sent", res.SentTo).
		Int("dropped", len(res.Dropped)).
		Msg("executed")

	d.onDropped(sess, res.Dropped)
	return res, nil
}

// Reject tells peer alone why its frame was not applied.
func (d *Dispatcher) Reject(sess *core.Session, peer core.Peer, ev protocol.Error) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatcher").Msg("encode error frame")
		return
	}
	if err := peer.TrySend(frame); err != nil {
		d.onDropped(sess, []core.Peer{peer})
	}
}

func (d *Dispatcher) onDropped(sess *core.Session, dropped []core.Peer) {
	if d.Policy == nil {
		return
	}
	for _, slow := range dropped {
		action := d.Policy.OnBackPressure(sess, slow)
		log.Warn().
			Str("module", "app.dispatcher").
			Str("session", string(sess.ID())).
			Str("conn", slow.ID()).
			Stringer("action", action).
			Msg("delivery failed")
		switch action {
		case KickMember:
			slow.Close()
		case DropFrame, NoAction:
		}
	}
}
