package game

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Transport delivers events to connections. Implementations must not block
// for long: the gateway calls them while holding session locks.
type Transport interface {
	Emit(connID, event string, payload any) error
	EmitAll(event string, payload any) error
}

// Gateway is the fire-and-forget broadcast side of the game. Send failures are
// logged and never returned.
type Gateway struct {
	transport Transport
	reg       *Registry
}

func NewGateway(t Transport, reg *Registry) *Gateway {
	return &Gateway{transport: t, reg: reg}
}

func (g *Gateway) ToConn(connID, event string, payload any) {
	if g == nil || g.transport == nil || connID == "" {
		return
	}
	if err := g.transport.Emit(connID, event, payload); err != nil {
		log.Warn().Err(fmt.Errorf("%w: %v", ErrTransportFailure, err)).
			Str("conn", connID).Str("event", event).Msg("emit failed")
	}
}

// ToParticipant sends to the participant's current connection, if any.
func (g *Gateway) ToParticipant(p Participant, event string, payload any) {
	if g == nil || p.Bot {
		return
	}
	connID, ok := g.reg.Conn(p.ID)
	if !ok {
		log.Debug().Str("userId", p.ID).Str("event", event).Msg("no connection for participant")
		return
	}
	g.ToConn(connID, event, payload)
}

// ToSession sends to every participant of the session.
func (g *Gateway) ToSession(s *Session, event string, payload any) {
	for _, p := range s.Players {
		g.ToParticipant(p, event, payload)
	}
}

func (g *Gateway) ToAll(event string, payload any) {
	if g == nil || g.transport == nil {
		return
	}
	if err := g.transport.EmitAll(event, payload); err != nil {
		log.Warn().Err(fmt.Errorf("%w: %v", ErrTransportFailure, err)).
			Str("event", event).Msg("broadcast failed")
	}
}
