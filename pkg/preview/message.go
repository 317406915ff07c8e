package preview

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Wire event names.
const (
	EventPayoutUpdate = "payout_update"
	EventOddsUpdate   = "odds_update"
)

// ErrMalformedMessage is returned by Decode for frames that are not a
// well-formed event envelope.
var ErrMalformedMessage = errors.New("malformed message")

// Message is a decoded inbound event: PayoutUpdate, OddsUpdate or UnknownEvent.
type Message interface {
	eventName() string
}

// PayoutUpdate carries a partial snapshot for one event.
type PayoutUpdate struct {
	EventID string
	Update  Update
}

// OddsUpdate is recognized but not acted on by the store.
type OddsUpdate struct {
	EventID string
	Data    json.RawMessage
}

// UnknownEvent is any other event name.
type UnknownEvent struct {
	Event string
}

func (PayoutUpdate) eventName() string { return EventPayoutUpdate }
func (OddsUpdate) eventName() string   { return EventOddsUpdate }
func (u UnknownEvent) eventName() string {
	return u.Event
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type payoutData struct {
	EventID           string   `json:"eventId"`
	EventIDSnake      string   `json:"event_id,omitempty"`
	PotentialPayout   *float64 `json:"potential_payout,omitempty"`
	KellyStake        *float64 `json:"kelly_stake,omitempty"`
	RiskAdjustedStake *float64 `json:"risk_adjusted_stake,omitempty"`
	ExpectedValue     *float64 `json:"expected_value,omitempty"`
	Version           uint64   `json:"version,omitempty"`
}

func (d payoutData) eventID() string {
	if d.EventID != "" {
		return d.EventID
	}
	return d.EventIDSnake
}

// Decode parses one frame of the form {"event": ..., "data": {"eventId": ...}}.
//
// A payout_update without any recognized field decodes fine; the store
// treats it as a no-op.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedMessage)
	}

	switch env.Event {
	case EventPayoutUpdate:
		var d payoutData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: payout_update data: %v", ErrMalformedMessage, err)
		}
		if d.eventID() == "" {
			return nil, fmt.Errorf("%w: payout_update without eventId", ErrMalformedMessage)
		}
		return PayoutUpdate{
			EventID: d.eventID(),
			Update: Update{
				PotentialPayout:   d.PotentialPayout,
				KellyStake:        d.KellyStake,
				RiskAdjustedStake: d.RiskAdjustedStake,
				ExpectedValue:     d.ExpectedValue,
				Version:           d.Version,
			},
		}, nil

	case EventOddsUpdate:
		var d struct {
			EventID string `json:"eventId"`
		}
		// Odds payloads vary by source; only the key is required.
		_ = json.Unmarshal(env.Data, &d)
		return OddsUpdate{EventID: d.EventID, Data: env.Data}, nil

	default:
		return UnknownEvent{Event: env.Event}, nil
	}
}

// EncodePayoutUpdate renders a payout_update frame.
func EncodePayoutUpdate(eventID string, u Update) ([]byte, error) {
	data, err := json.Marshal(payoutData{
		EventID:           eventID,
		PotentialPayout:   u.PotentialPayout,
		KellyStake:        u.KellyStake,
		RiskAdjustedStake: u.RiskAdjustedStake,
		ExpectedValue:     u.ExpectedValue,
		Version:           u.Version,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: EventPayoutUpdate, Data: data})
}

// Dispatcher feeds decoded frames into a Store. Transport errors and bad
// frames stop here; the store only ever sees payout updates.
type Dispatcher struct {
	store  *Store
	onOdds func(OddsUpdate)
}

// NewDispatcher creates a dispatcher for store.
func NewDispatcher(store *Store) *Dispatcher {
	return &Dispatcher{store: store}
}

// OnOdds registers a handler for odds_update frames.
func (d *Dispatcher) OnOdds(fn func(OddsUpdate)) {
	d.onOdds = fn
}

// Handle decodes raw and dispatches it. Decode failures are logged and
// counted, never returned.
func (d *Dispatcher) Handle(raw []byte) (Result, bool) {
	msg, err := Decode(raw)
	if err != nil {
		d.store.rec.DecodeFailed()
		log.Debug().Err(err).Msg("preview: dropping frame")
		return Result{}, false
	}
	return d.Dispatch(msg)
}

// Dispatch applies msg. It reports whether the store applied an update.
func (d *Dispatcher) Dispatch(msg Message) (Result, bool) {
	d.store.rec.MessageDecoded(msg.eventName())

	switch m := msg.(type) {
	case PayoutUpdate:
		res := d.store.ReceiveUpdate(m.EventID, m.Update)
		return res, res.Applied
	case OddsUpdate:
		if d.onOdds != nil {
			d.onOdds(m)
		}
	case UnknownEvent:
		log.Debug().Str("event", m.Event).Msg("preview: ignoring unknown event")
	}
	return Result{}, false
}
