package bus

import (
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
)

const (
	SubjectStateChange = "powerwatch.state"
	SubjectPollRequest = "powerwatch.poll"
)

// StateEvent is published when a service changes state, or repeats a non-OK
// state after the notification cooldown.
type StateEvent struct {
	PollID   string `json:"poll_id"`
	Device   string `json:"device"`
	Check    string `json:"check"`
	Service  string `json:"service"`
	State    string `json:"state"`
	Previous string `json:"previous,omitempty"`
	Summary  string `json:"summary"`
	At       string `json:"at"`
}

// PollRequest asks the worker to poll a device out of schedule. An empty
// Check polls every configured check.
type PollRequest struct {
	Device string `json:"device"`
	Check  string `json:"check,omitempty"`
}

// StateSubject scopes state events per device so consumers can subscribe to
// "powerwatch.state.>" or a single device.
func StateSubject(device string) string {
	return SubjectStateChange + "." + strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(device)
}

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(subject, data)
}

func (p *Publisher) PublishState(evt StateEvent) error {
	return p.Publish(StateSubject(evt.Device), evt)
}

type Subscriber struct {
	Conn *nats.Conn
}

func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{Conn: conn}, nil
}

func (s *Subscriber) Close() {
	if s.Conn != nil {
		s.Conn.Drain()
		s.Conn.Close()
	}
}

func (s *Subscriber) SubscribePolls(handler func(PollRequest)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(SubjectPollRequest, func(msg *nats.Msg) {
		var req PollRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.Device == "" {
			return
		}
		handler(req)
	})
}
