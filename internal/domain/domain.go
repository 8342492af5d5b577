package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// MinRaffleParticipants is the smallest cohort a raffle accepts.
const MinRaffleParticipants = 3

var (
	ErrNoGame             = errors.New("no active game")
	ErrTooFewParticipants = errors.New("too few participants for a raffle")
	ErrInvalidGiftCost    = errors.New("gift cost must be a non-negative number")
)

type Game struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	GiftCost float64 `json:"giftCost"`
}

// Participant is keyed by the chat id of the user who joined.
// Ward is zero until a raffle assigns it.
type Participant struct {
	Name     string `json:"participantName"`
	GiftWish string `json:"participantGiftWish"`
	Ward     int64  `json:"ward,string,omitempty"`
}

// Participants maps chat ids to participants and remembers join order.
// It encodes as a JSON object whose keys follow that order.
type Participants struct {
	order []int64
	byID  map[int64]*Participant
}

func NewParticipants() *Participants {
	return &Participants{byID: make(map[int64]*Participant)}
}

func (ps *Participants) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.order)
}

func (ps *Participants) Get(chatID int64) (*Participant, bool) {
	if ps == nil {
		return nil, false
	}
	p, ok := ps.byID[chatID]
	return p, ok
}

// Set overwrites an existing entry in place or appends a new one.
func (ps *Participants) Set(chatID int64, p Participant) {
	if ps.byID == nil {
		ps.byID = make(map[int64]*Participant)
	}
	if existing, ok := ps.byID[chatID]; ok {
		*existing = p
		return
	}
	ps.order = append(ps.order, chatID)
	ps.byID[chatID] = &p
}

// IDs returns a copy of the chat ids in join order.
func (ps *Participants) IDs() []int64 {
	if ps == nil {
		return nil
	}
	ids := make([]int64, len(ps.order))
	copy(ids, ps.order)
	return ids
}

// Each calls fn for every participant in join order.
func (ps *Participants) Each(fn func(chatID int64, p *Participant)) {
	if ps == nil {
		return
	}
	for _, id := range ps.order {
		fn(id, ps.byID[id])
	}
}

func (ps *Participants) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ps.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(strconv.FormatInt(id, 10))
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(ps.byID[id])
		if err != nil {
			return nil, fmt.Errorf("failed to serialize participant %d: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (ps *Participants) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*ps = Participants{byID: make(map[int64]*Participant)}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("participants: expected object, got %v", tok)
	}

	out := Participants{byID: make(map[int64]*Participant)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("participants: expected key, got %v", tok)
		}
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("participants: invalid chat id %q: %w", key, err)
		}
		var p Participant
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("failed to deserialize participant %d: %w", chatID, err)
		}
		out.Set(chatID, p)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*ps = out
	return nil
}
