package engine

import (
	"encoding/json"

	"github.com/DoyleJ11/airdeck/internal/geom"
)

type Style string

const (
	StyleMessy      Style = "messy"
	StyleSimple     Style = "simple"
	StyleSideBySide Style = "side-by-side"
)

// Taking is consumed by the UI layer only; the engine carries it through snapshots.
type Taking string

const (
	TakingOne Taking = "one"
	TakingAll Taking = "all"
	TakingTop Taking = "top"
)

type Sprite struct {
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type SpriteSheet struct {
	Source  string   `json:"source"`
	Sprites []Sprite `json:"sprites"`
}

// Sprite returns the named sprite or nil.
func (s *SpriteSheet) Sprite(name string) *Sprite {
	if s == nil {
		return nil
	}
	for i := range s.Sprites {
		if s.Sprites[i].Name == name {
			return &s.Sprites[i]
		}
	}
	return nil
}

type DeckEntry struct {
	FrontSprite string `json:"frontSprite"`
	BackSprite  string `json:"backSprite"`
}

type Card struct {
	ID                     string     `json:"id"`
	StackID                string     `json:"stackId"` // empty while in transit, null on the wire
	StackIndex             int        `json:"stackIndex"`
	FrontSprite            string     `json:"frontSprite"`
	BackSprite             string     `json:"backSprite"`
	FrontSpriteSheetSource string     `json:"frontSpriteSheetSource"`
	BackSpriteSheetSource  string     `json:"backSpriteSheetSource"`
	Position               geom.Point `json:"position"`
	Rotation               float64    `json:"rotation"`
	Flipped                bool       `json:"flipped"`
	Flipping               bool       `json:"flipping"`
	Moving                 bool       `json:"moving"`

	// push counts placements so timers of an earlier push can tell they are stale.
	push uint64
}

// MarshalJSON writes an empty StackID as null.
func (c Card) MarshalJSON() ([]byte, error) {
	type plain Card
	out := struct {
		plain
		StackID *string `json:"stackId"`
	}{plain: plain(c)}
	if c.StackID != "" {
		out.StackID = &c.StackID
	}
	return json.Marshal(out)
}

type Stack struct {
	ID                string     `json:"id"`
	Screen            int        `json:"screen"`
	TableID           string     `json:"tableId"`
	Position          geom.Point `json:"position"`
	Flipped           bool       `json:"flipped"`
	Rotation          float64    `json:"rotation"`
	Elevation         float64    `json:"elevation"`
	Height            float64    `json:"height"`
	MessinessRotation float64    `json:"messinessRotation"`
	Style             Style      `json:"style"`
	Taking            Taking     `json:"taking"`
	DefaultStack      bool       `json:"defaultStack,omitempty"`
	Name              string     `json:"name,omitempty"`
	DestStackName     string     `json:"destStackName,omitempty"`
	AutoArrange       bool       `json:"autoArrange,omitempty"`

	// Deck template, only read by the loader.
	Shuffle                bool        `json:"shuffle,omitempty"`
	FrontSpriteSheetSource string      `json:"frontSpriteSheetSource,omitempty"`
	BackSpriteSheetSource  string      `json:"backSpriteSheetSource,omitempty"`
	Repeat                 int         `json:"repeat,omitempty"`
	Deck                   []DeckEntry `json:"deck,omitempty"`
}

type Table struct {
	ID            string                  `json:"id"`
	Background    string                  `json:"background"`
	PointToScreen int                     `json:"pointToScreen,omitempty"`
	MainScale     float64                 `json:"mainScale,omitempty"`
	HandScale     float64                 `json:"handScale,omitempty"`
	Stacks        []*Stack                `json:"stacks"`
	Cards         []*Card                 `json:"cards"`
	SpriteSheets  map[string]*SpriteSheet `json:"spriteSheets"`
	LocalScreen   int                     `json:"localScreen"`
	ScreenAmount  int                     `json:"screenAmount"`
	Open          bool                    `json:"open"`

	// Send publishes a command to the other screens. Nil unless a relay session owns the table.
	Send func(Command) `json:"-"`
}

// Scale is the presentation scale of the screen holding this copy of the table.
func (t *Table) Scale() float64 {
	s := t.HandScale
	if t.LocalScreen == 0 {
		s = t.MainScale
	}
	if s == 0 {
		return 1
	}
	return s
}

func (t *Table) SpriteSheet(source string) *SpriteSheet {
	return t.SpriteSheets[source]
}

func (t *Table) Card(id string) *Card {
	for _, c := range t.Cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Clone copies the stacks and cards of t. Sprite sheets are shared and Send is dropped.
func (t *Table) Clone() *Table {
	c := *t
	c.Send = nil
	c.Stacks = make([]*Stack, len(t.Stacks))
	for i, s := range t.Stacks {
		cp := *s
		cp.Deck = append([]DeckEntry(nil), s.Deck...)
		c.Stacks[i] = &cp
	}
	c.Cards = make([]*Card, len(t.Cards))
	for i, card := range t.Cards {
		cp := *card
		c.Cards[i] = &cp
	}
	c.SpriteSheets = make(map[string]*SpriteSheet, len(t.SpriteSheets))
	for k, v := range t.SpriteSheets {
		c.SpriteSheets[k] = v
	}
	return &c
}
