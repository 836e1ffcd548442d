package loader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/engine"
)

type Loader struct {
	fetch  Fetcher
	engine *engine.Engine
	log    *zap.Logger
}

func New(fetch Fetcher, e *engine.Engine, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{fetch: fetch, engine: e, log: log}
}

// Load builds a fresh host table from the definition at source. Deck templates
// are expanded into cards and laid out through the engine so pile height and
// messiness are seeded before anything is shown.
func (l *Loader) Load(ctx context.Context, source string) (*engine.Table, error) {
	var t engine.Table
	if err := l.fetch.Fetch(ctx, source, &t); err != nil {
		return nil, fmt.Errorf("load table %s: %w", source, err)
	}

	t.ID = l.engine.NewID()
	t.SpriteSheets = map[string]*engine.SpriteSheet{}
	t.Cards = []*engine.Card{}
	t.LocalScreen = 0
	t.ScreenAmount = 1
	t.Open = true
	t.PointToScreen = 0
	if t.Stacks == nil {
		t.Stacks = []*engine.Stack{}
	}

	for _, s := range t.Stacks {
		s.ID = l.engine.NewID()
		s.Screen = 0
		s.TableID = t.ID
		s.Height = 0
		s.MessinessRotation = 0
		engine.ApplyStackDefaults(s)

		if s.FrontSpriteSheetSource == "" || s.BackSpriteSheetSource == "" {
			continue
		}
		for _, src := range []string{s.FrontSpriteSheetSource, s.BackSpriteSheetSource} {
			if _, ok := t.SpriteSheets[src]; ok {
				continue
			}
			var sheet engine.SpriteSheet
			if err := l.fetch.Fetch(ctx, Resolve(source, src), &sheet); err != nil {
				return nil, fmt.Errorf("load sprite sheet %s: %w", src, err)
			}
			t.SpriteSheets[src] = &sheet
		}

		cards := l.expandDeck(s)
		if s.Shuffle {
			l.engine.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
		}
		for i, c := range cards {
			c.StackIndex = i
			c.Rotation = l.engine.NewCardAngleInStack(s)
			c.Position = l.engine.NewCardPositionInStack(s)
		}
		t.Cards = append(t.Cards, cards...)

		if s.Style == engine.StyleSideBySide {
			l.engine.OrganizeSideBySide(&t, s)
		}
	}

	l.log.Info("table loaded",
		zap.String("source", source),
		zap.String("table", t.ID),
		zap.Int("stacks", len(t.Stacks)),
		zap.Int("cards", len(t.Cards)),
		zap.Int("spriteSheets", len(t.SpriteSheets)),
	)
	return &t, nil
}

func (l *Loader) expandDeck(s *engine.Stack) []*engine.Card {
	repeat := max(s.Repeat, 1)
	cards := make([]*engine.Card, 0, repeat*len(s.Deck))
	for i := 0; i < repeat; i++ {
		for _, d := range s.Deck {
			cards = append(cards, &engine.Card{
				ID:                     l.engine.NewID(),
				StackID:                s.ID,
				FrontSprite:            d.FrontSprite,
				BackSprite:             d.BackSprite,
				FrontSpriteSheetSource: s.FrontSpriteSheetSource,
				BackSpriteSheetSource:  s.BackSpriteSheetSource,
				Flipped:                s.Flipped,
			})
		}
	}
	return cards
}
