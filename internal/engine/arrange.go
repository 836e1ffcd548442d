package engine

import (
	"math"
	"sort"

	"github.com/DoyleJ11/airdeck/internal/geom"
)

const (
	sideBySideMinSpacing = 100.0
	sideBySideMaxPadding = 10.0
	sideBySideRowRatio   = 0.3
)

// OrganizeStackCards re-runs the arrangement rules of a stack. Auto-arrange
// goes first because side-by-side lays out by the indices it rewrites.
func (e *Engine) OrganizeStackCards(t *Table, s *Stack) {
	if s.AutoArrange {
		AutoArrange(t, s)
	}
	if s.Style == StyleSideBySide {
		e.OrganizeSideBySide(t, s)
	}
}

// AutoArrange reindexes a stack by front sprite name. Positions are left alone.
func AutoArrange(t *Table, s *Stack) {
	cards := StackCards(t, s.ID)
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].FrontSprite < cards[j].FrontSprite })
	for i, c := range cards {
		c.StackIndex = i
	}
}

// OrganizeSideBySide lays the cards out in rows centered on the stack position.
// Card size comes from the first card's front sprite; stacks are assumed sprite-uniform.
func (e *Engine) OrganizeSideBySide(t *Table, s *Stack) {
	cards := StackCards(t, s.ID)
	if len(cards) == 0 {
		return
	}

	var cardWidth, cardHeight float64
	if sprite := t.SpriteSheet(cards[0].FrontSpriteSheetSource).Sprite(cards[0].FrontSprite); sprite != nil {
		cardWidth, cardHeight = sprite.Width, sprite.Height
	}

	maxStackWidth := (e.viewport.Width - cardWidth*2) / t.Scale()
	if maxStackWidth < sideBySideMinSpacing {
		maxStackWidth = sideBySideMinSpacing
	}
	maxSpacingX := cardWidth + sideBySideMaxPadding
	spacingX := geom.Clamp(maxStackWidth/float64(len(cards)), sideBySideMinSpacing, maxSpacingX)
	stackWidth := spacingX * float64(len(cards)-1)

	spacingY := cardHeight * sideBySideRowRatio
	stackHeight := 0.0
	if stackWidth > maxStackWidth {
		stackHeight = (math.Ceil(stackWidth/maxStackWidth) - 1) * spacingY
	}

	startX := s.Position.X - math.Min(stackWidth, maxStackWidth)/2
	startY := s.Position.Y - stackHeight/2

	var dx, dy float64
	for _, c := range cards {
		c.Position.X = startX + dx
		c.Position.Y = startY + dy
		dx += spacingX
		if dx > maxStackWidth {
			dx = 0
			dy += spacingY
		}
	}
}
