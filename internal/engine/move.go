package engine

import (
	"fmt"

	"go.uber.org/zap"
)

// PopCardFromStack detaches the top card, or cardID when given, and returns it
// with an empty StackID. Returns nil when the stack or card does not exist.
func (e *Engine) PopCardFromStack(t *Table, stackID, cardID string) *Card {
	stack := GetStack(t, stackID)
	if stack == nil {
		return nil
	}

	cards := StackCards(t, stackID)
	var card *Card
	if cardID != "" {
		card = t.Card(cardID)
	} else if len(cards) > 0 {
		card = cards[len(cards)-1]
	}
	if card == nil || card.StackID != stackID {
		return nil
	}

	card.StackID = ""
	if len(cards) > 1 {
		stack.Height -= e.elevationStep(stack)
	}

	// keep indices contiguous when a card is taken from the middle
	i := 0
	for _, c := range cards {
		if c == card {
			continue
		}
		c.StackIndex = i
		i++
	}

	e.OrganizeStackCards(t, stack)
	return card
}

// PushCardToStack places an in-transit card on top of a stack. The mutation is
// immediate; the moving/flipping flags then play out on the scheduler:
//
//	Moving   true for MoveDuration
//	flip     Flipping for FlipDelay, then Flipped = stack.Flipped, settle FlipSettle
//	no flip  settle SettleDelay
//
// and the stack is organized once more at the end. A later push of the same
// card cancels whatever is still pending from this one.
func (e *Engine) PushCardToStack(t *Table, card *Card, stackID string) error {
	if card.StackID != "" {
		return fmt.Errorf("push card %s: %w", card.ID, ErrCardHasStack)
	}
	stack := GetStack(t, stackID)
	if stack == nil {
		return fmt.Errorf("push card %s to %s: %w", card.ID, stackID, ErrStackNotFound)
	}

	card.StackIndex = len(StackCards(t, stack.ID))
	card.StackID = stack.ID
	card.Position = e.NewCardPositionInStack(stack)
	card.Rotation = e.NewCardAngleInStack(stack)
	card.Moving = true
	card.Flipping = false
	card.push++

	gen := card.push
	current := func() bool { return card.push == gen && card.StackID == stack.ID }

	e.OrganizeStackCards(t, stack)
	e.sched.AfterFunc(MoveDuration, func() {
		if current() {
			card.Moving = false
		}
	})

	finish := func() {
		if current() {
			e.OrganizeStackCards(t, stack)
		}
	}
	if card.Flipped != stack.Flipped {
		card.Flipping = true
		e.sched.AfterFunc(FlipDelay, func() {
			if !current() {
				return
			}
			card.Flipped = stack.Flipped
			card.Flipping = false
			e.sched.AfterFunc(FlipSettle, finish)
		})
		return nil
	}
	e.sched.AfterFunc(SettleDelay, finish)
	return nil
}

// MoveCard pops from src and pushes onto dest. Nothing to pop is not an error.
// With broadcast set the move is published through t.Send before the push.
func (e *Engine) MoveCard(t *Table, src, dest, cardID string, broadcast bool) error {
	card := e.PopCardFromStack(t, src, cardID)
	if card == nil {
		return nil
	}

	if broadcast && t.Send != nil {
		t.Send(MoveCardCommand(src, dest, cardID))
	}

	e.log.Debug("moving card",
		zap.String("src", src),
		zap.String("dest", dest),
		zap.String("card", card.ID),
	)
	if err := e.PushCardToStack(t, card, dest); err != nil {
		// put it back so the card is never orphaned
		if restoreErr := e.PushCardToStack(t, card, src); restoreErr != nil {
			e.log.Error("restore popped card", zap.String("card", card.ID), zap.Error(restoreErr))
		}
		return err
	}
	return nil
}
