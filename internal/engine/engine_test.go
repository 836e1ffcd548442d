package engine_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/internal/engine/enginetest"
	"github.com/DoyleJ11/airdeck/internal/geom"
)

const sheetSource = "cards.json"

func newEngine(rng engine.Rand, sched engine.Scheduler) *engine.Engine {
	n := 0
	return engine.New(engine.Config{
		Rand:      rng,
		Scheduler: sched,
		Viewport:  geom.Size{Width: 1000, Height: 800},
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
}

func newTable() *engine.Table {
	return &engine.Table{
		ID: "table",
		SpriteSheets: map[string]*engine.SpriteSheet{
			sheetSource: {Source: sheetSource, Sprites: []engine.Sprite{
				{Name: "a", Width: 80, Height: 100},
				{Name: "b", Width: 80, Height: 100},
				{Name: "c", Width: 80, Height: 100},
			}},
		},
		ScreenAmount: 1,
		Open:         true,
	}
}

// addCards puts n cards on s with sequential indices, front sprites cycling a, b, c.
func addCards(t *engine.Table, s *engine.Stack, n int) []*engine.Card {
	sprites := []string{"a", "b", "c"}
	cards := make([]*engine.Card, 0, n)
	base := len(engine.StackCards(t, s.ID))
	for i := 0; i < n; i++ {
		c := &engine.Card{
			ID:                     fmt.Sprintf("%s-card-%d", s.ID, base+i),
			StackID:                s.ID,
			StackIndex:             base + i,
			FrontSprite:            sprites[(base+i)%len(sprites)],
			BackSprite:             "back",
			FrontSpriteSheetSource: sheetSource,
			BackSpriteSheetSource:  sheetSource,
			Flipped:                s.Flipped,
		}
		t.Cards = append(t.Cards, c)
		cards = append(cards, c)
	}
	return cards
}

func requireContiguous(t *testing.T, table *engine.Table) {
	t.Helper()
	for _, s := range table.Stacks {
		for i, c := range engine.StackCards(table, s.ID) {
			require.Equal(t, i, c.StackIndex, "stack %s card %s", s.ID, c.ID)
		}
	}
}

func TestCreateStack_Defaults(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()

	s := e.CreateStack(table, engine.Stack{Screen: 2, DefaultStack: true, Height: 42})

	require.Len(t, table.Stacks, 1)
	assert.Same(t, s, table.Stacks[0])
	assert.Equal(t, "id-1", s.ID)
	assert.Equal(t, "table", s.TableID)
	assert.Equal(t, engine.StyleSimple, s.Style)
	assert.Equal(t, engine.TakingOne, s.Taking)
	assert.Equal(t, engine.DefaultElevation, s.Elevation)
	assert.Zero(t, s.Height)
	assert.Equal(t, geom.Point{}, s.Position)
	assert.False(t, s.Flipped)

	styled := e.CreateStack(table, engine.Stack{Style: engine.StyleMessy, Taking: engine.TakingAll, Elevation: 5})
	assert.Equal(t, engine.StyleMessy, styled.Style)
	assert.Equal(t, engine.TakingAll, styled.Taking)
	assert.Equal(t, 5.0, styled.Elevation)
	assert.NotEqual(t, s.ID, styled.ID)
}

func TestGetStackFromScreen(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()
	hand := e.CreateStack(table, engine.Stack{Screen: 1, DefaultStack: true})
	discard := e.CreateStack(table, engine.Stack{Screen: 1, Name: "discard"})
	e.CreateStack(table, engine.Stack{Screen: 0, Name: "discard"})

	assert.Same(t, hand, engine.GetStackFromScreen(table, 1, ""))
	assert.Same(t, discard, engine.GetStackFromScreen(table, 1, "discard"))
	assert.Nil(t, engine.GetStackFromScreen(table, 1, "missing"))
	assert.Nil(t, engine.GetStackFromScreen(table, 0, ""))
	assert.Nil(t, engine.GetStackFromScreen(table, 7, ""))
	assert.Nil(t, engine.GetStack(table, "nope"))
	assert.Same(t, hand, engine.GetStack(table, hand.ID))
}

func TestStackCards_OrderedByIndex(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()
	s := e.CreateStack(table, engine.Stack{})
	cards := addCards(table, s, 4)
	// shuffle storage order; draw order must not change
	table.Cards[0], table.Cards[3] = table.Cards[3], table.Cards[0]
	table.Cards[1], table.Cards[2] = table.Cards[2], table.Cards[1]

	got := engine.StackCards(table, s.ID)
	require.Len(t, got, 4)
	for i := range got {
		assert.Same(t, cards[i], got[i])
	}
	assert.Empty(t, engine.StackCards(table, ""))
}

func TestNewCardPositionInStack(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{Values: []float64{0.5}}, enginetest.NewManualScheduler())
	s := &engine.Stack{Position: geom.Point{X: 10, Y: 20}, Elevation: 2}

	p := e.NewCardPositionInStack(s)
	assert.InDelta(t, 1.5, s.Height, 1e-9)
	assert.InDelta(t, 14, p.X, 1e-9)
	assert.InDelta(t, 18.5, p.Y, 1e-9)

	p = e.NewCardPositionInStack(s)
	assert.InDelta(t, 3, s.Height, 1e-9)
	assert.InDelta(t, 17, p.Y, 1e-9)
}

func TestNewCardPositionInStack_StepBounds(t *testing.T) {
	e := newEngine(rand.New(rand.NewSource(7)), enginetest.NewManualScheduler())
	s := &engine.Stack{Elevation: 4}
	for i := 0; i < 200; i++ {
		before := s.Height
		p := e.NewCardPositionInStack(s)
		step := s.Height - before
		require.GreaterOrEqual(t, step, 2.0)
		require.Less(t, step, 4.0)
		require.GreaterOrEqual(t, p.X, 0.0)
		require.Less(t, p.X, 16.0)
	}
}

func TestNewCardAngleInStack_MessyAccumulates(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{Values: []float64{0}}, enginetest.NewManualScheduler())
	s := &engine.Stack{Style: engine.StyleMessy, Rotation: 10}

	want := []float64{45, 80, 115, 150, 185, 220, 255, 290, 325, 0, 35}
	for i, w := range want {
		assert.Equal(t, w, e.NewCardAngleInStack(s), "call %d", i)
	}
}

func TestNewCardAngleInStack_MessyStepRange(t *testing.T) {
	e := newEngine(rand.New(rand.NewSource(3)), enginetest.NewManualScheduler())
	s := &engine.Stack{Style: engine.StyleMessy}
	for i := 0; i < 500; i++ {
		before := s.MessinessRotation
		e.NewCardAngleInStack(s)
		step := geom.WrapDegrees(s.MessinessRotation - before)
		require.GreaterOrEqual(t, step, 35.0)
		require.LessOrEqual(t, step, 40.0)
		require.Less(t, s.MessinessRotation, 360.0)
	}
}

func TestNewCardAngleInStack_NotMessy(t *testing.T) {
	e := newEngine(rand.New(rand.NewSource(1)), enginetest.NewManualScheduler())
	for _, style := range []engine.Style{engine.StyleSimple, engine.StyleSideBySide} {
		s := &engine.Stack{Style: style, Rotation: 90}
		for i := 0; i < 3; i++ {
			assert.Equal(t, 90.0, e.NewCardAngleInStack(s))
		}
		assert.Zero(t, s.MessinessRotation)
	}
}

func TestAutoArrange_SortsByFrontSprite(t *testing.T) {
	table := newTable()
	s := &engine.Stack{ID: "s"}
	table.Stacks = append(table.Stacks, s)
	for i, name := range []string{"c", "a", "b"} {
		table.Cards = append(table.Cards, &engine.Card{
			ID: name, StackID: "s", StackIndex: i, FrontSprite: name,
			Position: geom.Point{X: float64(i)},
		})
	}

	engine.AutoArrange(table, s)

	got := engine.StackCards(table, "s")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 1.0, got[0].Position.X, "positions stay put")
}

func TestOrganizeSideBySide_SingleRow(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()
	s := e.CreateStack(table, engine.Stack{Style: engine.StyleSideBySide})
	cards := addCards(table, s, 3)

	e.OrganizeSideBySide(table, s)

	for i, c := range cards {
		assert.InDelta(t, -100+100*float64(i), c.Position.X, 1e-9)
		assert.InDelta(t, 0, c.Position.Y, 1e-9)
	}
}

func TestOrganizeSideBySide_WrapsRows(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()
	s := e.CreateStack(table, engine.Stack{Style: engine.StyleSideBySide, Position: geom.Point{X: 50, Y: 50}})
	cards := addCards(table, s, 12)

	e.OrganizeSideBySide(table, s)

	// available width 840, spacing clamped to the 100 minimum, two rows 30 apart
	assert.InDelta(t, 50-420, cards[0].Position.X, 1e-9)
	assert.InDelta(t, 50-15, cards[0].Position.Y, 1e-9)
	assert.InDelta(t, 50+380, cards[8].Position.X, 1e-9)
	assert.InDelta(t, 50-15, cards[8].Position.Y, 1e-9)
	assert.InDelta(t, 50-420, cards[9].Position.X, 1e-9)
	assert.InDelta(t, 50+15, cards[9].Position.Y, 1e-9)
}

func TestOrganizeSideBySide_UsesScreenScale(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()
	table.MainScale = 2
	s := e.CreateStack(table, engine.Stack{Style: engine.StyleSideBySide})
	cards := addCards(table, s, 6)

	e.OrganizeSideBySide(table, s)

	// 840 / 2 = 420 wide: cards 0..4 on the first row, card 5 wraps
	assert.InDelta(t, -210, cards[0].Position.X, 1e-9)
	assert.InDelta(t, -210, cards[5].Position.X, 1e-9)
	assert.Greater(t, cards[5].Position.Y, cards[4].Position.Y)
}

func TestPopCardFromStack(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{Values: []float64{0.5}}, enginetest.NewManualScheduler())
	table := newTable()
	s := e.CreateStack(table, engine.Stack{})
	cards := addCards(table, s, 3)
	s.Height = 10

	top := e.PopCardFromStack(table, s.ID, "")
	require.Same(t, cards[2], top)
	assert.Empty(t, top.StackID)
	assert.InDelta(t, 8.5, s.Height, 1e-9)
	assert.Len(t, table.Cards, 3, "popped cards stay on the table")

	mid := e.PopCardFromStack(table, s.ID, cards[0].ID)
	require.Same(t, cards[0], mid)
	assert.Equal(t, 0, cards[1].StackIndex)
	requireContiguous(t, table)

	last := e.PopCardFromStack(table, s.ID, "")
	require.Same(t, cards[1], last)
	assert.InDelta(t, 7, s.Height, 1e-9, "height only drops while more than one card remains")

	assert.Nil(t, e.PopCardFromStack(table, s.ID, ""))
	assert.Nil(t, e.PopCardFromStack(table, "missing", ""))
	assert.Nil(t, e.PopCardFromStack(table, s.ID, "missing"))
}

func TestPushCardToStack_Preconditions(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()
	s := e.CreateStack(table, engine.Stack{})
	card := addCards(table, s, 1)[0]

	err := e.PushCardToStack(table, card, s.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrCardHasStack))

	popped := e.PopCardFromStack(table, s.ID, "")
	err = e.PushCardToStack(table, popped, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrStackNotFound))
}

func TestPopPush_RoundTrip(t *testing.T) {
	e := newEngine(rand.New(rand.NewSource(11)), enginetest.NewManualScheduler())
	table := newTable()
	s := e.CreateStack(table, engine.Stack{})
	addCards(table, s, 5)

	card := e.PopCardFromStack(table, s.ID, "")
	require.NotNil(t, card)
	require.NoError(t, e.PushCardToStack(table, card, s.ID))

	assert.Equal(t, s.ID, card.StackID)
	assert.Len(t, engine.StackCards(table, s.ID), 5)
	assert.Equal(t, 4, card.StackIndex)
	requireContiguous(t, table)
}

func TestPushPop_IndicesStayContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sched := enginetest.NewManualScheduler()
	e := newEngine(rng, sched)
	table := newTable()
	stacks := []*engine.Stack{
		e.CreateStack(table, engine.Stack{Style: engine.StyleMessy}),
		e.CreateStack(table, engine.Stack{Style: engine.StyleSideBySide, AutoArrange: true}),
		e.CreateStack(table, engine.Stack{Flipped: true}),
	}
	addCards(table, stacks[0], 10)
	addCards(table, stacks[1], 4)

	for i := 0; i < 300; i++ {
		src := stacks[rng.Intn(len(stacks))]
		dest := stacks[rng.Intn(len(stacks))]
		cardID := ""
		if cards := engine.StackCards(table, src.ID); len(cards) > 0 && rng.Intn(2) == 0 {
			cardID = cards[rng.Intn(len(cards))].ID
		}
		require.NoError(t, e.MoveCard(table, src.ID, dest.ID, cardID, false))
		sched.Advance(100 * time.Millisecond)
		requireContiguous(t, table)
	}

	total := 0
	for _, s := range stacks {
		total += len(engine.StackCards(table, s.ID))
	}
	assert.Equal(t, 14, total)
}

func TestPushCardToStack_FlipSequence(t *testing.T) {
	sched := enginetest.NewManualScheduler()
	e := newEngine(&enginetest.SeqRand{Values: []float64{0.3}}, sched)
	table := newTable()
	src := e.CreateStack(table, engine.Stack{Flipped: false})
	dest := e.CreateStack(table, engine.Stack{Flipped: true})
	addCards(table, src, 1)

	card := e.PopCardFromStack(table, src.ID, "")
	require.NoError(t, e.PushCardToStack(table, card, dest.ID))

	assert.True(t, card.Flipping)
	assert.True(t, card.Moving)
	assert.False(t, card.Flipped)

	sched.Advance(engine.FlipDelay - 1)
	assert.True(t, card.Flipping)
	assert.False(t, card.Flipped)

	sched.Advance(1)
	assert.False(t, card.Flipping)
	assert.True(t, card.Flipped)
	assert.True(t, card.Moving)

	sched.Advance(engine.MoveDuration - engine.FlipDelay)
	assert.False(t, card.Moving)
	assert.Equal(t, 1, sched.Pending(), "final settle still pending")

	sched.Advance(engine.FlipSettle - (engine.MoveDuration - engine.FlipDelay))
	assert.Zero(t, sched.Pending())
	assert.Equal(t, engine.FlipDelay+engine.FlipSettle, sched.Now())
	assert.True(t, card.Flipped, "flipped toggles exactly once")
}

func TestPushCardToStack_NoFlipSettles(t *testing.T) {
	sched := enginetest.NewManualScheduler()
	e := newEngine(&enginetest.SeqRand{Values: []float64{0.3}}, sched)
	table := newTable()
	src := e.CreateStack(table, engine.Stack{})
	dest := e.CreateStack(table, engine.Stack{})
	addCards(table, src, 1)

	card := e.PopCardFromStack(table, src.ID, "")
	require.NoError(t, e.PushCardToStack(table, card, dest.ID))
	assert.False(t, card.Flipping)

	sched.Advance(engine.SettleDelay - 1)
	assert.Equal(t, 1, sched.Pending())
	assert.False(t, card.Moving)

	sched.Advance(1)
	assert.Zero(t, sched.Pending())
	assert.False(t, card.Flipped)
}

func TestMoveCard_QuickSecondMoveCancelsPendingFlip(t *testing.T) {
	// the same two moves, replayed with different gaps as they would arrive
	// on different screens, must settle to the same card state
	replay := func(gap time.Duration) (*engine.Card, *enginetest.ManualScheduler) {
		sched := enginetest.NewManualScheduler()
		e := newEngine(&enginetest.SeqRand{Values: []float64{0.3}}, sched)
		table := newTable()
		a := e.CreateStack(table, engine.Stack{})
		b := e.CreateStack(table, engine.Stack{Flipped: true})
		c := e.CreateStack(table, engine.Stack{})
		card := addCards(table, a, 1)[0]

		require.NoError(t, e.MoveCard(table, a.ID, b.ID, "", false))
		sched.Advance(gap)
		require.NoError(t, e.MoveCard(table, b.ID, c.ID, "", false))
		require.Equal(t, c.ID, card.StackID)
		return card, sched
	}

	fast, sched := replay(100 * time.Millisecond)
	assert.False(t, fast.Flipping, "no flip needed into an unflipped stack")

	sched.Advance(engine.FlipDelay)
	assert.False(t, fast.Flipped, "earlier flip must not land in the new stack")

	sched.Advance(engine.MoveDuration - engine.FlipDelay - 100*time.Millisecond)
	assert.True(t, fast.Moving, "earlier move timer must not end the current move")
	sched.Advance(100 * time.Millisecond)
	assert.False(t, fast.Moving)

	slow, sched2 := replay(300 * time.Millisecond)
	sched.Advance(5 * time.Second)
	sched2.Advance(5 * time.Second)

	assert.Equal(t, slow.Flipped, fast.Flipped)
	assert.False(t, fast.Flipped)
	assert.False(t, fast.Flipping || slow.Flipping)
	assert.False(t, fast.Moving || slow.Moving)
	assert.Zero(t, sched.Pending())
	assert.Zero(t, sched2.Pending())
}

func TestMoveCard(t *testing.T) {
	cases := []struct {
		name      string
		broadcast bool
		withSend  bool
		wantSent  int
	}{
		{name: "broadcasts", broadcast: true, withSend: true, wantSent: 1},
		{name: "suppressed", broadcast: false, withSend: true, wantSent: 0},
		{name: "no session", broadcast: true, withSend: false, wantSent: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(&enginetest.SeqRand{Values: []float64{0.1}}, enginetest.NewManualScheduler())
			table := newTable()
			src := e.CreateStack(table, engine.Stack{})
			dest := e.CreateStack(table, engine.Stack{})
			cards := addCards(table, src, 2)

			var sent []engine.Command
			if tc.withSend {
				table.Send = func(c engine.Command) { sent = append(sent, c) }
			}

			require.NoError(t, e.MoveCard(table, src.ID, dest.ID, cards[0].ID, tc.broadcast))
			assert.Equal(t, dest.ID, cards[0].StackID)
			require.Len(t, sent, tc.wantSent)
			if tc.wantSent > 0 {
				assert.Equal(t, engine.MoveCardCommand(src.ID, dest.ID, cards[0].ID), sent[0])
			}
		})
	}
}

func TestMoveCard_EmptySourceIsNoop(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()
	src := e.CreateStack(table, engine.Stack{})
	dest := e.CreateStack(table, engine.Stack{})
	sent := 0
	table.Send = func(engine.Command) { sent++ }

	require.NoError(t, e.MoveCard(table, src.ID, dest.ID, "", true))
	require.NoError(t, e.MoveCard(table, src.ID, dest.ID, "ghost", true))
	require.NoError(t, e.MoveCard(table, "missing", dest.ID, "", true))
	assert.Zero(t, sent)
}

func TestMoveCard_MissingDestinationRestoresCard(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()
	src := e.CreateStack(table, engine.Stack{})
	card := addCards(table, src, 1)[0]

	err := e.MoveCard(table, src.ID, "missing", "", false)
	require.ErrorIs(t, err, engine.ErrStackNotFound)
	assert.Equal(t, src.ID, card.StackID)
}

func TestCard_InTransitStackIDIsNull(t *testing.T) {
	table := newTable()
	s := &engine.Stack{ID: "s1"}
	table.Stacks = append(table.Stacks, s)
	cards := addCards(table, s, 2)
	cards[1].StackID = ""

	raw, err := json.Marshal(table)
	require.NoError(t, err)

	var doc struct {
		Cards []map[string]any `json:"cards"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Cards, 2)
	assert.Equal(t, "s1", doc.Cards[0]["stackId"])
	assert.Contains(t, doc.Cards[1], "stackId")
	assert.Nil(t, doc.Cards[1]["stackId"])
	assert.Equal(t, cards[1].ID, doc.Cards[1]["id"])

	var back engine.Table
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "s1", back.Cards[0].StackID)
	assert.Empty(t, back.Cards[1].StackID)
	assert.Equal(t, 1, back.Cards[1].StackIndex)
}

func TestTableClone_Independent(t *testing.T) {
	e := newEngine(&enginetest.SeqRand{}, enginetest.NewManualScheduler())
	table := newTable()
	s := e.CreateStack(table, engine.Stack{})
	addCards(table, s, 2)
	table.Send = func(engine.Command) {}

	c := table.Clone()
	c.Stacks[0].Height = 42
	c.Cards[0].StackID = ""

	assert.Nil(t, c.Send)
	assert.Zero(t, s.Height)
	assert.Equal(t, s.ID, table.Cards[0].StackID)
	assert.Same(t, table.SpriteSheet(sheetSource), c.SpriteSheet(sheetSource))
}
