package engine

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/geom"
)

var ErrCardHasStack = errors.New("card already belongs to a stack")
var ErrStackNotFound = errors.New("stack not found")

const (
	DefaultElevation = 2.0

	messinessMin = 35.0
	messinessMax = 40.0

	MoveDuration = 500 * time.Millisecond
	FlipDelay    = 250 * time.Millisecond
	FlipSettle   = 750 * time.Millisecond
	SettleDelay  = FlipDelay + FlipSettle
)

var DefaultViewport = geom.Size{Width: 1920, Height: 1080}

type Config struct {
	Rand      Rand
	Scheduler Scheduler
	// Viewport is the local screen size used by the side-by-side layout.
	Viewport geom.Size
	NewID    func() string
	Logger   *zap.Logger
}

// Engine mutates a Table. It holds no table state of its own; callers must
// serialize access to the table they pass in.
type Engine struct {
	rng      Rand
	sched    Scheduler
	viewport geom.Size
	newID    func() string
	log      *zap.Logger
}

func New(cfg Config) *Engine {
	e := &Engine{
		rng:      cfg.Rand,
		sched:    cfg.Scheduler,
		viewport: cfg.Viewport,
		newID:    cfg.NewID,
		log:      cfg.Logger,
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.sched == nil {
		e.sched = RealScheduler{}
	}
	if e.viewport == (geom.Size{}) {
		e.viewport = DefaultViewport
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

func (e *Engine) NewID() string { return e.newID() }

func (e *Engine) Viewport() geom.Size { return e.viewport }

func (e *Engine) Shuffle(n int, swap func(i, j int)) { e.rng.Shuffle(n, swap) }

// CreateStack appends a stack built from proto. Zero-valued style, taking and
// elevation fall back to simple, one and DefaultElevation.
func (e *Engine) CreateStack(t *Table, proto Stack) *Stack {
	s := proto
	ApplyStackDefaults(&s)
	s.ID = e.newID()
	s.TableID = t.ID
	s.Height = 0
	t.Stacks = append(t.Stacks, &s)
	return &s
}

// ApplyStackDefaults fills the zero-valued style, taking and elevation of s.
func ApplyStackDefaults(s *Stack) {
	if s.Style == "" {
		s.Style = StyleSimple
	}
	if s.Taking == "" {
		s.Taking = TakingOne
	}
	if s.Elevation == 0 {
		s.Elevation = DefaultElevation
	}
}

func GetStack(t *Table, id string) *Stack {
	for _, s := range t.Stacks {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// GetStackFromScreen returns the stack named name on screen, or the screen's
// default stack when name is empty.
func GetStackFromScreen(t *Table, screen int, name string) *Stack {
	for _, s := range t.Stacks {
		if s.Screen != screen {
			continue
		}
		if name != "" && s.Name == name {
			return s
		}
		if name == "" && s.DefaultStack {
			return s
		}
	}
	return nil
}

// StackCards returns the cards of a stack in draw order.
func StackCards(t *Table, stackID string) []*Card {
	cards := []*Card{}
	if stackID == "" {
		return cards
	}
	for _, c := range t.Cards {
		if c.StackID == stackID {
			cards = append(cards, c)
		}
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].StackIndex < cards[j].StackIndex })
	return cards
}

func (e *Engine) elevationStep(s *Stack) float64 {
	return s.Elevation * (0.5 + math.Abs(e.rng.Float64()*0.5))
}

// NewCardPositionInStack raises the pile by a jittered step and returns where
// the next card lands.
func (e *Engine) NewCardPositionInStack(s *Stack) geom.Point {
	s.Height += e.elevationStep(s)
	return geom.Point{
		X: s.Position.X + e.rng.Float64()*s.Elevation*4,
		Y: s.Position.Y - s.Height,
	}
}

// NewCardAngleInStack returns the rotation for the next card. Messy stacks
// accumulate 35..40 degrees per card so the pile fans out.
func (e *Engine) NewCardAngleInStack(s *Stack) float64 {
	if s.Style == StyleMessy {
		step := messinessMin + (messinessMax-messinessMin)*e.rng.Float64()
		s.MessinessRotation = geom.WrapDegrees(math.Round(s.MessinessRotation + step))
	}
	return geom.WrapDegrees(s.Rotation + s.MessinessRotation)
}
