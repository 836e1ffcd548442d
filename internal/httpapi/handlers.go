package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/airdeck/internal/engine"
	"github.com/DoyleJ11/airdeck/internal/geom"
	"github.com/DoyleJ11/airdeck/internal/hub"
	"github.com/DoyleJ11/airdeck/internal/relay"
	"github.com/DoyleJ11/airdeck/internal/screen"
)

const replyTimeout = 5 * time.Second

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

type createRoomRequest struct {
	Source string `json:"source"`
}

// CreateRoom starts a host session under a fresh code. The table comes from
// the request's source, or defaultSource when none is given.
func CreateRoom(h *hub.Hub, defaultSource string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Source == "" {
			req.Source = defaultSource
		}
		if req.Source == "" {
			http.Error(w, "missing table source", http.StatusBadRequest)
			return
		}

		for {
			code, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			reply := make(chan hub.RoomReply, 1)
			h.Inbox() <- hub.CreateRoom{Code: code, Source: req.Source, Reply: reply}
			res := <-reply
			if errors.Is(res.Err, hub.ErrRoomExists) {
				log.Debug("collision on code, regenerating", zap.String("code", code))
				continue
			}
			if res.Err != nil {
				http.Error(w, "failed to create room", http.StatusBadGateway)
				return
			}
			writeJSON(w, http.StatusCreated, struct {
				Code string `json:"code"`
			}{Code: code})
			return
		}
	}
}

type roomView struct {
	Room    string        `json:"room"`
	Screens []int         `json:"screens"`
	Layout  []placement   `json:"layout"`
	Table   *engine.Table `json:"table"`
}

// placement is where a remote screen sits around the host.
type placement struct {
	Screen int        `json:"screen"`
	Angle  float64    `json:"angle"`
	Vector geom.Point `json:"vector"`
}

func layout(v relay.View) []placement {
	out := []placement{}
	for s := 1; s < v.Table.ScreenAmount; s++ {
		out = append(out, placement{
			Screen: s,
			Angle:  screen.Angle(v.Table, s),
			Vector: screen.Vector(v.Table, s, v.Viewport),
		})
	}
	return out
}

func GetRoom(w http.ResponseWriter, r *http.Request) {
	host := hostFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), replyTimeout)
	defer cancel()
	v, err := host.State(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, roomView{Room: v.Room, Screens: v.Screens, Layout: layout(v), Table: v.Table})
}

type moveRequest struct {
	Src    string `json:"src"`
	Dest   string `json:"dest"`
	CardID string `json:"cardId,omitempty"`
}

func PostMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeBody(r, &req); err != nil || req.Src == "" || req.Dest == "" {
		http.Error(w, "want {src, dest, cardId?}", http.StatusBadRequest)
		return
	}

	host := hostFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), replyTimeout)
	defer cancel()
	reply := make(chan error, 1)
	if err := host.Post(ctx, relay.Move{Src: req.Src, Dest: req.Dest, CardID: req.CardID, Reply: reply}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	var err error
	select {
	case err = <-reply:
	case <-ctx.Done():
		http.Error(w, ctx.Err().Error(), http.StatusServiceUnavailable)
		return
	}
	switch {
	case errors.Is(err, engine.ErrStackNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrCardHasStack):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

// pointRequest names the screen directly or gives the gesture angle.
type pointRequest struct {
	Screen *int     `json:"screen"`
	Angle  *float64 `json:"angle"`
}

func PostPoint(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	err := decodeBody(r, &req)
	switch {
	case err != nil, (req.Screen == nil) == (req.Angle == nil):
		http.Error(w, "want {screen} or {angle}", http.StatusBadRequest)
	case req.Angle != nil:
		post(w, r, relay.PointAt{Angle: *req.Angle})
	case *req.Screen < 0:
		http.Error(w, "screen must not be negative", http.StatusBadRequest)
	default:
		post(w, r, relay.PointTo{Screen: *req.Screen})
	}
}

func PostReload(w http.ResponseWriter, r *http.Request) {
	post(w, r, relay.ReloadScreens{})
}

type openRequest struct {
	Open *bool `json:"open"`
}

func PostOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeBody(r, &req); err != nil || req.Open == nil {
		http.Error(w, "want {open}", http.StatusBadRequest)
		return
	}
	post(w, r, relay.SetOpen{Open: *req.Open})
}

func post(w http.ResponseWriter, r *http.Request, m relay.Msg) {
	ctx, cancel := context.WithTimeout(r.Context(), replyTimeout)
	defer cancel()
	if err := hostFrom(r.Context()).Post(ctx, m); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
