package room

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/journal"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
	"github.com/DoyleJ11/werewolf-backend/internal/scheduler"
)

const (
	DefaultMinPlayers    = 4
	DefaultPhaseDuration = 60 * time.Second

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

type Config struct {
	MinPlayers    int
	PhaseDuration time.Duration
	Tickers       scheduler.TickerCreator
	// Rand drives role dealing and tie breaks. It is owned by one room and
	// must not be shared; nil seeds a fresh source.
	Rand    *rand.Rand
	Now     func() time.Time
	Logger  *zap.Logger
	Journal journal.Recorder
}

func (c Config) withDefaults() Config {
	if c.MinPlayers <= 0 {
		c.MinPlayers = DefaultMinPlayers
	}
	if c.PhaseDuration <= 0 {
		c.PhaseDuration = DefaultPhaseDuration
	}
	if c.Tickers == nil {
		c.Tickers = scheduler.NewTickerGen()
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Journal == nil {
		c.Journal = journal.Nop{}
	}
	return c
}

type player struct {
	id       string
	username string
	role     engine.Role
}

type Room struct {
	code  string
	cfg   Config
	log   *zap.Logger
	inbox chan Msg

	owner   string
	players []*player                         // alive roster, join order
	members map[string]chan<- protocol.Message // connected, killed players included
	joined  []string                          // member ids, join order

	phase         engine.Phase
	votes         map[string]string // werewolf id -> target id, this night
	nightResolved bool

	sched    *scheduler.Scheduler
	timerGen int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func New(parent context.Context, code string, cfg Config) *Room {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		code:    code,
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("room", code)),
		inbox:   make(chan Msg, 64),
		members: make(map[string]chan<- protocol.Message),
		phase:   engine.PhaseWaiting,
		votes:   make(map[string]string),
		sched:   scheduler.New(cfg.PhaseDuration, cfg.Tickers),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// Inbox lets the transport layer and tests post messages directly.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room stopped processing messages.
func (r *Room) Done() <-chan struct{} { return r.done }

// Send posts m unless the room is already gone.
func (r *Room) Send(m Msg) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) Join(ctx context.Context, id, username string, outbox chan<- protocol.Message) ([]protocol.PlayerView, error) {
	reply := make(chan JoinReply, 1)
	if !r.Send(Join{PlayerID: id, Username: username, Outbox: outbox, Reply: reply}) {
		return nil, ErrRoomClosed
	}
	select {
	case res := <-reply:
		return res.Players, res.Err
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Leave removes id and returns how many connections remain. Zero means the
// room has shut down.
func (r *Room) Leave(ctx context.Context, id string) (int, error) {
	reply := make(chan int, 1)
	if !r.Send(Leave{PlayerID: id, Reply: reply}) {
		return 0, ErrRoomClosed
	}
	select {
	case n := <-reply:
		if n == 0 {
			<-r.done
		}
		return n, nil
	case <-r.done:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Room) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !r.Send(GetState{Reply: reply}) {
		return View{}, ErrRoomClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrRoomClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				players, err := r.join(msg)
				msg.Reply <- JoinReply{Players: players, Err: err}

			case Leave:
				remaining := r.leave(msg.PlayerID)
				if remaining == 0 {
					// Timer is canceled before anyone learns the room is empty.
					r.shutdown()
					msg.Reply <- 0
					return
				}
				msg.Reply <- remaining

			case StartGame:
				if err := r.startGame(msg); err != nil {
					r.log.Info("start rejected", zap.String("player", msg.PlayerID), zap.Error(err))
					r.sendError(msg.PlayerID, startErrorEvent(err), err)
				}

			case LethalVote:
				if err := r.lethalVote(msg); err != nil {
					r.log.Info("vote rejected", zap.String("voter", msg.VoterID), zap.Error(err))
					r.sendError(msg.VoterID, protocol.EvtError, err)
				}

			case RevealAction:
				if err := r.reveal(msg); err != nil {
					r.log.Info("inspection rejected", zap.String("player", msg.RequesterID), zap.Error(err))
					r.sendError(msg.RequesterID, protocol.EvtError, err)
				}

			case Chat:
				r.broadcast(protocol.Message{Event: protocol.EvtReceiveMessage, Data: protocol.ReceiveMessage{
					Username:  msg.Username,
					Message:   msg.Message,
					Timestamp: r.cfg.Now().UTC().Format(timestampLayout),
				}})

			case phaseTick:
				if msg.gen != r.timerGen || r.phase == engine.PhaseWaiting {
					r.log.Debug("stale phase tick dropped", zap.Int("gen", msg.gen), zap.Int("current", r.timerGen))
					break
				}
				r.advancePhase()

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- r.view()

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	if r.closed {
		return
	}
	r.closed = true
	r.sched.Stop()
	r.cancel()
	r.cfg.Journal.Record(journal.Entry{RoomCode: r.code, Kind: journal.KindRoomClosed, At: r.cfg.Now()})
	r.log.Info("room closed")
}

func (r *Room) join(msg Join) ([]protocol.PlayerView, error) {
	if r.phase != engine.PhaseWaiting {
		return nil, ErrGameInProgress
	}
	if _, dup := r.members[msg.PlayerID]; dup {
		return nil, ErrDuplicatePlayer
	}

	r.players = append(r.players, &player{id: msg.PlayerID, username: msg.Username})
	r.members[msg.PlayerID] = msg.Outbox
	r.joined = append(r.joined, msg.PlayerID)
	if r.owner == "" {
		r.owner = msg.PlayerID
	}

	r.log.Info("player joined", zap.String("player", msg.PlayerID), zap.String("username", msg.Username), zap.Int("players", len(r.players)))
	r.sendTo(msg.PlayerID, protocol.Message{Event: protocol.EvtJoined, Data: protocol.Joined{Room: r.code}})
	r.broadcastRoster()
	return r.roster(), nil
}

func (r *Room) leave(id string) int {
	if _, ok := r.members[id]; !ok {
		return len(r.members)
	}

	delete(r.members, id)
	r.joined = slices.DeleteFunc(r.joined, func(m string) bool { return m == id })
	r.removePlayer(id)
	delete(r.votes, id)

	if r.owner == id {
		r.owner = ""
		if len(r.joined) > 0 {
			r.owner = r.joined[0]
		}
	}

	r.log.Info("player left", zap.String("player", id), zap.Int("remaining", len(r.members)))
	if len(r.members) == 0 {
		return 0
	}

	r.broadcastRoster()
	// A werewolf leaving may be the last vote the night was waiting on.
	r.resolveIfComplete()
	return len(r.members)
}

func (r *Room) startGame(msg StartGame) error {
	if r.phase != engine.PhaseWaiting {
		return ErrGameAlreadyStarted
	}
	if msg.PlayerID != r.owner {
		return ErrNotOwner
	}

	ids := r.playerIDs()
	if len(ids) < r.cfg.MinPlayers {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientPlayers, len(ids), r.cfg.MinPlayers)
	}

	comp := msg.Composition
	if len(comp) == 0 {
		comp = engine.DefaultComposition(len(ids))
	}
	if err := engine.CheckComposition(comp, len(ids)); err != nil {
		return err
	}
	roles, err := engine.Assign(ids, comp, r.cfg.Rand)
	if err != nil {
		return err
	}

	for _, p := range r.players {
		p.role = roles[p.id]
		r.sendTo(p.id, protocol.Message{Event: protocol.EvtRoleAssigned, Data: protocol.RoleAssigned{Role: p.role}})
	}
	r.broadcast(protocol.Message{Event: protocol.EvtGameStarted})
	r.cfg.Journal.Record(journal.Entry{RoomCode: r.code, Kind: journal.KindGameStarted, PlayerID: msg.PlayerID, Detail: describe(comp), At: r.cfg.Now()})
	r.log.Info("game started", zap.Int("players", len(ids)), zap.String("composition", describe(comp)))

	r.advancePhase()
	if err := r.armTimer(); err != nil {
		r.log.Error("phase timer not armed", zap.Error(err))
	}
	return nil
}

func (r *Room) armTimer() error {
	r.timerGen++
	gen := r.timerGen
	return r.sched.Start(r.ctx, func(ctx context.Context) {
		select {
		case r.inbox <- phaseTick{gen: gen}:
		case <-ctx.Done():
		}
	})
}

func (r *Room) advancePhase() {
	prev := r.phase
	r.phase = engine.NextPhase(prev)
	if prev == engine.PhaseNight {
		clear(r.votes)
	}
	r.nightResolved = false

	r.log.Debug("phase change", zap.String("from", string(prev)), zap.String("to", string(r.phase)))
	r.broadcast(protocol.Message{Event: protocol.EvtPhaseChange, Data: protocol.PhaseChange{Phase: r.phase}})
}

func (r *Room) lethalVote(msg LethalVote) error {
	if r.phase != engine.PhaseNight {
		return ErrWrongPhase
	}
	voter := r.findPlayer(msg.VoterID)
	if voter == nil || voter.role.NightAction != engine.NightActionLethal {
		return ErrNotInLethalGroup
	}
	if r.nightResolved {
		return ErrAlreadyResolved
	}

	// Targets outside the roster still count; they just cannot be killed.
	if r.findPlayer(msg.TargetID) == nil {
		r.log.Debug("vote for unknown target recorded", zap.String("voter", msg.VoterID), zap.String("target", msg.TargetID))
	}
	r.votes[msg.VoterID] = msg.TargetID
	r.resolveIfComplete()
	return nil
}

func (r *Room) resolveIfComplete() {
	if r.phase != engine.PhaseNight || r.nightResolved {
		return
	}
	group := r.lethalGroup()
	if !engine.LethalVotesComplete(r.votes, group) {
		return
	}

	ballots := make(map[string]string, len(group))
	for _, id := range group {
		ballots[id] = r.votes[id]
	}
	victim, ok := engine.TallyVotes(ballots, r.cfg.Rand)
	clear(r.votes)
	r.nightResolved = true
	if !ok {
		return
	}

	if !r.removePlayer(victim) {
		r.log.Warn("night victim is not in the roster", zap.String("victim", victim))
		return
	}
	r.log.Info("player killed", zap.String("victim", victim))
	r.broadcastRoster()
	r.broadcast(protocol.Message{Event: protocol.EvtPlayerKilled, Data: protocol.PlayerKilled{VictimID: victim}})
	r.cfg.Journal.Record(journal.Entry{RoomCode: r.code, Kind: journal.KindPlayerKilled, PlayerID: victim, At: r.cfg.Now()})
}

func (r *Room) reveal(msg RevealAction) error {
	if r.phase != engine.PhaseNight {
		return ErrWrongPhase
	}
	seer := r.findPlayer(msg.RequesterID)
	if seer == nil || seer.role.NightAction != engine.NightActionReveal {
		return ErrNotInRevealGroup
	}
	target := r.findPlayer(msg.TargetID)
	if target == nil {
		return ErrUnknownTarget
	}

	r.sendTo(seer.id, protocol.Message{Event: protocol.EvtVoyanteResult, Data: protocol.VoyanteResult{
		Player: target.username,
		Role:   target.role.Name,
	}})
	return nil
}

func (r *Room) findPlayer(id string) *player {
	for _, p := range r.players {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (r *Room) removePlayer(id string) bool {
	before := len(r.players)
	r.players = slices.DeleteFunc(r.players, func(p *player) bool { return p.id == id })
	return len(r.players) != before
}

func (r *Room) playerIDs() []string {
	ids := make([]string, 0, len(r.players))
	for _, p := range r.players {
		ids = append(ids, p.id)
	}
	return ids
}

func (r *Room) lethalGroup() []string {
	var ids []string
	for _, p := range r.players {
		if p.role.NightAction == engine.NightActionLethal {
			ids = append(ids, p.id)
		}
	}
	return ids
}

func (r *Room) roster() []protocol.PlayerView {
	out := make([]protocol.PlayerView, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, protocol.PlayerView{ID: p.id, Username: p.username})
	}
	return out
}

func (r *Room) broadcastRoster() {
	r.broadcast(protocol.Message{Event: protocol.EvtPlayersUpdate, Data: r.roster()})
}

func (r *Room) broadcast(m protocol.Message) {
	for id := range r.members {
		r.sendTo(id, m)
	}
}

func (r *Room) sendTo(id string, m protocol.Message) {
	out, ok := r.members[id]
	if !ok {
		return
	}
	select {
	case out <- m:
	default:
		// Client is slow/full - drop the message, never block the room.
		r.log.Warn("outbox full, message dropped", zap.String("player", id), zap.String("event", m.Event))
	}
}

// startErrorEvent sends validation failures as composition-error, anything
// else as a plain error.
func startErrorEvent(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientPlayers),
		errors.Is(err, engine.ErrInvalidComposition),
		errors.Is(err, engine.ErrUnknownRole):
		return protocol.EvtCompositionError
	default:
		return protocol.EvtError
	}
}

func (r *Room) sendError(id, event string, err error) {
	r.sendTo(id, protocol.Error(event, err))
}

func (r *Room) view() View {
	players := make([]PlayerState, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, PlayerState{ID: p.id, Username: p.username, Role: p.role})
	}
	return View{
		Code:         r.code,
		Owner:        r.owner,
		Phase:        r.phase,
		Players:      players,
		Members:      len(r.members),
		PendingVotes: maps.Clone(r.votes),
		TimerRunning: r.sched.Running(),
		TimerGen:     r.timerGen,
	}
}

// describe renders a composition in catalog order, e.g. "WEREWOLF=1 SEER=1".
func describe(c engine.Composition) string {
	parts := make([]string, 0, len(c))
	for _, role := range engine.Catalog {
		if n := c[role.ID]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", role.ID, n))
		}
	}
	return strings.Join(parts, " ")
}
