package roundservice

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	ledgerservice "github.com/Black-And-White-Club/lastword/app/modules/ledger/application"
	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	rounddb "github.com/Black-And-White-Club/lastword/app/modules/round/infrastructure/repositories"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"
)

// ------------------------
// Fake Round Repo
// ------------------------

// FakeRoundRepo is an in-memory store whose compare-and-transition has the
// same guard as the SQL one. The clock is the store clock.
type FakeRoundRepo struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	trace        []string
	templates    map[uuid.UUID]rounddomain.Template
	rounds       map[uuid.UUID]*rounddomain.Round
	participants map[uuid.UUID][]*rounddomain.Participant
	actions      map[uuid.UUID][]rounddomain.Action
	winners      map[uuid.UUID][]rounddomain.Winner
	seq          int64

	CompareAndTransitionFunc func(ctx context.Context, id uuid.UUID, expected, next rounddomain.Status) error
	ListRoundsNeedingWorkErr error
}

var _ rounddb.Repository = (*FakeRoundRepo)(nil)

func NewFakeRoundRepo(clock clockwork.Clock) *FakeRoundRepo {
	return &FakeRoundRepo{
		clock:        clock,
		templates:    map[uuid.UUID]rounddomain.Template{},
		rounds:       map[uuid.UUID]*rounddomain.Round{},
		participants: map[uuid.UUID][]*rounddomain.Participant{},
		actions:      map[uuid.UUID][]rounddomain.Action{},
		winners:      map[uuid.UUID][]rounddomain.Winner{},
	}
}

func (f *FakeRoundRepo) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeRoundRepo) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.trace)
}

func cloneRound(r *rounddomain.Round) *rounddomain.Round {
	c := *r
	c.PrizeDistribution = slices.Clone(r.PrizeDistribution)
	return &c
}

// Put stores a round as-is, bypassing validation.
func (f *FakeRoundRepo) Put(r *rounddomain.Round) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds[r.ID] = cloneRound(r)
}

// Round returns the stored copy.
func (f *FakeRoundRepo) Round(id uuid.UUID) *rounddomain.Round {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rounds[id]; ok {
		return cloneRound(r)
	}
	return nil
}

func (f *FakeRoundRepo) Now(ctx context.Context, db bun.IDB) (time.Time, error) {
	return f.clock.Now().UTC(), nil
}

func (f *FakeRoundRepo) CreateTemplate(ctx context.Context, db bun.IDB, t *rounddomain.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateTemplate")
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = f.clock.Now()
	f.templates[t.ID] = *t
	return nil
}

func (f *FakeRoundRepo) GetTemplate(ctx context.Context, db bun.IDB, id uuid.UUID) (*rounddomain.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetTemplate")
	t, ok := f.templates[id]
	if !ok {
		return nil, rounddb.ErrTemplateNotFound
	}
	return &t, nil
}

func (f *FakeRoundRepo) CreateRound(ctx context.Context, db bun.IDB, r *rounddomain.Round) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateRound")
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.PredecessorID != nil {
		for _, existing := range f.rounds {
			if existing.PredecessorID != nil && *existing.PredecessorID == *r.PredecessorID {
				return rounddb.ErrDuplicateSuccessor
			}
		}
	}
	r.CreatedAt = f.clock.Now()
	r.UpdatedAt = r.CreatedAt
	f.rounds[r.ID] = cloneRound(r)
	return nil
}

func (f *FakeRoundRepo) GetRound(ctx context.Context, db bun.IDB, id uuid.UUID) (*rounddomain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRound")
	r, ok := f.rounds[id]
	if !ok {
		return nil, rounddb.ErrNotFound
	}
	return cloneRound(r), nil
}

func (f *FakeRoundRepo) GetRoundForUpdate(ctx context.Context, db bun.IDB, id uuid.UUID) (*rounddomain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRoundForUpdate")
	r, ok := f.rounds[id]
	if !ok {
		return nil, rounddb.ErrNotFound
	}
	return cloneRound(r), nil
}

func (f *FakeRoundRepo) CompareAndTransition(ctx context.Context, db bun.IDB, id uuid.UUID, expected, next rounddomain.Status, fields rounddomain.TransitionFields) (*rounddomain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("CompareAndTransition:%s->%s", expected, next))
	if f.CompareAndTransitionFunc != nil {
		if err := f.CompareAndTransitionFunc(ctx, id, expected, next); err != nil {
			return nil, err
		}
	}
	if !rounddomain.CanTransition(expected, next) {
		return nil, rounddb.ErrTransitionConflict
	}
	r, ok := f.rounds[id]
	if !ok || r.Status != expected {
		return nil, rounddb.ErrTransitionConflict
	}
	if fields.ResetCount != nil && r.ResetCount != *fields.ResetCount-1 {
		return nil, rounddb.ErrTransitionConflict
	}
	rounddomain.Step{To: next, Fields: fields}.Apply(r)
	r.UpdatedAt = f.clock.Now()
	return cloneRound(r), nil
}

func (f *FakeRoundRepo) adjust(id uuid.UUID, count int, fee int64) (*rounddomain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AdjustParticipants")
	r, ok := f.rounds[id]
	if !ok || (r.Status != rounddomain.StatusWaiting && r.Status != rounddomain.StatusOpening) {
		return nil, rounddb.ErrNoRowsAffected
	}
	if r.ParticipantCount+count < 0 || r.PoolValue+fee < 0 {
		return nil, rounddb.ErrNoRowsAffected
	}
	r.ParticipantCount += count
	r.PoolValue += fee
	r.UpdatedAt = f.clock.Now()
	return cloneRound(r), nil
}

func (f *FakeRoundRepo) IncrementParticipant(ctx context.Context, db bun.IDB, id uuid.UUID, feeDelta int64) (*rounddomain.Round, error) {
	return f.adjust(id, 1, feeDelta)
}

func (f *FakeRoundRepo) DecrementParticipant(ctx context.Context, db bun.IDB, id uuid.UUID, feeDelta int64) (*rounddomain.Round, error) {
	return f.adjust(id, -1, -feeDelta)
}

func (f *FakeRoundRepo) AddParticipant(ctx context.Context, db bun.IDB, p *rounddomain.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddParticipant")
	for _, existing := range f.participants[p.RoundID] {
		if existing.UserID == p.UserID {
			return rounddb.ErrAlreadyJoined
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	c := *p
	f.participants[p.RoundID] = append(f.participants[p.RoundID], &c)
	return nil
}

func (f *FakeRoundRepo) GetParticipant(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string) (*rounddomain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetParticipant")
	for _, p := range f.participants[roundID] {
		if p.UserID == userID {
			c := *p
			return &c, nil
		}
	}
	return nil, rounddb.ErrParticipantNotFound
}

func (f *FakeRoundRepo) RemoveParticipant(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RemoveParticipant")
	list := f.participants[roundID]
	for i, p := range list {
		if p.UserID == userID {
			f.participants[roundID] = slices.Delete(list, i, i+1)
			return nil
		}
	}
	return rounddb.ErrParticipantNotFound
}

func (f *FakeRoundRepo) UpgradeSpectator(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, paid int64) (*rounddomain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpgradeSpectator")
	for _, p := range f.participants[roundID] {
		if p.UserID == userID && p.Spectator {
			p.Spectator = false
			p.PaidAmount = paid
			p.RefundEligible = paid > 0
			c := *p
			return &c, nil
		}
	}
	return nil, rounddb.ErrNoRowsAffected
}

func (f *FakeRoundRepo) ListParticipants(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]*rounddomain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListParticipants")
	out := make([]*rounddomain.Participant, 0, len(f.participants[roundID]))
	for _, p := range f.participants[roundID] {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (f *FakeRoundRepo) MarkRefunded(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkRefunded")
	for _, p := range f.participants[roundID] {
		if p.UserID == userID && p.RefundedAt == nil {
			ts := at
			p.RefundedAt = &ts
		}
	}
	return nil
}

func (f *FakeRoundRepo) AppendAction(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID, body string) (*rounddomain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AppendAction")
	f.seq++
	a := rounddomain.Action{Seq: f.seq, RoundID: roundID, UserID: userID, Body: body, ActedAt: f.clock.Now().UTC()}
	f.actions[roundID] = append(f.actions[roundID], a)
	return &a, nil
}

func (f *FakeRoundRepo) ListActions(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]rounddomain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListActions")
	return slices.Clone(f.actions[roundID]), nil
}

func (f *FakeRoundRepo) TouchActivity(ctx context.Context, db bun.IDB, roundID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TouchActivity")
	r, ok := f.rounds[roundID]
	if !ok || !r.Status.IsLive() {
		return rounddb.ErrNoRowsAffected
	}
	if r.ActivityAnchorAt == nil || at.After(*r.ActivityAnchorAt) {
		ts := at
		r.ActivityAnchorAt = &ts
	}
	return nil
}

func (f *FakeRoundRepo) ListRoundsNeedingWork(ctx context.Context, db bun.IDB, now time.Time, endingWarning time.Duration, limit int) ([]*rounddomain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListRoundsNeedingWork")
	if f.ListRoundsNeedingWorkErr != nil {
		return nil, f.ListRoundsNeedingWorkErr
	}
	cfg := rounddomain.LifecycleConfig{EndingWarning: endingWarning}
	var out []*rounddomain.Round
	for _, r := range f.rounds {
		at, ok := rounddomain.NextTimerAt(r, cfg)
		if ok && !now.Before(at) {
			out = append(out, cloneRound(r))
		}
	}
	slices.SortFunc(out, func(a, b *rounddomain.Round) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeRoundRepo) ListUnscheduledSuccessors(ctx context.Context, db bun.IDB, limit int) ([]*rounddomain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListUnscheduledSuccessors")
	var out []*rounddomain.Round
	for _, r := range f.rounds {
		if !r.Status.IsTerminal() || !r.RecurrenceType.Recurs() {
			continue
		}
		if t, ok := f.templates[r.TemplateID]; !ok || !t.Active {
			continue
		}
		blocked := false
		for _, o := range f.rounds {
			if o.PredecessorID != nil && *o.PredecessorID == r.ID {
				blocked = true
			}
			if o.TemplateID == r.TemplateID && !o.Status.IsTerminal() {
				blocked = true
			}
		}
		if !blocked {
			out = append(out, cloneRound(r))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeRoundRepo) ListActiveRounds(ctx context.Context, db bun.IDB) ([]*rounddomain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListActiveRounds")
	var out []*rounddomain.Round
	for _, r := range f.rounds {
		if !r.Status.IsTerminal() {
			out = append(out, cloneRound(r))
		}
	}
	slices.SortFunc(out, func(a, b *rounddomain.Round) int { return a.LiveStartAt.Compare(b.LiveStartAt) })
	return out, nil
}

func (f *FakeRoundRepo) FindOpenSuccessor(ctx context.Context, db bun.IDB, templateID uuid.UUID) (*rounddomain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindOpenSuccessor")
	for _, r := range f.rounds {
		if r.TemplateID == templateID && !r.Status.IsTerminal() {
			return cloneRound(r), nil
		}
	}
	return nil, rounddb.ErrNotFound
}

func (f *FakeRoundRepo) InsertWinners(ctx context.Context, db bun.IDB, winners []rounddomain.Winner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InsertWinners")
	if len(winners) == 0 {
		return nil
	}
	id := winners[0].RoundID
	if len(f.winners[id]) > 0 {
		return fmt.Errorf("duplicate winners for round %s", id)
	}
	f.winners[id] = slices.Clone(winners)
	return nil
}

func (f *FakeRoundRepo) ListWinners(ctx context.Context, db bun.IDB, roundID uuid.UUID) ([]rounddomain.Winner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListWinners")
	return slices.Clone(f.winners[roundID]), nil
}

// ------------------------
// Fake Wallet
// ------------------------

type walletLine struct {
	RoundID uuid.UUID
	UserID  string
	Kind    string
	Amount  int64
	Key     string
}

// FakeWallet keeps balances and honours idempotency keys.
type FakeWallet struct {
	mu       sync.Mutex
	lines    []walletLine
	keys     map[string]bool
	balances map[string]int64
	// Strict rejects debits that exceed the balance.
	Strict bool

	CreditFunc func(userID, kind string, amount int64) error
}

var _ Wallet = (*FakeWallet)(nil)

func NewFakeWallet() *FakeWallet {
	return &FakeWallet{keys: map[string]bool{}, balances: map[string]int64{}}
}

func (w *FakeWallet) Fund(userID string, amount int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] += amount
}

func (w *FakeWallet) Debit(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID string, amount int64, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.keys[key] {
		return nil
	}
	if w.Strict && w.balances[userID] < amount {
		return ledgerservice.ErrInsufficientFunds
	}
	w.keys[key] = true
	w.balances[userID] -= amount
	w.lines = append(w.lines, walletLine{RoundID: roundID, UserID: userID, Kind: "entry_fee", Amount: -amount, Key: key})
	return nil
}

func (w *FakeWallet) Credit(ctx context.Context, db bun.IDB, roundID uuid.UUID, userID, kind string, amount int64, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.CreditFunc != nil {
		if err := w.CreditFunc(userID, kind, amount); err != nil {
			return err
		}
	}
	if w.keys[key] {
		return nil
	}
	w.keys[key] = true
	w.balances[userID] += amount
	w.lines = append(w.lines, walletLine{RoundID: roundID, UserID: userID, Kind: kind, Amount: amount, Key: key})
	return nil
}

func (w *FakeWallet) Lines(kind string) []walletLine {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []walletLine
	for _, l := range w.lines {
		if kind == "" || l.Kind == kind {
			out = append(out, l)
		}
	}
	return out
}

func (w *FakeWallet) Balance(userID string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID]
}

// ------------------------
// Fake Identity, Audit, Notifier, Scheduler
// ------------------------

type FakeIdentity struct {
	mu     sync.Mutex
	played map[string]int
	wins   map[string]int
	points map[string]int
}

var _ Identity = (*FakeIdentity)(nil)

func NewFakeIdentity() *FakeIdentity {
	return &FakeIdentity{played: map[string]int{}, wins: map[string]int{}, points: map[string]int{}}
}

func (f *FakeIdentity) RecordGamesPlayed(ctx context.Context, db bun.IDB, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range userIDs {
		f.played[id]++
	}
	return nil
}

func (f *FakeIdentity) RecordWin(ctx context.Context, db bun.IDB, userID string, rankPoints int, prize int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wins[userID]++
	f.points[userID] += rankPoints
	return nil
}

type auditLine struct {
	RoundID  uuid.UUID
	Step     string
	From, To string
	Actor    string
}

type FakeAudit struct {
	mu    sync.Mutex
	lines []auditLine
}

var _ AuditLog = (*FakeAudit)(nil)

func (f *FakeAudit) RecordTransition(ctx context.Context, db bun.IDB, roundID uuid.UUID, step, from, to, actor string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, auditLine{RoundID: roundID, Step: step, From: from, To: to, Actor: actor})
	return nil
}

func (f *FakeAudit) Steps(roundID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, l := range f.lines {
		if l.RoundID == roundID {
			out = append(out, l.Step)
		}
	}
	return out
}

type FakeNotifier struct {
	mu       sync.Mutex
	payloads []roundevents.RoundChangedPayloadV1
}

var _ Notifier = (*FakeNotifier)(nil)

func (f *FakeNotifier) Publish(ctx context.Context, change roundevents.RoundChangedPayloadV1) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, change)
	return nil
}

func (f *FakeNotifier) Causes(roundID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.payloads {
		if p.RoundID == roundID {
			out = append(out, p.Cause)
		}
	}
	return out
}

type FakeScheduler struct {
	mu        sync.Mutex
	scheduled []uuid.UUID
}

var _ TransitionScheduler = (*FakeScheduler)(nil)

func (f *FakeScheduler) ScheduleNext(ctx context.Context, r *rounddomain.Round) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, r.ID)
	return nil
}

// PutAction appends an action stamped at a chosen instant.
func (f *FakeRoundRepo) PutAction(roundID uuid.UUID, userID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.actions[roundID] = append(f.actions[roundID], rounddomain.Action{Seq: f.seq, RoundID: roundID, UserID: userID, Body: "mine", ActedAt: at})
}

// Successors returns rounds spawned from predecessorID.
func (f *FakeRoundRepo) Successors(predecessorID uuid.UUID) []*rounddomain.Round {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*rounddomain.Round
	for _, r := range f.rounds {
		if r.PredecessorID != nil && *r.PredecessorID == predecessorID {
			out = append(out, cloneRound(r))
		}
	}
	return out
}

func (f *FakeRoundRepo) Participants(roundID uuid.UUID) []*rounddomain.Participant {
	out, _ := f.ListParticipants(context.Background(), nil, roundID)
	return out
}
