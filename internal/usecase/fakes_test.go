package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	"github.com/ArsPalazzz/memora-api-sub000/internal/repository"
)

type cardVariants struct {
	front []string
	back  []string
}

type fakeGameRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.GameSession
	cards    []domain.SessionCard
	variants map[string]cardVariants
	nextID   int64

	insertErr  error
	loseAnswer bool
}

func newFakeGameRepository() *fakeGameRepository {
	return &fakeGameRepository{
		sessions: make(map[string]*domain.GameSession),
		variants: make(map[string]cardVariants),
	}
}

func (f *fakeGameRepository) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions := make(map[string]*domain.GameSession, len(f.sessions))
	for k, v := range f.sessions {
		copy := *v
		sessions[k] = &copy
	}
	cards := append([]domain.SessionCard(nil), f.cards...)
	nextID := f.nextID
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sessions = sessions
		f.cards = cards
		f.nextID = nextID
	}
}

func (f *fakeGameRepository) CreateSession(ctx context.Context, session domain.GameSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := session
	f.sessions[session.Sub] = &copy
	return nil
}

func (f *fakeGameRepository) GetSession(ctx context.Context, sessionSub string) (*domain.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionSub]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *session
	return &copy, nil
}

func (f *fakeGameRepository) InsertSessionCards(ctx context.Context, sessionSub string, cards []domain.NewSessionCard) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, card := range cards {
		f.nextID++
		v := f.variants[card.CardSub]
		f.cards = append(f.cards, domain.SessionCard{
			ID:            f.nextID,
			SessionSub:    sessionSub,
			CardSub:       card.CardSub,
			Position:      int(f.nextID),
			Direction:     card.Direction,
			FrontVariants: v.front,
			BackVariants:  v.back,
		})
	}
	return nil
}

func (f *fakeGameRepository) sessionCards(sessionSub string) []domain.SessionCard {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SessionCard
	for _, card := range f.cards {
		if card.SessionSub == sessionSub {
			out = append(out, card)
		}
	}
	return out
}

func (f *fakeGameRepository) GetNextUnansweredCard(ctx context.Context, sessionSub, userSub string) (*domain.SessionCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionSub]
	if !ok || session.UserSub != userSub {
		return nil, repository.ErrNotFound
	}
	for _, card := range f.cards {
		if card.SessionSub == sessionSub && card.AnsweredAt == nil {
			copy := card
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeGameRepository) AnswerCard(ctx context.Context, cardID int64, answer string, isCorrect bool, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loseAnswer {
		return false, nil
	}
	for i := range f.cards {
		if f.cards[i].ID != cardID {
			continue
		}
		if f.cards[i].AnsweredAt != nil {
			return false, nil
		}
		a, c, t := answer, isCorrect, at
		f.cards[i].Answer = &a
		f.cards[i].IsCorrect = &c
		f.cards[i].AnsweredAt = &t
		return true, nil
	}
	return false, nil
}

func (f *fakeGameRepository) GetLastAnsweredCard(ctx context.Context, sessionSub string) (*domain.SessionCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *domain.SessionCard
	for i := range f.cards {
		card := f.cards[i]
		if card.SessionSub != sessionSub || card.AnsweredAt == nil {
			continue
		}
		if last == nil || !card.AnsweredAt.Before(*last.AnsweredAt) {
			copy := card
			last = &copy
		}
	}
	if last == nil {
		return nil, repository.ErrNotFound
	}
	return last, nil
}

func (f *fakeGameRepository) CountUnansweredCards(ctx context.Context, sessionSub string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, card := range f.cards {
		if card.SessionSub == sessionSub && card.AnsweredAt == nil {
			count++
		}
	}
	return count, nil
}

func (f *fakeGameRepository) TouchSession(ctx context.Context, sessionSub string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[sessionSub]; ok {
		session.LastActivityAt = at
	}
	return nil
}

func (f *fakeGameRepository) FinishSession(ctx context.Context, sessionSub string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionSub]
	if !ok || session.Status != domain.SessionStatusActive {
		return false, nil
	}
	finishedAt := at
	session.Status = domain.SessionStatusFinished
	session.FinishedAt = &finishedAt
	return true, nil
}

func (f *fakeGameRepository) GetSessionSummary(ctx context.Context, sessionSub string) (*domain.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionSub]
	if !ok {
		return nil, repository.ErrNotFound
	}
	summary := &domain.SessionSummary{SessionSub: sessionSub, Status: session.Status, FinishedAt: session.FinishedAt}
	for _, card := range f.cards {
		if card.SessionSub != sessionSub {
			continue
		}
		summary.Total++
		if card.AnsweredAt != nil {
			summary.Answered++
		}
		if card.IsCorrect != nil && *card.IsCorrect {
			summary.Correct++
		}
	}
	return summary, nil
}

func (f *fakeGameRepository) AbortStaleSessions(ctx context.Context, inactiveSince time.Time, at time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, session := range f.sessions {
		if session.Status == domain.SessionStatusActive && session.LastActivityAt.Before(inactiveSince) {
			finishedAt := at
			session.Status = domain.SessionStatusAborted
			session.FinishedAt = &finishedAt
			count++
		}
	}
	return count, nil
}

type srsCall struct {
	userSub string
	cardSub string
	quality int
}

type fakeCardRepository struct {
	mu             sync.Mutex
	desks          map[string]domain.DeskSettings
	deskCards      map[string][]string
	lastPlayed     map[string]time.Time
	due            []domain.DueUser
	dueErr         error
	dueMinSeen     int
	reviewSettings map[string]domain.ReviewSettings
	settingsErr    error
	srs            map[string]domain.SrsState
	srsCalls       []srsCall
}

func newFakeCardRepository() *fakeCardRepository {
	return &fakeCardRepository{
		desks:          make(map[string]domain.DeskSettings),
		deskCards:      make(map[string][]string),
		lastPlayed:     make(map[string]time.Time),
		reviewSettings: make(map[string]domain.ReviewSettings),
		srs:            make(map[string]domain.SrsState),
	}
}

func (f *fakeCardRepository) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	lastPlayed := make(map[string]time.Time, len(f.lastPlayed))
	for k, v := range f.lastPlayed {
		lastPlayed[k] = v
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastPlayed = lastPlayed
	}
}

func (f *fakeCardRepository) DeskExists(ctx context.Context, deskSub string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.desks[deskSub]
	return ok, nil
}

func (f *fakeCardRepository) GetDeskSettings(ctx context.Context, deskSub string) (*domain.DeskSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings, ok := f.desks[deskSub]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &settings, nil
}

func (f *fakeCardRepository) GetCardSubsForPlay(ctx context.Context, deskSub string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cards := f.deskCards[deskSub]
	if len(cards) > limit {
		cards = cards[:limit]
	}
	return append([]string(nil), cards...), nil
}

func (f *fakeCardRepository) UpdateLastTimePlayedDesk(ctx context.Context, deskSub string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPlayed[deskSub] = at
	return nil
}

func (f *fakeCardRepository) GetUsersWithDueCards(ctx context.Context, minDue int, at time.Time) ([]domain.DueUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dueMinSeen = minDue
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	var out []domain.DueUser
	for _, user := range f.due {
		if user.DueCount >= minDue {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fakeCardRepository) GetReviewSettingsByUserSub(ctx context.Context, userSub string) (*domain.ReviewSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	settings, ok := f.reviewSettings[userSub]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &settings, nil
}

func (f *fakeCardRepository) UpdateSrs(ctx context.Context, userSub, cardSub string, quality int, at time.Time) (*domain.SrsState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.srsCalls = append(f.srsCalls, srsCall{userSub: userSub, cardSub: cardSub, quality: quality})
	key := userSub + "/" + cardSub
	state, ok := f.srs[key]
	if !ok {
		state = domain.NewSrsState(userSub, cardSub, at)
	}
	next := domain.NextSrsState(state, quality, at)
	f.srs[key] = next
	return &next, nil
}

type fakeNotificationRepository struct {
	mu         sync.Mutex
	batches    []domain.ReviewBatch
	batchCards map[string][]string
	dueCards   map[string][]string
	createErr  error
	addErr     error
	markErr    error
}

func newFakeNotificationRepository() *fakeNotificationRepository {
	return &fakeNotificationRepository{
		batchCards: make(map[string][]string),
		dueCards:   make(map[string][]string),
	}
}

func (f *fakeNotificationRepository) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	batches := append([]domain.ReviewBatch(nil), f.batches...)
	batchCards := make(map[string][]string, len(f.batchCards))
	for k, v := range f.batchCards {
		batchCards[k] = v
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.batches = batches
		f.batchCards = batchCards
	}
}

func (f *fakeNotificationRepository) ExistRecentBatch(ctx context.Context, userSub string, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasRecentLocked(userSub, since), nil
}

func (f *fakeNotificationRepository) hasRecentLocked(userSub string, since time.Time) bool {
	for _, batch := range f.batches {
		if batch.UserSub == userSub && batch.CreatedAt.After(since) {
			return true
		}
	}
	return false
}

func (f *fakeNotificationRepository) CreateBatch(ctx context.Context, batch domain.ReviewBatch, since time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.hasRecentLocked(batch.UserSub, since) {
		return repository.ErrConflict
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeNotificationRepository) AddCardsToBatch(ctx context.Context, batchSub, userSub string, limit int, at time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		err := f.addErr
		f.addErr = nil
		return 0, err
	}
	due := f.dueCards[userSub]
	if len(due) > limit {
		due = due[:limit]
	}
	f.batchCards[batchSub] = append([]string(nil), due...)
	return len(due), nil
}

func (f *fakeNotificationRepository) MarkBatchAsNotified(ctx context.Context, batchSub string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	for i := range f.batches {
		if f.batches[i].Sub == batchSub {
			notifiedAt := at
			f.batches[i].NotifiedAt = &notifiedAt
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeNotificationRepository) GetBatch(ctx context.Context, batchSub string) (*domain.ReviewBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, batch := range f.batches {
		if batch.Sub == batchSub {
			copy := batch
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeNotificationRepository) ListBatchCardSubs(ctx context.Context, batchSub string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.batchCards[batchSub]...), nil
}

func (f *fakeNotificationRepository) userBatches(userSub string) []domain.ReviewBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ReviewBatch
	for _, batch := range f.batches {
		if batch.UserSub == userSub {
			out = append(out, batch)
		}
	}
	return out
}

type fakeTokenRepository struct {
	mu            sync.Mutex
	tokens        []*domain.FcmToken
	nextID        int64
	deactivateErr error
}

func newFakeTokenRepository(tokens ...domain.FcmToken) *fakeTokenRepository {
	repo := &fakeTokenRepository{}
	for i := range tokens {
		token := tokens[i]
		repo.nextID++
		token.ID = repo.nextID
		repo.tokens = append(repo.tokens, &token)
	}
	return repo
}

func (f *fakeTokenRepository) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens := make([]*domain.FcmToken, 0, len(f.tokens))
	for _, token := range f.tokens {
		copy := *token
		tokens = append(tokens, &copy)
	}
	nextID := f.nextID
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tokens = tokens
		f.nextID = nextID
	}
}

func (f *fakeTokenRepository) UpsertToken(ctx context.Context, token domain.FcmToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tokens {
		if existing.Token == token.Token {
			existing.UserSub = token.UserSub
			existing.DeviceInfo = token.DeviceInfo
			existing.Platform = token.Platform
			existing.IsActive = true
			existing.UpdatedAt = token.UpdatedAt
			existing.DeactivatedAt = nil
			existing.DeactivationReason = nil
			return nil
		}
	}
	f.nextID++
	token.ID = f.nextID
	f.tokens = append(f.tokens, &token)
	return nil
}

func (f *fakeTokenRepository) GetActiveFcmTokens(ctx context.Context, userSub string) ([]domain.FcmToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.FcmToken
	for _, token := range f.tokens {
		if token.UserSub == userSub && token.IsActive {
			out = append(out, *token)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (f *fakeTokenRepository) DeactivateToken(ctx context.Context, token, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deactivateErr != nil {
		return f.deactivateErr
	}
	for _, existing := range f.tokens {
		if existing.Token == token {
			r, t := reason, at
			existing.IsActive = false
			existing.DeactivationReason = &r
			existing.DeactivatedAt = &t
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeTokenRepository) GetToken(ctx context.Context, token string) (*domain.FcmToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tokens {
		if existing.Token == token {
			copy := *existing
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTokenRepository) get(token string) domain.FcmToken {
	found, _ := f.GetToken(context.Background(), token)
	if found == nil {
		return domain.FcmToken{}
	}
	return *found
}

// fakeTransactor restores repository snapshots when fn fails.
type fakeTransactor struct {
	games   *fakeGameRepository
	cards   *fakeCardRepository
	batches *fakeNotificationRepository
	tokens  *fakeTokenRepository
	calls   int
}

func (f *fakeTransactor) WithinTx(ctx context.Context, fn func(repos port.TxRepositories) error) error {
	f.calls++
	var restores []func()
	repos := port.TxRepositories{}
	if f.games != nil {
		restores = append(restores, f.games.snapshot())
		repos.Games = f.games
	}
	if f.cards != nil {
		restores = append(restores, f.cards.snapshot())
		repos.Cards = f.cards
	}
	if f.batches != nil {
		restores = append(restores, f.batches.snapshot())
		repos.Notifications = f.batches
	}
	if f.tokens != nil {
		restores = append(restores, f.tokens.snapshot())
		repos.Tokens = f.tokens
	}
	if err := fn(repos); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

type fakePushSender struct {
	mu       sync.Mutex
	results  map[string]domain.PushResult
	calls    []string
	messages []domain.PushMessage
}

func (f *fakePushSender) Send(ctx context.Context, token string, msg domain.PushMessage) domain.PushResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, token)
	f.messages = append(f.messages, msg)
	if res, ok := f.results[token]; ok {
		return res
	}
	return domain.PushResult{Token: token, Success: true, MessageID: "msg-" + token}
}

type fakeEventPublisher struct {
	mu          sync.Mutex
	finished    []domain.GameSessionFinishedEvent
	notified    []domain.ReviewBatchNotifiedEvent
	deactivated []domain.FcmTokenDeactivatedEvent
	err         error
}

func (f *fakeEventPublisher) PublishGameSessionFinished(ctx context.Context, event domain.GameSessionFinishedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, event)
	return f.err
}

func (f *fakeEventPublisher) PublishReviewBatchNotified(ctx context.Context, event domain.ReviewBatchNotifiedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, event)
	return f.err
}

func (f *fakeEventPublisher) PublishFcmTokenDeactivated(ctx context.Context, event domain.FcmTokenDeactivatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, event)
	return f.err
}

// steppingClock returns a clock advancing by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(step)
		return now
	}
}
