package messaging

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"lostfound-chat/internal/models"
	"lostfound-chat/internal/observability"
	"lostfound-chat/internal/repositories"
)

// Placeholders for counterparts without a usable profile.
const (
	UnknownUserName = "Unknown User"
	UnknownPhoto    = ""
)

// ProfileLookup resolves a user id to its public profile.
type ProfileLookup interface {
	GetProfile(ctx context.Context, uid string) (models.UserProfile, bool, error)
}

// ChatList keeps a user's list of chats enriched with counterpart profiles.
type ChatList struct {
	chats    repositories.ChatRepository
	profiles ProfileLookup
	logger   *zap.Logger
}

func NewChatList(chats repositories.ChatRepository, profiles ProfileLookup, logger *zap.Logger) *ChatList {
	return &ChatList{chats: chats, profiles: profiles, logger: logger}
}

// Subscribe calls onUpdate with the user's chats, most recently active first,
// after every change. Each list is delivered once all of its profile lookups
// have finished; a list resolved after a newer one was delivered is dropped.
// Calls to onUpdate never overlap.
func (l *ChatList) Subscribe(ctx context.Context, selfID string, onUpdate func([]models.ChatSummary)) (Unsubscribe, error) {
	lookupCtx, cancel := context.WithCancel(ctx)
	sub := &chatListSub{list: l, selfID: selfID, onUpdate: onUpdate, ctx: lookupCtx}

	stop, err := l.chats.SubscribeForUser(ctx, selfID, sub.handle)
	if err != nil {
		cancel()
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			sub.closed.Store(true)
			cancel()
			stop()
		})
	}, nil
}

// Snapshot returns the enriched list once.
func (l *ChatList) Snapshot(ctx context.Context, selfID string) ([]models.ChatSummary, error) {
	chats, err := l.chats.ChatsForUser(ctx, selfID)
	if err != nil {
		return nil, err
	}
	sortByActivity(chats)
	return l.enrich(ctx, selfID, chats), nil
}

func sortByActivity(chats []models.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].LastMessageTime.After(chats[j].LastMessageTime)
	})
}

func (l *ChatList) enrich(ctx context.Context, selfID string, chats []models.Chat) []models.ChatSummary {
	summaries := make([]models.ChatSummary, len(chats))
	var wg sync.WaitGroup
	for i, chat := range chats {
		wg.Add(1)
		go func(i int, chat models.Chat) {
			defer wg.Done()
			summaries[i] = l.summarize(ctx, selfID, chat)
		}(i, chat)
	}
	wg.Wait()
	return summaries
}

func (l *ChatList) summarize(ctx context.Context, selfID string, chat models.Chat) models.ChatSummary {
	summary := models.ChatSummary{
		Chat:           chat,
		OtherUserID:    chat.Counterpart(selfID),
		OtherUserName:  UnknownUserName,
		OtherUserPhoto: UnknownPhoto,
	}
	if summary.OtherUserID == "" {
		return summary
	}
	profile, found, err := l.profiles.GetProfile(ctx, summary.OtherUserID)
	// Subscription torn down mid-lookup.
	if ctx.Err() != nil {
		return summary
	}
	if err != nil {
		observability.IncEnrichmentFailure()
		l.logger.Warn("counterpart lookup failed", zap.Error(&EnrichmentError{ChatID: chat.ID, UserID: summary.OtherUserID, Err: err}))
		return summary
	}
	if !found {
		return summary
	}
	if profile.DisplayName != "" {
		summary.OtherUserName = profile.DisplayName
	}
	summary.OtherUserPhoto = profile.PhotoURL
	return summary
}

type chatListSub struct {
	list     *ChatList
	selfID   string
	onUpdate func([]models.ChatSummary)
	ctx      context.Context

	seq    atomic.Uint64
	closed atomic.Bool

	mu          sync.Mutex
	lastApplied uint64
}

// handle runs on the store's delivery goroutine. Enrichment happens off it so
// a slow lookup never holds back newer snapshots.
func (s *chatListSub) handle(chats []models.Chat, err error) {
	if err != nil {
		observability.IncSnapshot("chats", "failed")
		s.list.logger.Warn("chat list snapshot failed", zap.String("user_id", s.selfID), zap.Error(err))
		return
	}
	if s.closed.Load() {
		return
	}
	seq := s.seq.Add(1)
	go func() {
		summaries := s.list.enrich(s.ctx, s.selfID, chats)
		s.commit(seq, summaries)
	}()
}

func (s *chatListSub) commit(seq uint64, summaries []models.ChatSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	if seq <= s.lastApplied {
		observability.IncStaleSnapshot()
		s.list.logger.Debug("dropping stale chat list", zap.String("user_id", s.selfID), zap.Uint64("seq", seq), zap.Uint64("applied", s.lastApplied))
		return
	}
	s.lastApplied = seq
	observability.IncSnapshot("chats", "delivered")
	s.onUpdate(summaries)
}
