package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"helpdesk/api/internal/config"
	"helpdesk/api/internal/events"
	"helpdesk/api/internal/initdata"
	"helpdesk/api/internal/notify"
	"helpdesk/api/internal/ratelimit"
	"helpdesk/api/internal/search"
	"helpdesk/api/internal/store"
)

// dataStore is the persistence surface the coordinator needs. The
// concrete implementation is store.PostgresStore; tests substitute a fake.
type dataStore interface {
	CreateRequest(context.Context, store.Request) (int64, error)
	ListActiveRequests(context.Context) ([]store.Request, error)
	SoftDeleteRequest(context.Context, int64) error
	SoftDeleteRequestsByChat(context.Context, string) ([]int64, error)
	RequestChatID(context.Context, int64) (string, error)
	InsertReply(context.Context, int64, string, string) (int64, error)
	ListRepliesForChat(context.Context, string) ([]store.Reply, error)
	Ping(context.Context) error
}

type notifier interface {
	Send(chatID, text string, buttons []notify.Button) notify.Result
}

// searchIndex is the secondary-index surface the coordinator maintains
// alongside the store. The concrete implementation is search.Service;
// tests substitute a fake.
type searchIndex interface {
	Search(ctx context.Context, q string, limit int) []search.Record
	IndexRequest(rec search.Record)
	RemoveRequest(id int64)
}

// Service coordinates the request lifecycle: persistence first, then
// best-effort notification and fan-out. Notification never runs inside or
// ahead of a store write, so a slow or failed delivery can neither block
// nor roll back persisted state.
type Service struct {
	cfg      config.Config
	store    dataStore
	notifier notifier
	limiter  *ratelimit.Limiter
	search   searchIndex
	events   *events.Publisher
}

// New wires a Service. limiter, searchSvc and pub may each be nil when
// the corresponding backend is not configured.
func New(cfg config.Config, st dataStore, n notifier, limiter *ratelimit.Limiter, searchSvc searchIndex, pub *events.Publisher) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		notifier: n,
		limiter:  limiter,
		search:   searchSvc,
		events:   pub,
	}
}

// SubmitInput is the loosely-typed field bag accepted from the chat
// front-end. Every field is optional free text; missing values become
// empty strings rather than nulls.
type SubmitInput struct {
	User         string `json:"user"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
	Branch       string `json:"branch"`
	Device       string `json:"device"`
	Problem      string `json:"problem"`
	Comment      string `json:"comment"`
	ChatID       string `json:"chat_id"`
}

// SubmitRequest persists a submission and acknowledges it to the
// originating chat. The returned notify.Result is diagnostic only: the
// submission has succeeded once the id is assigned, whatever the
// acknowledgment outcome.
func (s *Service) SubmitRequest(ctx context.Context, input SubmitInput) (int64, notify.Result, error) {
	chatID := strings.TrimSpace(input.ChatID)
	if !s.limiter.Allow(ctx, chatID) {
		return 0, notify.Result{}, domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many submissions from this chat", nil)
	}

	id, err := s.store.CreateRequest(ctx, store.Request{
		Submitter:    input.User,
		Phone:        input.Phone,
		Email:        input.Email,
		Organization: input.Organization,
		Branch:       input.Branch,
		Device:       input.Device,
		Problem:      input.Problem,
		Comment:      input.Comment,
		ChatID:       chatID,
	})
	if err != nil {
		return 0, notify.Result{}, fmt.Errorf("create request: %w", err)
	}

	result := notify.Result{Outcome: notify.Unconfigured}
	if chatID != "" {
		result = s.notifier.Send(chatID, fmt.Sprintf("Your request #%d has been received. Support will reply in this chat.", id), nil)
		if result.Err != nil {
			log.Printf("notify: submission ack for request %d: %v", id, result.Err)
		}
	}

	if s.search != nil {
		s.search.IndexRequest(search.Record{
			ID:           id,
			Submitter:    strings.TrimSpace(input.User),
			Organization: strings.TrimSpace(input.Organization),
			Branch:       strings.TrimSpace(input.Branch),
			Problem:      strings.TrimSpace(input.Problem),
			Comment:      strings.TrimSpace(input.Comment),
		})
	}
	s.events.Publish(ctx, events.KeyRequestSubmitted, map[string]any{"request_id": id, "chat_id": chatID})

	return id, result, nil
}

// ListActive returns all non-deleted requests, newest first.
func (s *Service) ListActive(ctx context.Context) ([]store.Request, error) {
	items, err := s.store.ListActiveRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return items, nil
}

// ReplyToRequest records an operator reply against a request and relays
// it to the originating chat. The reply is durable once recorded; the
// relay outcome is reported for diagnostics and never fails the call.
func (s *Service) ReplyToRequest(ctx context.Context, requestID int64, text, operator string) (notify.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return notify.Result{}, validationError("reply text is required")
	}

	chatID, err := s.store.RequestChatID(ctx, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return notify.Result{}, notFoundError("request not found")
	}
	if err != nil {
		return notify.Result{}, fmt.Errorf("resolve request chat: %w", err)
	}
	// A request stored without a chat identity has no delivery target;
	// the original front-end treats that the same as an absent request.
	if chatID == "" {
		return notify.Result{}, notFoundError("request has no chat identity")
	}

	if _, err := s.store.InsertReply(ctx, requestID, chatID, text); err != nil {
		return notify.Result{}, fmt.Errorf("insert reply: %w", err)
	}

	message := text
	if operator = strings.TrimSpace(operator); operator != "" {
		message = operator + ":\n" + text
	}
	result := s.notifier.Send(chatID, message, nil)
	if result.Err != nil {
		log.Printf("notify: reply for request %d: %v", requestID, result.Err)
	}

	s.events.Publish(ctx, events.KeyReplyRecorded, map[string]any{"request_id": requestID, "chat_id": chatID})

	return result, nil
}

// ListAnswers returns every reply addressed to a chat identity, most
// recent first. Replies survive deletion of their request.
func (s *Service) ListAnswers(ctx context.Context, chatID string) ([]store.Reply, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, domainError(http.StatusBadRequest, "INVALID_QUERY", "chat_id is required", nil)
	}
	items, err := s.store.ListRepliesForChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return items, nil
}

// DeleteRequest soft-deletes by primary id when one is supplied,
// otherwise by chat identity. Idempotent either way: deleting an absent
// or already-deleted request succeeds. Recorded replies are untouched.
func (s *Service) DeleteRequest(ctx context.Context, id int64, chatID string) error {
	chatID = strings.TrimSpace(chatID)
	switch {
	case id > 0:
		if err := s.store.SoftDeleteRequest(ctx, id); err != nil {
			return fmt.Errorf("delete request: %w", err)
		}
		if s.search != nil {
			s.search.RemoveRequest(id)
		}
	case chatID != "":
		deleted, err := s.store.SoftDeleteRequestsByChat(ctx, chatID)
		if err != nil {
			return fmt.Errorf("delete requests for chat: %w", err)
		}
		if s.search != nil {
			for _, deletedID := range deleted {
				s.search.RemoveRequest(deletedID)
			}
		}
	default:
		return domainError(http.StatusBadRequest, "INVALID_BODY", "id or chat_id is required", nil)
	}

	s.events.Publish(ctx, events.KeyRequestDeleted, map[string]any{"request_id": id, "chat_id": chatID})
	return nil
}

// ResolveIdentity verifies signed init data from the chat front-end and
// returns the trusted identity.
func (s *Service) ResolveIdentity(raw string) (initdata.Identity, error) {
	return initdata.Verify(raw, s.cfg.BotToken)
}

// SearchRequests runs an operator-panel text search over active requests.
func (s *Service) SearchRequests(ctx context.Context, q string, limit int) []search.Record {
	if s.search == nil {
		return []search.Record{}
	}
	return s.search.Search(ctx, q, limit)
}

// Ping reports store connectivity for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
