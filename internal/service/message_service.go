package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/models"
	"github.com/noah-isme/bondoverhobbies/internal/observability"
	"github.com/noah-isme/bondoverhobbies/internal/repository"
)

const (
	snapshotLimit = 500
	sendStripes   = 64

	// feedGapWait is how long a feed holds a message back while an earlier
	// one is still in flight from another node.
	feedGapWait    = 250 * time.Millisecond
	maxFeedPending = 256
)

// Sender identifies the author of a channel message.
type Sender struct {
	UID       string
	Name      string
	AvatarURL string
}

// MessageService manages the channel message logs.
type MessageService interface {
	Send(ctx context.Context, sender *Sender, communityID, channel string, req dto.SendMessageRequest) (*dto.MessageAck, error)
	History(ctx context.Context, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error)
	Subscribe(ctx context.Context, communityID, channel string) (*MessageFeed, error)
}

// MessageFeed is a channel snapshot followed by the live appends that were not
// part of it, delivered in sequence order.
type MessageFeed struct {
	Snapshot []dto.MessageResponse

	sub      *Subscription
	backfill func(ctx context.Context, afterSeq uint64, limit int) ([]dto.MessageResponse, error)
	lastSeq  uint64
	pending  map[uint64]dto.MessageResponse
	gapWait  time.Duration
}

type messageService struct {
	repo        repository.MessageRepository
	communities repository.CommunityRepository
	broker      *Broker
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	stripes     [sendStripes]sync.Mutex
}

// NewMessageService constructs the channel message service.
func NewMessageService(repo repository.MessageRepository, communities repository.CommunityRepository, broker *Broker, validate *validator.Validate, logger zerolog.Logger) MessageService {
	return &messageService{
		repo:        repo,
		communities: communities,
		broker:      broker,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "message_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/bondoverhobbies/internal/service/message"),
	}
}

// Send appends one message to the channel. A request with blank text and no
// attachment is a no-op and returns a nil acknowledgement.
func (s *messageService) Send(ctx context.Context, sender *Sender, communityID, channel string, req dto.SendMessageRequest) (*dto.MessageAck, error) {
	if sender == nil || sender.UID == "" {
		return nil, ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	text := plainText(s.sanitizer, req.Text)
	if text == "" && req.Attachment == nil {
		return nil, nil
	}

	if _, err := s.channel(ctx, communityID, channel); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "message.send", trace.WithAttributes(
		attribute.String("community.id", communityID),
		attribute.String("channel.slug", channel),
		attribute.String("user.uid", sender.UID),
	))
	defer span.End()

	message := models.ChannelMessage{
		CommunityID:  communityID,
		Channel:      channel,
		Text:         text,
		SenderID:     sender.UID,
		SenderName:   sender.Name,
		SenderAvatar: sender.AvatarURL,
	}
	kind := "text"
	if req.Attachment != nil {
		message.AttachmentURL = strings.TrimSpace(req.Attachment.URL)
		message.AttachmentType = req.Attachment.Type
		message.AttachmentFileName = plainText(s.sanitizer, req.Attachment.FileName)
		kind = req.Attachment.Type
	}

	topic := messageTopic(communityID, channel)
	lock := s.stripe(topic)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.Append(ctx, &message); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save message: %w", err)
	}

	observability.MessagesSent().WithLabelValues(kind).Inc()
	if err := s.broker.Publish(ctx, topic, dto.NewMessageResponse(message)); err != nil {
		s.logger.Warn().Err(err).Str("topic", topic).Msg("failed to fan out channel message")
	}

	return &dto.MessageAck{ID: message.ID, Seq: message.Seq, Timestamp: message.CreatedAt}, nil
}

func (s *messageService) History(ctx context.Context, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}
	if _, err := s.channel(ctx, query.CommunityID, query.Channel); err != nil {
		return nil, err
	}

	cursor := repository.MessageCursor{BeforeID: query.BeforeID}
	if query.Before != nil {
		cursor.Before = *query.Before
	}

	messages, err := s.repo.ListByChannel(ctx, query.CommunityID, query.Channel, cursor, query.Limit)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

// Subscribe registers for live appends before reading the snapshot; appends
// that race with the read are dropped from the live feed by sequence number.
func (s *messageService) Subscribe(ctx context.Context, communityID, channel string) (*MessageFeed, error) {
	if _, err := s.channel(ctx, communityID, channel); err != nil {
		return nil, err
	}

	sub := s.broker.Subscribe(messageTopic(communityID, channel))
	messages, err := s.repo.ListByChannel(ctx, communityID, channel, repository.MessageCursor{}, snapshotLimit)
	if err != nil {
		sub.Close()
		return nil, err
	}

	feed := &MessageFeed{
		Snapshot: dto.NewMessageResponseSlice(messages),
		sub:      sub,
		pending:  make(map[uint64]dto.MessageResponse),
		gapWait:  feedGapWait,
		backfill: func(ctx context.Context, afterSeq uint64, limit int) ([]dto.MessageResponse, error) {
			missing, err := s.repo.ListAfter(ctx, communityID, channel, afterSeq, limit)
			if err != nil {
				return nil, err
			}
			return dto.NewMessageResponseSlice(missing), nil
		},
	}
	if len(messages) > 0 {
		feed.lastSeq = messages[len(messages)-1].Seq
	}
	return feed, nil
}

func (s *messageService) channel(ctx context.Context, communityID, channel string) (models.Community, error) {
	community, err := s.communities.FindByID(ctx, communityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Community{}, ErrCommunityNotFound
		}
		return models.Community{}, fmt.Errorf("load community: %w", err)
	}
	if !community.HasChannel(channel) {
		return models.Community{}, ErrChannelNotFound
	}
	return community, nil
}

// Sends on one channel are serialised on this node so local subscribers
// receive them in sequence order without waiting on a gap.
func (s *messageService) stripe(topic string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return &s.stripes[h.Sum32()%sendStripes]
}

// Next blocks until the message following the last delivered one is
// available. Messages arriving ahead of a gap are held back; when the gap
// does not close within the wait the missing messages are read from the store.
func (f *MessageFeed) Next(ctx context.Context) (dto.MessageResponse, error) {
	var (
		timer *time.Timer
		gap   <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if message, ok := f.pending[f.lastSeq+1]; ok {
			delete(f.pending, message.Seq)
			f.lastSeq = message.Seq
			return message, nil
		}

		if len(f.pending) >= maxFeedPending {
			if err := f.fill(ctx); err != nil {
				return dto.MessageResponse{}, err
			}
			continue
		}
		if len(f.pending) > 0 && gap == nil {
			timer = time.NewTimer(f.gapWait)
			gap = timer.C
		}

		select {
		case <-ctx.Done():
			return dto.MessageResponse{}, ctx.Err()
		case <-f.sub.Done():
			return dto.MessageResponse{}, ErrSubscriptionClosed
		case raw := <-f.sub.Events():
			var message dto.MessageResponse
			if err := decodeEvent(raw, &message); err != nil {
				continue
			}
			f.hold(message)
		case <-gap:
			gap = nil
			if err := f.fill(ctx); err != nil {
				return dto.MessageResponse{}, err
			}
		}
	}
}

func (f *MessageFeed) hold(message dto.MessageResponse) {
	if message.Seq <= f.lastSeq {
		return
	}
	f.pending[message.Seq] = message
}

func (f *MessageFeed) fill(ctx context.Context) error {
	if len(f.pending) == 0 {
		return nil
	}

	var highest uint64
	for seq := range f.pending {
		if seq > highest {
			highest = seq
		}
	}

	missing, err := f.backfill(ctx, f.lastSeq, int(highest-f.lastSeq))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: backfill: %v", ErrSubscriptionClosed, err)
	}
	for _, message := range missing {
		f.hold(message)
	}

	// The store commits sequence numbers in order, so a hole it cannot fill
	// is never going to be filled.
	if _, ok := f.pending[f.lastSeq+1]; !ok {
		lowest := highest
		for seq := range f.pending {
			if seq < lowest {
				lowest = seq
			}
		}
		f.lastSeq = lowest - 1
	}
	return nil
}

// Close releases the feed.
func (f *MessageFeed) Close() {
	f.sub.Close()
}
