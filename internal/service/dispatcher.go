package service

import (
	"context"
	"errors"

	"roomsync/internal/domain"
	"roomsync/internal/realtime"
	"roomsync/pkg/logger"
)

// Dispatcher превращает изменения состояния в события транспорта.
// Доменные события (вход, выход, старт звонка) дополнительно пишутся в комнату
// системными сообщениями.
type Dispatcher struct {
	transport realtime.SyncTransport
	messages  MessageService
	presence  PresenceService
	rooms     RoomService
	typing    TypingService
	log       logger.Logger
}

func NewDispatcher(
	transport realtime.SyncTransport,
	messages MessageService,
	presence PresenceService,
	rooms RoomService,
	typing TypingService,
	log logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		messages:  messages,
		presence:  presence,
		rooms:     rooms,
		typing:    typing,
		log:       log,
	}
}

func (d *Dispatcher) publish(ctx context.Context, eventType, room string, payload any) error {
	ev, err := domain.NewEvent(eventType, room, payload)
	if err != nil {
		return err
	}
	return d.transport.Publish(ctx, ev)
}

// Dispatch обрабатывает доменные события по порядку
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.SystemEvent) error {
	if len(events) == 0 {
		return nil
	}

	var errs []error
	membershipChanged := false
	for _, ev := range events {
		msg, err := d.messages.AppendSystem(ctx, ev.Room, ev.Text())
		if err != nil {
			errs = append(errs, err)
		} else if err := d.publish(ctx, domain.EventMessage, ev.Room, msg); err != nil {
			errs = append(errs, err)
		}

		switch ev.Kind {
		case domain.SystemUserJoined, domain.SystemUserLeft:
			eventType := domain.EventUserJoined
			if ev.Kind == domain.SystemUserLeft {
				eventType = domain.EventUserLeft
			}
			payload := domain.PresencePayload{Username: ev.Username, Reason: ev.Reason}
			if err := d.publish(ctx, eventType, ev.Room, payload); err != nil {
				errs = append(errs, err)
			}
			if err := d.RoomUsers(ctx, ev.Room); err != nil {
				errs = append(errs, err)
			}
			membershipChanged = true

		case domain.SystemCallStarted:
			if err := d.publish(ctx, domain.EventCallStarted, ev.Room, ev.Call); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if membershipChanged {
		if err := d.RoomList(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		d.log.Error("Failed to dispatch system events", "error", err)
	}
	return err
}

func (d *Dispatcher) MessageCreated(ctx context.Context, msg *domain.Message) error {
	return d.publish(ctx, domain.EventMessage, msg.Room, msg)
}

func (d *Dispatcher) MessageUpdated(ctx context.Context, msg *domain.Message) error {
	return d.publish(ctx, domain.EventMessageUpdated, msg.Room, msg)
}

func (d *Dispatcher) MessageDeleted(ctx context.Context, msg *domain.Message) error {
	return d.publish(ctx, domain.EventMessageDeleted, msg.Room, msg)
}

func (d *Dispatcher) MessagePurged(ctx context.Context, msg *domain.Message) error {
	return d.publish(ctx, domain.EventMessageDeleted, msg.Room, domain.PurgePayload{ID: msg.ID, Room: msg.Room, Purged: true})
}

func (d *Dispatcher) ReactionToggled(ctx context.Context, msg *domain.Message, emoji, username string, added bool) error {
	return d.publish(ctx, domain.EventMessageReaction, msg.Room, domain.ReactionPayload{
		MessageID: msg.ID,
		Emoji:     emoji,
		Username:  username,
		Added:     added,
		Message:   msg,
	})
}

// TypingChanged публикует изменение вместе с актуальным списком печатающих
func (d *Dispatcher) TypingChanged(ctx context.Context, room, username string, isTyping bool) error {
	typing, err := d.typing.ListTyping(ctx, room, "")
	if err != nil {
		return err
	}
	return d.publish(ctx, domain.EventUserTyping, room, domain.TypingPayload{
		Username: username,
		IsTyping: isTyping,
		Typing:   typing,
	})
}

func (d *Dispatcher) CallUpdated(ctx context.Context, call *domain.VideoCall) error {
	return d.publish(ctx, domain.EventCallUpdated, call.RoomID, call)
}

func (d *Dispatcher) RoomUsers(ctx context.Context, room string) error {
	users, err := d.presence.List(ctx, room)
	if err != nil {
		return err
	}
	return d.publish(ctx, domain.EventRoomUsers, room, users)
}

// RoomList - глобальное событие со списком активных комнат
func (d *Dispatcher) RoomList(ctx context.Context) error {
	rooms, err := d.rooms.ListActive(ctx)
	if err != nil {
		return err
	}
	return d.publish(ctx, domain.EventRoomList, "", rooms)
}
