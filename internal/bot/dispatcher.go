package bot

import (
	"context"
	"errors"
	"strings"
	"sync"

	"slack_pay_bridge_bot/internal/domain"
	"slack_pay_bridge_bot/internal/logging"
	"slack_pay_bridge_bot/internal/slack"
	"slack_pay_bridge_bot/internal/synapse"
)

const workerQueueSize = 16

type messagePoster interface {
	PostMessage(ctx context.Context, channelID, text string) error
}

// Dispatcher turns inbound chat events into command executions and posts
// the replies. Events are fanned out to one worker per channel so replies
// stay first-in-first-out within a channel while channels run in parallel.
type Dispatcher struct {
	registry        *Registry
	resolver        *Resolver
	users           registeredUserGetter
	poster          messagePoster
	mention         string
	registerURLBase string

	mu      sync.Mutex
	workers map[string]chan slack.Event
}

// DispatcherDeps names the collaborators explicitly; nothing is reached
// through package globals.
type DispatcherDeps struct {
	Registry        *Registry
	Resolver        *Resolver
	Users           registeredUserGetter
	Poster          messagePoster
	Mention         string
	RegisterURLBase string
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		registry:        deps.Registry,
		resolver:        deps.Resolver,
		users:           deps.Users,
		poster:          deps.Poster,
		mention:         deps.Mention,
		registerURLBase: strings.TrimRight(deps.RegisterURLBase, "/"),
		workers:         make(map[string]chan slack.Event),
	}
}

// Dispatch enqueues one inbound event on its channel's worker. Events that
// neither mention the bot nor qualify as a doc upload are dropped here, so
// ignored chatter never occupies a worker slot.
func (d *Dispatcher) Dispatch(ctx context.Context, event slack.Event) {
	if !d.isDocUpload(event) && !d.isCommand(event) {
		return
	}
	jobs := d.workerFor(ctx, event.ChannelID)
	select {
	case jobs <- event:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) workerFor(ctx context.Context, channelID string) chan slack.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if jobs, ok := d.workers[channelID]; ok {
		return jobs
	}
	jobs := make(chan slack.Event, workerQueueSize)
	d.workers[channelID] = jobs
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-jobs:
				d.process(ctx, event)
			}
		}
	}()
	return jobs
}

func (d *Dispatcher) isCommand(event slack.Event) bool {
	return strings.Contains(event.Text, d.mention)
}

func (d *Dispatcher) isDocUpload(event slack.Event) bool {
	return event.File != nil && strings.Contains(event.File.InitialComment, d.mention)
}

func (d *Dispatcher) process(ctx context.Context, event slack.Event) {
	if d.isDocUpload(event) {
		d.processDocUpload(ctx, event)
		return
	}
	keyword, params, ok := ParseMessage(event.Text, d.mention)
	if !ok {
		d.post(ctx, event, FallbackReply)
		return
	}
	if keyword == "help" {
		d.post(ctx, event, d.registry.Help())
		return
	}
	if _, known := d.registry.Lookup(keyword); !known {
		d.post(ctx, event, FallbackReply)
		return
	}
	d.execute(ctx, event, keyword, params)
}

// processDocUpload handles the upload-triggered command: the keyword comes
// from the file comment and the parameter is the upload's permanent link.
func (d *Dispatcher) processDocUpload(ctx context.Context, event slack.Event) {
	if !strings.Contains(event.File.InitialComment, KeywordPhotoID) {
		d.post(ctx, event, FallbackReply)
		return
	}
	d.execute(ctx, event, KeywordPhotoID, FreeTextParams(event.File.Permalink))
}

func (d *Dispatcher) execute(ctx context.Context, event slack.Event, keyword string, params Params) {
	cmd, _ := d.registry.Lookup(keyword)
	d.post(ctx, event, AckReply)

	log := logging.WithContext(logging.Context{
		UserID:  event.UserID,
		Channel: event.ChannelID,
		Event:   "command_" + keyword,
	})

	if keyword == "register" {
		if _, err := d.users.GetByChatUserID(ctx, event.UserID); err == nil {
			d.post(ctx, event, "*You are already registered.*")
			return
		} else if !errors.Is(err, domain.ErrNotFound) {
			log.WithError(err).Error("registration lookup failed")
			d.post(ctx, event, translateError(err))
			return
		}
	}

	inv := Invocation{ChatUserID: event.UserID, Params: params}
	if cmd.NeedsRegistration {
		account, err := d.resolver.Resolve(ctx, event.UserID)
		if errors.Is(err, ErrNotRegistered) {
			d.post(ctx, event, d.registrationPrompt(event.UserID))
			return
		}
		if err != nil {
			log.WithError(err).Error("identity resolution failed")
			d.post(ctx, event, translateError(err))
			return
		}
		inv.Account = account
	}

	reply, err := cmd.Execute(ctx, inv)
	if err != nil {
		log.WithError(err).Error("command failed")
		reply = translateError(err)
	}
	d.post(ctx, event, reply)
}

func (d *Dispatcher) registrationPrompt(chatUserID string) string {
	prompt := d.registry.RegistrationPrompt()
	if d.registerURLBase != "" {
		prompt += "\nOr use the form: " + d.registerURLBase + "/register/" + chatUserID
	}
	return prompt
}

func (d *Dispatcher) post(ctx context.Context, event slack.Event, text string) {
	if err := d.poster.PostMessage(ctx, event.ChannelID, text); err != nil {
		logging.WithContext(logging.Context{
			UserID:  event.UserID,
			Channel: event.ChannelID,
			Event:   "post_reply",
		}).WithError(err).Error("posting reply failed")
	}
}

// translateError picks the reply template by error kind: provider failures
// carry the provider's own diagnostic, everything else gets the generic
// message.
func translateError(err error) string {
	var apiErr *synapse.APIError
	if errors.As(err, &apiErr) {
		return "An HTTP error occurred while trying to communicate with the Synapse API:\n" + apiErr.Message
	}
	return "An error occurred:\n" + err.Error()
}
