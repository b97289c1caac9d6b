// Copyright (c) 2025 LingoMate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lingomate/lingomate/internal/llm"
	"github.com/lingomate/lingomate/internal/model"
	"github.com/lingomate/lingomate/internal/prompt"
	"github.com/lingomate/lingomate/internal/sse"
	"github.com/lingomate/lingomate/internal/storage"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Store is the persistence collaborator the orchestrator consumes.
type Store interface {
	CreateConversation(settings model.Settings, title string) (*model.Conversation, error)
	AddMessage(conversationID string, msg *model.Message) (*model.Message, error)
	UpdateMessage(id string, upd storage.MessageUpdate) error
	DeleteMessage(id string) error
	GetMessages(conversationID string) ([]*model.Message, error)
	GetConversationSettings(id string) (model.Settings, error)
	UpdateConversationSettings(id string, settings model.Settings) error
}

// Completer issues one chat-completion call.
type Completer interface {
	Send(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// =============================================================================
// TURN STATE
// =============================================================================

// TurnState tracks the per-turn state machine. Settled is terminal for a
// turn whether it completed, failed, or was cancelled; the orchestrator
// then returns to Idle for the next turn.
type TurnState int

const (
	StateIdle TurnState = iota
	StateAwaitingConversation
	StateEditorUserComment
	StateChatMateResponse
	StateEditorChatMateComment
	StateSettled
)

// String returns a readable state name.
func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConversation:
		return "awaiting-conversation"
	case StateEditorUserComment:
		return "editor-user-comment"
	case StateChatMateResponse:
		return "chat-mate-response"
	case StateEditorChatMateComment:
		return "editor-chat-mate-comment"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs multi-agent turns against the completion endpoint. It
// owns the active conversation's message list; all writes to it happen
// under the mutex since two streams can legitimately complete at once.
//
// Turns are strictly serialized. A single cancellation handle is created
// per turn and threaded into every call the turn issues.
type Orchestrator struct {
	store     Store
	client    Completer
	streaming bool

	mu       sync.Mutex
	conv     *model.Conversation
	settings model.Settings
	state    TurnState
	cancel   context.CancelFunc

	events chan Event
}

// New creates an orchestrator. defaults are the settings applied when a
// conversation is lazily created; streaming selects SSE responses.
func New(store Store, client Completer, defaults model.Settings, streaming bool) *Orchestrator {
	return &Orchestrator{
		store:     store,
		client:    client,
		streaming: streaming,
		settings:  defaults,
		state:     StateIdle,
		events:    make(chan Event, eventBuffer),
	}
}

// Close closes the event channel. No turn may be running.
func (o *Orchestrator) Close() {
	close(o.events)
}

// State returns the current turn state.
func (o *Orchestrator) State() TurnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ConversationID returns the active conversation id, or "".
func (o *Orchestrator) ConversationID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conv == nil {
		return ""
	}
	return o.conv.ID
}

// Messages returns a snapshot of the active conversation's messages.
func (o *Orchestrator) Messages() []*model.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conv == nil {
		return nil
	}
	return o.conv.Snapshot()
}

// Settings returns the settings a newly created conversation would get, or
// the active conversation's settings.
func (o *Orchestrator) Settings() model.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conv != nil {
		return o.conv.Settings
	}
	return o.settings
}

// SetSettings updates the pending settings and, when a conversation is
// active, persists them to it. Settings changes made before the first send
// are honored because conversations capture settings at send time.
func (o *Orchestrator) SetSettings(s model.Settings) error {
	o.mu.Lock()
	o.settings = s
	conv := o.conv
	if conv != nil {
		conv.Settings = s
	}
	o.mu.Unlock()

	if conv == nil {
		return nil
	}
	return o.store.UpdateConversationSettings(conv.ID, s)
}

// UpdateDefaults replaces the pending settings, but only while no
// conversation is active and no turn is running: an active conversation
// keeps the settings captured at send time, and a send already underway
// must not see its defaults swapped mid-flight. Reports whether the
// settings were applied.
func (o *Orchestrator) UpdateDefaults(s model.Settings) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conv != nil || o.cancel != nil {
		return false
	}
	o.settings = s
	return true
}

// NewConversation detaches the active conversation. The next send creates
// a fresh one lazily, with whatever settings are in effect then.
func (o *Orchestrator) NewConversation() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return ErrTurnActive
	}
	o.conv = nil
	return nil
}

// UseConversation loads a stored conversation and makes it active.
func (o *Orchestrator) UseConversation(id string) error {
	settings, err := o.store.GetConversationSettings(id)
	if err != nil {
		return err
	}
	msgs, err := o.store.GetMessages(id)
	if err != nil {
		return err
	}

	conv := model.NewConversation(settings)
	conv.ID = id
	conv.Messages = msgs

	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return ErrTurnActive
	}
	o.conv = conv
	o.settings = settings
	o.emitSnapshotLocked()
	o.mu.Unlock()
	return nil
}

// Cancel aborts the running turn, if any. In-flight upstream requests
// observe the shared signal at their next suspension point; records that
// never reached a terminal state are removed, persisted ones stay.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// TURN ENTRY POINTS
// =============================================================================

// turnKind selects which calls a turn issues. All kinds share the same
// per-message streaming wiring.
type turnKind int

const (
	// turnFull is the dual-agent turn: editor comment on the user message,
	// chat-mate reply, then editor comment on the reply.
	turnFull turnKind = iota

	// turnUserOnly persists the user message and runs only the editor
	// comment on it.
	turnUserOnly

	// turnChatMateOnly persists the text as a chat-mate message (manual
	// role-play of both sides) and runs only the editor comment on it.
	turnChatMateOnly
)

// SendMessage runs a full dual-agent turn for a new user message.
func (o *Orchestrator) SendMessage(text string, attachments []model.Attachment) error {
	return o.runTurn(turnFull, text, attachments)
}

// SendUserOnly persists the user message and requests only the editor
// comment on it.
func (o *Orchestrator) SendUserOnly(text string, attachments []model.Attachment) error {
	return o.runTurn(turnUserOnly, text, attachments)
}

// SendChatMateOnly persists text as a chat-mate message and requests only
// the editor comment on it.
func (o *Orchestrator) SendChatMateOnly(text string) error {
	return o.runTurn(turnChatMateOnly, text, nil)
}

// RegenerateMessage re-runs one existing message's generation in place.
// The prompt is reselected from what the message's parent points at; the
// history is truncated to before the message; content and metadata are
// overwritten on completion rather than a new message being created.
func (o *Orchestrator) RegenerateMessage(id string) error {
	ctx, err := o.beginTurn()
	if err != nil {
		return err
	}
	err = o.executeRegeneration(ctx, id)
	o.settleTurn(err)
	return err
}

// ForkFrom creates a brand-new conversation copying every message up to
// and including id. Parent links are preserved only among copied messages.
// No network calls occur; the fork becomes the active conversation.
func (o *Orchestrator) ForkFrom(id string) (*model.Conversation, error) {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return nil, ErrTurnActive
	}
	if o.conv == nil {
		o.mu.Unlock()
		return nil, ErrNoConversation
	}
	clones := o.conv.UpToAndIncluding(id)
	settings := o.conv.Settings
	o.mu.Unlock()

	if clones == nil {
		return nil, ErrMessageNotFound
	}

	fork, err := o.store.CreateConversation(settings, "")
	if err != nil {
		return nil, err
	}

	idMap := make(map[string]string, len(clones))
	for _, m := range clones {
		origID := m.ID
		if mapped, ok := idMap[m.ParentMessageID]; ok {
			m.ParentMessageID = mapped
		} else {
			m.ParentMessageID = ""
		}
		stored, err := o.store.AddMessage(fork.ID, m)
		if err != nil {
			return nil, err
		}
		idMap[origID] = stored.ID
		fork.Messages = append(fork.Messages, stored)
	}

	o.mu.Lock()
	o.conv = fork
	o.settings = settings
	o.emitSnapshotLocked()
	o.mu.Unlock()
	o.emit(Event{Kind: EventConversationUpdated, ConversationID: fork.ID})
	return fork, nil
}

// =============================================================================
// TURN EXECUTION
// =============================================================================

func (o *Orchestrator) runTurn(kind turnKind, text string, attachments []model.Attachment) error {
	ctx, err := o.beginTurn()
	if err != nil {
		return err
	}
	err = o.executeTurn(ctx, kind, text, attachments)
	o.settleTurn(err)
	return err
}

// beginTurn claims the turn slot and creates its cancellation handle.
func (o *Orchestrator) beginTurn() (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return nil, ErrTurnActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.state = StateAwaitingConversation
	return ctx, nil
}

// settleTurn releases the turn slot and emits the terminal events: at most
// one error notification, a settled event, and on success the
// conversation-updated notification that drives the title heuristic.
func (o *Orchestrator) settleTurn(err error) {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.state = StateSettled
	var convID string
	var snapshot []*model.Message
	if o.conv != nil {
		convID = o.conv.ID
		snapshot = o.conv.Snapshot()
	}
	o.mu.Unlock()

	if err != nil {
		o.emit(Event{Kind: EventError, ConversationID: convID, Err: err})
	}
	o.emit(Event{Kind: EventTurnSettled, ConversationID: convID, Messages: snapshot})
	if err == nil {
		o.emit(Event{Kind: EventConversationUpdated, ConversationID: convID})
	}

	o.mu.Lock()
	o.state = StateIdle
	o.mu.Unlock()
}

func (o *Orchestrator) executeTurn(ctx context.Context, kind turnKind, text string, attachments []model.Attachment) error {
	if err := o.ensureConversation(); err != nil {
		return err
	}

	// Inline image links become first-class attachments, not literal text.
	clean, extracted := ExtractAttachments(text)
	attachments = append(attachments, extracted...)

	authorType := model.TypeUser
	if kind == turnChatMateOnly {
		authorType = model.TypeChatMate
	}

	authorID, convID, settings, err := o.persistAuthored(authorType, clean, attachments)
	if err != nil {
		return err
	}

	vars := promptVariables(settings)
	editorPrompt, err := prompt.BuildForParent(authorType, vars)
	if err != nil {
		return err
	}

	o.mu.Lock()
	msgs := o.conv.Snapshot()
	o.mu.Unlock()

	editorGen := generation{
		msgType:  model.TypeEditorMate,
		parentID: authorID,
		history:  editorHistory(msgs),
		system:   editorPrompt.SystemPrompt,
	}

	if kind != turnFull {
		if authorType == model.TypeChatMate {
			o.setState(StateEditorChatMateComment)
		} else {
			o.setState(StateEditorUserComment)
		}
		_, err := o.runGeneration(ctx, convID, settings, editorGen)
		return err
	}

	chatPrompt, err := prompt.Build(model.TypeChatMate, vars)
	if err != nil {
		return err
	}
	chatGen := generation{
		msgType: model.TypeChatMate,
		history: chatMateHistory(msgs),
		system:  chatPrompt.SystemPrompt,
	}

	// The editor comment on the user message and the chat-mate reply are
	// concurrent requests; their stream interleaving is nondeterministic.
	// A failure in either aborts the remaining turn.
	o.setState(StateEditorUserComment)
	var (
		wg        sync.WaitGroup
		editorErr error
		chatErr   error
		chatMsgID string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := o.runGeneration(ctx, convID, settings, editorGen); err != nil {
			editorErr = err
			o.Cancel()
		}
	}()
	go func() {
		defer wg.Done()
		o.setState(StateChatMateResponse)
		id, err := o.runGeneration(ctx, convID, settings, chatGen)
		if err != nil {
			chatErr = err
			o.Cancel()
			return
		}
		chatMsgID = id
	}()
	wg.Wait()

	if err := pickTurnError(editorErr, chatErr); err != nil {
		return err
	}

	// Sequenced strictly after the chat-mate reply resolves: its finished
	// text is this call's prompt input.
	o.setState(StateEditorChatMateComment)
	followPrompt, err := prompt.BuildForParent(model.TypeChatMate, vars)
	if err != nil {
		return err
	}
	o.mu.Lock()
	msgs = o.conv.Snapshot()
	o.mu.Unlock()

	followGen := generation{
		msgType:  model.TypeEditorMate,
		parentID: chatMsgID,
		history:  editorHistory(msgs),
		system:   followPrompt.SystemPrompt,
	}
	_, err = o.runGeneration(ctx, convID, settings, followGen)
	return err
}

func (o *Orchestrator) executeRegeneration(ctx context.Context, id string) error {
	o.mu.Lock()
	if o.conv == nil {
		o.mu.Unlock()
		return ErrNoConversation
	}
	target := o.conv.Find(id)
	if target == nil {
		o.mu.Unlock()
		return ErrMessageNotFound
	}
	if target.Type == model.TypeUser {
		o.mu.Unlock()
		return fmt.Errorf("cannot regenerate a user message")
	}
	parentType := model.TypeUser
	if target.ParentMessageID != "" {
		if p := o.conv.Find(target.ParentMessageID); p != nil {
			parentType = p.Type
		}
	}
	targetType := target.Type
	settings := o.conv.Settings
	convID := o.conv.ID
	msgs := truncateBefore(o.conv.Snapshot(), id)
	o.mu.Unlock()

	vars := promptVariables(settings)
	var res *prompt.Result
	var err error
	if targetType == model.TypeChatMate {
		o.setState(StateChatMateResponse)
		res, err = prompt.Build(model.TypeChatMate, vars)
	} else {
		if parentType == model.TypeChatMate {
			o.setState(StateEditorChatMateComment)
		} else {
			o.setState(StateEditorUserComment)
		}
		res, err = prompt.BuildForParent(parentType, vars)
	}
	if err != nil {
		return err
	}

	gen := generation{
		msgType:     targetType,
		history:     historyFor(targetType, msgs),
		system:      res.SystemPrompt,
		overwriteID: id,
	}
	_, err = o.runGeneration(ctx, convID, settings, gen)
	return err
}

// ensureConversation lazily creates the conversation on first send,
// capturing the settings in effect at send time.
func (o *Orchestrator) ensureConversation() error {
	o.mu.Lock()
	if o.conv != nil {
		o.mu.Unlock()
		return nil
	}
	settings := o.settings
	o.mu.Unlock()

	conv, err := o.store.CreateConversation(settings, "")
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.conv = conv
	o.mu.Unlock()
	o.emit(Event{Kind: EventConversationUpdated, ConversationID: conv.ID})
	return nil
}

// persistAuthored appends and persists the human-authored message, then
// reconciles its temporary id with the store-assigned one.
func (o *Orchestrator) persistAuthored(t model.MessageType, text string, attachments []model.Attachment) (msgID, convID string, settings model.Settings, err error) {
	authored := model.NewUserMessage(text, attachments)
	authored.Type = t

	o.mu.Lock()
	o.conv.Append(authored)
	convID = o.conv.ID
	settings = o.conv.Settings
	o.emitSnapshotLocked()
	o.mu.Unlock()

	stored, err := o.store.AddMessage(convID, authored)
	if err != nil {
		return "", "", settings, err
	}

	o.mu.Lock()
	o.conv.ReplaceID(authored.ID, stored.ID)
	o.emitSnapshotLocked()
	o.mu.Unlock()
	return stored.ID, convID, settings, nil
}

func (o *Orchestrator) setState(s TurnState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// pickTurnError chooses the error to surface when concurrent calls failed.
// A real upstream failure wins over the cancellation it triggered in its
// sibling.
func pickTurnError(errs ...error) error {
	var cancelled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var c *CancelledError
		if errors.As(err, &c) {
			cancelled = err
			continue
		}
		return err
	}
	return cancelled
}

// =============================================================================
// GENERATION
// =============================================================================

// generation describes one AI call wired to one message record.
type generation struct {
	msgType  model.MessageType
	parentID string
	history  []llm.ChatMessage
	system   string

	// overwriteID redirects the result into an existing persisted message
	// instead of creating a new one. Used by regeneration.
	overwriteID string
}

// runGeneration issues one completion call, streams (or copies) its output
// into the wired message record, and persists the finished message. It
// returns the persisted message id.
func (o *Orchestrator) runGeneration(ctx context.Context, convID string, settings model.Settings, gen generation) (string, error) {
	var msg *model.Message
	o.mu.Lock()
	if gen.overwriteID != "" {
		msg = o.conv.Find(gen.overwriteID)
		if msg == nil {
			o.mu.Unlock()
			return "", ErrMessageNotFound
		}
		msg.IsStreaming = true
	} else {
		msg = model.NewStreamingMessage(gen.msgType, gen.parentID)
		o.conv.Append(msg)
	}
	o.emitSnapshotLocked()
	o.mu.Unlock()

	start := time.Now()
	req := &llm.Request{
		Model:           settings.Model,
		History:         gen.history,
		SystemPrompt:    gen.system,
		Stream:          o.streaming,
		EnableReasoning: settings.EnableReasoning,
		HasImages:       hasImageParts(gen.history),
	}

	resp, err := o.client.Send(ctx, req)
	if err != nil {
		o.discardPending(msg, gen.overwriteID != "")
		return "", turnError(ctx, err)
	}

	if resp.IsStream() {
		defer resp.Stream.Close()
		dec := sse.NewDecoder(resp.Stream)
		err := dec.Run(ctx, func(ev sse.Event) {
			o.mu.Lock()
			switch ev.Type {
			case sse.EventContent:
				msg.AppendContent(ev.Content)
				o.emitSnapshotLocked()
			case sse.EventReasoning:
				msg.AppendReasoning(ev.Content)
				o.emitSnapshotLocked()
			}
			o.mu.Unlock()
		}, nil)
		if err != nil {
			o.discardPending(msg, gen.overwriteID != "")
			return "", turnError(ctx, err)
		}
		for _, derr := range dec.Errors() {
			log.Printf("%v", derr)
		}
	} else {
		o.mu.Lock()
		msg.AppendContent(resp.Content)
		msg.AppendReasoning(resp.Reasoning)
		o.mu.Unlock()
	}

	meta := &model.Metadata{
		Model:     llm.NormalizeModel(settings.Model),
		StartTime: start,
		EndTime:   time.Now(),
	}

	o.mu.Lock()
	msg.FinalizeStream(meta)
	o.emitSnapshotLocked()
	o.mu.Unlock()

	// Persist-on-done. A storage failure surfaces as a notification but
	// never rolls back the in-memory message.
	if gen.overwriteID != "" {
		upd := storage.MessageUpdate{
			Content:   &msg.Content,
			Reasoning: &msg.Reasoning,
			Metadata:  meta,
		}
		if err := o.store.UpdateMessage(gen.overwriteID, upd); err != nil {
			return gen.overwriteID, err
		}
		return gen.overwriteID, nil
	}

	stored, err := o.store.AddMessage(convID, msg)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	o.conv.ReplaceID(msg.ID, stored.ID)
	o.emitSnapshotLocked()
	o.mu.Unlock()
	return stored.ID, nil
}

// discardPending removes a record that never reached a terminal state. A
// regeneration target is persisted, so it keeps its previous content
// instead of being removed.
func (o *Orchestrator) discardPending(msg *model.Message, overwrite bool) {
	o.mu.Lock()
	if overwrite {
		msg.AbortStream()
	} else {
		o.conv.Remove(msg.ID)
	}
	o.emitSnapshotLocked()
	o.mu.Unlock()
}

// turnError maps a cancellation into CancelledError so the presentation
// layer shows "cancelled" rather than "failed".
func turnError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &CancelledError{}
	}
	return err
}
