// Package router is the admission and routing core. It turns the noisy
// at-least-once inbound stream into an ordered, access-controlled sequence
// of agent turns: stale-sequence rejection, duplicate suppression,
// per-conversation serialization, policy checks with pairing, bounded
// history context, and chunked reply emission.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nextlevelbuilder/gateclaw/internal/bus"
	"github.com/nextlevelbuilder/gateclaw/internal/channels"
	"github.com/nextlevelbuilder/gateclaw/internal/config"
	"github.com/nextlevelbuilder/gateclaw/internal/scheduler"
	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
	"github.com/nextlevelbuilder/gateclaw/internal/store"
)

// Outcome is the synchronous routing decision for one inbound event.
// Admission and dispatch happen asynchronously inside the conversation's
// serialized lane.
type Outcome string

const (
	OutcomeQueued    Outcome = "queued"    // scheduled under its conversation key
	OutcomeStale     Outcome = "stale"     // sequence at or below the recorded offset
	OutcomeDuplicate Outcome = "duplicate" // delivery fingerprint already seen
	OutcomeOverload  Outcome = "overload"  // conversation lane full, dropped
)

// pairingPromptDebounce suppresses repeat pairing announcements to the
// same sender. The code itself stays stable (store-level idempotency);
// this only stops the gateway from spamming the chat.
const pairingPromptDebounce = 60 * time.Second

// TypingFunc shows a typing indicator before dispatch. Best-effort.
type TypingFunc func(channel, chatID string, threadID int)

// Deps are the router's injected collaborators. Shared state arrives here
// rather than living in package globals so multiple gateway instances can
// coexist in one process and tests stay isolated.
type Deps struct {
	Bus       bus.MessageRouter
	Dedupe    *bus.DedupeCache
	Scheduler *scheduler.Scheduler
	History   *sessions.HistoryBuffer
	Sessions  *sessions.Manager
	Pairing   store.PairingStore
	Offset    *UpdateOffset
	Agent     Agent
	Tracer    trace.Tracer // nil = no tracing
	Typing    TypingFunc   // nil = no typing indicator
}

// Router wires the admission pipeline together. One instance per gateway.
type Router struct {
	cfg    *config.Config
	bus    bus.MessageRouter
	dedupe *bus.DedupeCache
	sched  *scheduler.Scheduler
	hist   *sessions.HistoryBuffer
	sess   *sessions.Manager
	pair   store.PairingStore
	offset *UpdateOffset
	agent  Agent
	tracer trace.Tracer
	typing TypingFunc

	mu           sync.Mutex
	lastPromptAt map[string]time.Time

	now func() time.Time
}

// New constructs a Router from its collaborators.
func New(cfg *config.Config, deps Deps) *Router {
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("gateclaw")
	}
	return &Router{
		cfg:          cfg,
		bus:          deps.Bus,
		dedupe:       deps.Dedupe,
		sched:        deps.Scheduler,
		hist:         deps.History,
		sess:         deps.Sessions,
		pair:         deps.Pairing,
		offset:       deps.Offset,
		agent:        deps.Agent,
		tracer:       tracer,
		typing:       deps.Typing,
		lastPromptAt: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Run consumes inbound messages from the bus until ctx is done.
func (r *Router) Run(ctx context.Context) {
	for {
		msg, ok := r.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		r.Handle(msg)
	}
}

// Handle is the single entry point transports feed events into. Stale and
// duplicate deliveries are filtered synchronously; everything else is
// scheduled under the event's conversation key.
func (r *Router) Handle(msg bus.InboundMessage) Outcome {
	if r.offset.IsStale(msg.Channel, msg.UpdateID) {
		slog.Debug("router: stale update dropped",
			"channel", msg.Channel, "update_id", msg.UpdateID, "offset", r.offset.Last(msg.Channel))
		return OutcomeStale
	}
	if r.dedupe.Check(msg.Fingerprint) {
		slog.Debug("router: duplicate delivery dropped",
			"channel", msg.Channel, "fingerprint", msg.Fingerprint)
		return OutcomeDuplicate
	}

	// Oversized inbound content is truncated, not rejected: a pasted log
	// should still produce a turn.
	if max := r.cfg.Snapshot().Gateway.MaxMessageChars; max > 0 {
		if runes := []rune(msg.Content); len(runes) > max {
			msg.Content = string(runes[:max])
			slog.Debug("router: inbound content truncated",
				"channel", msg.Channel, "max_chars", max)
		}
	}

	key := sessions.ResolveKey(msg.Channel, msg.ChatID, msg.ThreadCapable, msg.ThreadID)
	if err := r.sched.Run(key, func(ctx context.Context) error {
		return r.process(ctx, key, msg)
	}); err != nil {
		// The event was never processed; un-record its fingerprint so the
		// platform's redelivery is not suppressed as a duplicate.
		r.dedupe.Forget(msg.Fingerprint)
		slog.Error("router: could not schedule message", "conversation", string(key), "error", err)
		return OutcomeOverload
	}

	slog.Debug("router: inbound scheduled", "conversation", string(key), "sender", msg.SenderID)
	return OutcomeQueued
}

// process runs inside the conversation's serialized lane. Per-event
// failures degrade to drop-and-log; the returned error is reserved for the
// scheduler's isolation logging.
func (r *Router) process(ctx context.Context, key sessions.ConversationKey, msg bus.InboundMessage) error {
	set := r.channelSettings(msg.Channel)
	verdict := r.resolveVerdict(key, msg, set)

	if !verdict.Admit {
		if verdict.PairingPrompt {
			r.promptPairing(msg)
		} else {
			slog.Debug("router: message denied",
				"conversation", string(key), "rule", verdict.Rule, "reason", verdict.Reason)
		}
		return nil
	}
	if verdict.RequireMention && !msg.MentionsBot {
		// Ambient group chatter, not addressed to the bot.
		slog.Debug("router: unaddressed group message ignored",
			"conversation", string(key), "rule", verdict.Rule)
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "gateway.turn", trace.WithAttributes(
		attribute.String("channel", msg.Channel),
		attribute.String("conversation", string(key)),
		attribute.String("policy.rule", verdict.Rule),
	))
	defer span.End()

	if r.typing != nil {
		r.typing(msg.Channel, msg.ChatID, outboundThreadID(msg))
	}

	history := r.hist.Read(key)
	if limit := msg.HistoryLimit; limit <= 0 {
		history = nil
	} else if len(history) > limit {
		history = history[len(history)-limit:]
	}

	emitted := false
	draft := channels.NewDraftStream(set.chunkLimit, set.flushMode, func(chunk string) {
		emitted = true
		r.bus.PublishOutbound(bus.OutboundMessage{
			Channel:  msg.Channel,
			ChatID:   msg.ChatID,
			Content:  chunk,
			ThreadID: outboundThreadID(msg),
		})
	})

	onFragment := draft.Push
	if set.flushMode == channels.FlushBlock {
		onFragment = func(fragment string) { pushBlocks(draft, fragment) }
	}

	reply, err := r.agent.StreamReply(ctx, history, msg.Content, onFragment)
	if err != nil {
		span.RecordError(err)
		slog.Error("router: agent dispatch failed", "conversation", string(key), "error", err)
		if emitted || draft.Buffered() != "" {
			// The user already saw part of a reply; tell them it broke
			// rather than leaving it dangling mid-sentence.
			r.bus.PublishOutbound(bus.OutboundMessage{
				Channel:  msg.Channel,
				ChatID:   msg.ChatID,
				Content:  "⚠️ Reply interrupted. Please try again.",
				ThreadID: outboundThreadID(msg),
			})
		}
		// History untouched: a failed turn appends nothing.
		r.offset.Advance(msg.Channel, msg.UpdateID)
		return nil
	}
	draft.Close()

	now := r.now()
	r.hist.Append(key, sessions.HistoryEntry{
		Role: "user", Sender: senderLabel(msg), Text: msg.Content, Timestamp: now,
	}, msg.HistoryLimit)
	r.hist.Append(key, sessions.HistoryEntry{
		Role: "assistant", Text: reply, Timestamp: now,
	}, msg.HistoryLimit)
	if r.sess != nil {
		r.sess.GetOrCreate(key)
		r.sess.RecordTurn(key)
	}
	r.offset.Advance(msg.Channel, msg.UpdateID)

	slog.Info("router: turn complete",
		"conversation", string(key), "sender", msg.SenderID, "reply_chars", len(reply))
	return nil
}

// resolveVerdict assembles the policy input from configuration, pairing
// state, group/topic overrides, and the session activation override.
func (r *Router) resolveVerdict(key sessions.ConversationKey, msg bus.InboundMessage, set channelSettings) channels.Verdict {
	peer := sessions.PeerKind(msg.PeerKind)
	if peer == "" {
		peer = sessions.PeerDirect
	}

	in := channels.PolicyInput{
		PeerKind:       peer,
		DMPolicy:       set.dmPolicy,
		GroupPolicy:    set.groupPolicy,
		AllowFrom:      set.allowFrom,
		GroupAllowFrom: set.groupAllowFrom,
		SenderID:       msg.SenderID,
		SenderHandle:   msg.SenderHandle,
		RequireMention: set.requireMention,
	}

	if peer == sessions.PeerDirect && r.pair != nil {
		in.Paired = r.pair.IsPaired(msg.SenderID, msg.Channel)
	}

	if peer == sessions.PeerGroup {
		if g := groupOverride(set.groups, msg.ChatID); g != nil {
			if g.Enabled != nil && !*g.Enabled {
				return channels.Verdict{Reason: "group disabled by override", Rule: "group:override-disabled"}
			}
			if len(g.AllowFrom) > 0 {
				in.GroupAllowFrom = g.AllowFrom
			}
			in.GroupRequireMention = g.RequireMention
			topicID := msg.ThreadID
			if msg.ThreadCapable && topicID <= 0 {
				topicID = sessions.GeneralTopicID
			}
			if t := g.TopicFor(topicID); t != nil {
				in.TopicRequireMention = t.RequireMention
			}
		}
		if r.sess != nil {
			in.Activation = r.sess.Activation(key)
		}
	}

	return channels.ResolvePolicy(in)
}

// promptPairing issues (or re-uses) the sender's pairing code and announces
// it, debounced so repeat messages do not spam the chat.
func (r *Router) promptPairing(msg bus.InboundMessage) {
	if r.pair == nil {
		return
	}
	code, created, err := r.pair.RequestPairing(msg.SenderID, msg.Channel, msg.ChatID)
	if err != nil {
		slog.Error("router: pairing upsert failed",
			"channel", msg.Channel, "sender", msg.SenderID, "error", err)
		return
	}

	debounceKey := msg.Channel + ":" + msg.SenderID
	now := r.now()
	r.mu.Lock()
	last, seen := r.lastPromptAt[debounceKey]
	if !created && seen && now.Sub(last) < pairingPromptDebounce {
		r.mu.Unlock()
		slog.Debug("router: pairing prompt suppressed",
			"channel", msg.Channel, "sender", msg.SenderID)
		return
	}
	r.lastPromptAt[debounceKey] = now
	r.mu.Unlock()

	slog.Info("router: pairing requested",
		"channel", msg.Channel, "sender", msg.SenderID, "created", created)
	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: fmt.Sprintf(
			"🔒 Pairing required. Your code: %s\nAsk the operator to run: gateclaw pairing approve %s",
			code, code),
	})
}

// channelSettings is the per-channel policy snapshot the router reads for
// one event.
type channelSettings struct {
	dmPolicy       channels.DMPolicy
	groupPolicy    channels.GroupPolicy
	allowFrom      []string
	groupAllowFrom []string
	requireMention bool
	groups         map[string]*config.GroupConfig
	chunkLimit     int
	flushMode      channels.FlushMode
}

// channelSettings reads through a config snapshot so the hot-reload
// watcher can swap the live config underneath concurrently running turns.
func (r *Router) channelSettings(channel string) channelSettings {
	snap := r.cfg.Snapshot()
	switch channel {
	case "discord":
		dc := snap.Channels.Discord
		return channelSettings{
			dmPolicy:       channels.DMPolicy(dc.DMPolicy),
			groupPolicy:    channels.GroupPolicy(dc.GroupPolicy),
			allowFrom:      dc.AllowFrom,
			groupAllowFrom: dc.GroupAllowFrom,
			requireMention: mentionDefault(dc.RequireMention),
			groups:         dc.Groups,
			chunkLimit:     dc.TextChunkLimit,
			flushMode:      channels.FlushOff,
		}
	default:
		tg := snap.Channels.Telegram
		return channelSettings{
			dmPolicy:       channels.DMPolicy(tg.DMPolicy),
			groupPolicy:    channels.GroupPolicy(tg.GroupPolicy),
			allowFrom:      tg.AllowFrom,
			groupAllowFrom: tg.GroupAllowFrom,
			requireMention: mentionDefault(tg.RequireMention),
			groups:         tg.Groups,
			chunkLimit:     tg.TextChunkLimit,
			flushMode:      flushMode(tg.StreamMode),
		}
	}
}

// mentionDefault: groups require a mention unless explicitly disabled.
func mentionDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// pushBlocks feeds a fragment to the draft, marking a boundary after every
// paragraph break so block mode flushes whole paragraphs as they complete.
func pushBlocks(draft *channels.DraftStream, fragment string) {
	for {
		i := strings.Index(fragment, "\n\n")
		if i < 0 {
			draft.Push(fragment)
			return
		}
		draft.Push(fragment[:i+2])
		draft.MarkBoundary()
		fragment = fragment[i+2:]
	}
}

func flushMode(streamMode string) channels.FlushMode {
	switch streamMode {
	case "partial":
		return channels.FlushPartial
	case "block":
		return channels.FlushBlock
	default:
		return channels.FlushOff
	}
}

func groupOverride(groups map[string]*config.GroupConfig, chatID string) *config.GroupConfig {
	if g, ok := groups[chatID]; ok {
		return g
	}
	return groups["*"]
}

// outboundThreadID maps the General topic back to "no thread": the platform
// rejects sends that name the General topic explicitly.
func outboundThreadID(msg bus.InboundMessage) int {
	if msg.ThreadID == sessions.GeneralTopicID {
		return 0
	}
	return msg.ThreadID
}

func senderLabel(msg bus.InboundMessage) string {
	if msg.SenderHandle != "" {
		return msg.SenderHandle
	}
	return msg.SenderID
}
