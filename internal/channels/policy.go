package channels

import (
	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
)

// Verdict is the access-control decision for one inbound event. It is
// derived per event from configuration plus pairing/allow-list state and
// never persisted.
type Verdict struct {
	Admit          bool
	RequireMention bool   // admit only applies when the bot is referenced
	PairingPrompt  bool   // deny, but announce (or reuse) a pairing code
	Reason         string // human-readable explanation
	Rule           string // winning rule, for diagnostics and tests
}

// PolicyInput collects everything the resolver needs for one event.
// Mention-requirement overrides are layered: session activation beats the
// topic setting, which beats the group setting, which beats the channel
// default.
type PolicyInput struct {
	PeerKind sessions.PeerKind

	DMPolicy    DMPolicy
	GroupPolicy GroupPolicy

	AllowFrom      []string // DM sender allow-list
	GroupAllowFrom []string // group sender allow-list

	SenderID     string
	SenderHandle string

	// Paired reports whether the pairing store already approved this sender.
	Paired bool

	RequireMention      bool  // channel default for groups
	GroupRequireMention *bool // per-group override (nil = inherit)
	TopicRequireMention *bool // per-topic override (nil = inherit)

	Activation sessions.Activation // per-conversation override, wins over config
}

// ResolvePolicy turns configuration plus pairing state into a single
// admit/deny/require-mention verdict. Pure function: all state arrives in
// the input.
//
// DMs:
//
//	disabled  → deny, fully silent
//	open      → admit (config validation guarantees allow_from contains "*")
//	allowlist → admit when listed, deny silently otherwise
//	pairing   → admit when paired or listed, otherwise deny with a pairing
//	            prompt (the one deny that is announced to the sender)
//
// Groups:
//
//	disabled  → deny, fully silent
//	open      → admit, mention gating still applies
//	allowlist → admit when the sender is listed, mention gating still
//	            applies; unlisted senders are dropped silently (no prompt,
//	            intentional asymmetry with DM pairing)
func ResolvePolicy(in PolicyInput) Verdict {
	if in.PeerKind == sessions.PeerGroup {
		return resolveGroupPolicy(in)
	}
	return resolveDMPolicy(in)
}

func resolveDMPolicy(in PolicyInput) Verdict {
	policy := in.DMPolicy
	if policy == "" {
		policy = DMPolicyPairing // secure default
	}

	switch policy {
	case DMPolicyDisabled:
		return Verdict{Reason: "DMs disabled", Rule: "dm:disabled"}

	case DMPolicyOpen:
		return Verdict{Admit: true, Reason: "open DM policy", Rule: "dm:open"}

	case DMPolicyAllowlist:
		if AllowListMatch(in.AllowFrom, in.SenderID, in.SenderHandle) {
			return Verdict{Admit: true, Reason: "sender in allow-list", Rule: "dm:allowlist"}
		}
		return Verdict{Reason: "sender not in allow-list", Rule: "dm:allowlist"}

	default: // pairing, or unknown value → secure default
		if in.Paired {
			return Verdict{Admit: true, Reason: "sender paired", Rule: "dm:pairing"}
		}
		if AllowListMatch(in.AllowFrom, in.SenderID, in.SenderHandle) {
			return Verdict{Admit: true, Reason: "sender in allow-list", Rule: "dm:pairing:allowlist"}
		}
		return Verdict{PairingPrompt: true, Reason: "sender not paired", Rule: "dm:pairing"}
	}
}

func resolveGroupPolicy(in PolicyInput) Verdict {
	policy := in.GroupPolicy
	if policy == "" {
		policy = GroupPolicyOpen
	}

	switch policy {
	case GroupPolicyDisabled:
		return Verdict{Reason: "groups disabled", Rule: "group:disabled"}

	case GroupPolicyAllowlist:
		allow := in.GroupAllowFrom
		if len(allow) == 0 {
			allow = in.AllowFrom
		}
		if !AllowListMatch(allow, in.SenderID, in.SenderHandle) {
			return Verdict{Reason: "group sender not in allow-list", Rule: "group:allowlist"}
		}
		mention, rule := resolveMention(in)
		return Verdict{Admit: true, RequireMention: mention,
			Reason: "group sender in allow-list", Rule: joinRules("group:allowlist", rule)}

	default: // open
		mention, rule := resolveMention(in)
		return Verdict{Admit: true, RequireMention: mention,
			Reason: "open group policy", Rule: joinRules("group:open", rule)}
	}
}

// resolveMention applies the mention-requirement precedence chain and
// reports which layer decided.
func resolveMention(in PolicyInput) (bool, string) {
	switch in.Activation {
	case sessions.ActivationAlways:
		return false, "mention:session-always"
	case sessions.ActivationMention:
		return true, "mention:session-mention"
	}
	if in.TopicRequireMention != nil {
		return *in.TopicRequireMention, "mention:topic"
	}
	if in.GroupRequireMention != nil {
		return *in.GroupRequireMention, "mention:group"
	}
	return in.RequireMention, "mention:channel-default"
}

func joinRules(a, b string) string {
	return a + "+" + b
}
