package sessions

import (
	"testing"
)

func TestManager_ActivationOverride(t *testing.T) {
	m := NewManager("")
	key := ConversationKey("telegram:-100123456:topic:1")

	if got := m.Activation(key); got != ActivationNone {
		t.Errorf("unknown session Activation = %q, want none", got)
	}

	m.SetActivation(key, ActivationAlways)
	if got := m.Activation(key); got != ActivationAlways {
		t.Errorf("Activation = %q, want always", got)
	}

	m.Reset(key)
	if got := m.Activation(key); got != ActivationNone {
		t.Errorf("Reset should clear override, got %q", got)
	}
}

func TestManager_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	key := ConversationKey("telegram:42")

	m := NewManager(dir)
	m.GetOrCreate(key)
	m.SetActivation(key, ActivationMention)
	m.RecordTurn(key)
	if err := m.Save(key); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := NewManager(dir)
	if got := reloaded.Activation(key); got != ActivationMention {
		t.Errorf("reloaded Activation = %q, want mention", got)
	}
	s := reloaded.GetOrCreate(key)
	if s.TurnCount != 1 {
		t.Errorf("reloaded TurnCount = %d, want 1", s.TurnCount)
	}
}

func TestManager_List(t *testing.T) {
	m := NewManager("")
	m.GetOrCreate("telegram:1")
	m.GetOrCreate("discord:2")

	if got := len(m.List()); got != 2 {
		t.Errorf("List len = %d, want 2", got)
	}
}
