package sqlite

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/gateclaw/internal/store"
)

func testStores(t *testing.T) *store.Stores {
	t.Helper()
	stores, err := NewStores(filepath.Join(t.TempDir(), "gateclaw.db"))
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	t.Cleanup(func() { stores.Close() })
	return stores
}

func TestRequestPairing_Idempotent(t *testing.T) {
	s := testStores(t).Pairing

	code1, created, err := s.RequestPairing("999", "telegram", "999")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if !created {
		t.Error("first request should mint a code")
	}
	if n := len(code1); n < 6 || n > 8 {
		t.Errorf("code length %d outside the human-typable 6-8 range", n)
	}

	for i := 0; i < 5; i++ {
		code, created, err := s.RequestPairing("999", "telegram", "999")
		if err != nil {
			t.Fatalf("repeat request %d: %v", i, err)
		}
		if created {
			t.Errorf("repeat request %d claimed a new code was created", i)
		}
		if code != code1 {
			t.Errorf("repeat request %d returned %s, want original %s", i, code, code1)
		}
	}
}

func TestRequestPairing_DistinctSendersDistinctCodes(t *testing.T) {
	s := testStores(t).Pairing

	codeA, _, err := s.RequestPairing("111", "telegram", "111")
	if err != nil {
		t.Fatal(err)
	}
	codeB, _, err := s.RequestPairing("222", "telegram", "222")
	if err != nil {
		t.Fatal(err)
	}
	if codeA == codeB {
		t.Errorf("distinct senders received the same code %s", codeA)
	}
}

func TestRequestPairing_ConcurrentSameSender(t *testing.T) {
	s := testStores(t).Pairing

	const workers = 8
	codes := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _, err := s.RequestPairing("777", "telegram", "777")
			if err != nil {
				t.Errorf("concurrent request: %v", err)
				return
			}
			codes <- code
		}()
	}
	wg.Wait()
	close(codes)

	first := ""
	for code := range codes {
		if first == "" {
			first = code
		} else if code != first {
			t.Fatalf("concurrent upserts produced different codes: %s vs %s", first, code)
		}
	}
}

func TestApproveAndRevoke(t *testing.T) {
	s := testStores(t).Pairing

	code, _, err := s.RequestPairing("999", "telegram", "999")
	if err != nil {
		t.Fatal(err)
	}
	if s.IsPaired("999", "telegram") {
		t.Error("sender paired before approval")
	}

	p, err := s.Approve(code)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p.SenderID != "999" || p.ChatID != "999" {
		t.Errorf("approved request = %+v", p)
	}
	if !s.IsPaired("999", "telegram") {
		t.Error("sender not paired after approval")
	}
	if s.IsPaired("999", "discord") {
		t.Error("approval must be scoped to the channel")
	}

	// The pending request is consumed.
	if _, err := s.Approve(code); err == nil {
		t.Error("second approve of the same code should fail")
	}
	pending, err := s.ListPending("telegram")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending list after approval: %+v", pending)
	}

	if err := s.Revoke("999", "telegram"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if s.IsPaired("999", "telegram") {
		t.Error("sender still paired after revoke")
	}
	if err := s.Revoke("999", "telegram"); err == nil {
		t.Error("revoking an unknown sender should fail")
	}
}

func TestApprove_UnknownCode(t *testing.T) {
	s := testStores(t).Pairing
	if _, err := s.Approve("NOPE1234"); err == nil {
		t.Error("approving an unknown code should fail")
	}
}

func TestOffsetStore_Monotonic(t *testing.T) {
	s := testStores(t).Offsets

	id, err := s.LastUpdateID("telegram")
	if err != nil || id != 0 {
		t.Fatalf("initial offset = %d, %v; want 0, nil", id, err)
	}

	if err := s.SetLastUpdateID("telegram", 10); err != nil {
		t.Fatal(err)
	}
	// A lower write must not regress the stored offset.
	if err := s.SetLastUpdateID("telegram", 7); err != nil {
		t.Fatal(err)
	}

	id, err = s.LastUpdateID("telegram")
	if err != nil {
		t.Fatal(err)
	}
	if id != 10 {
		t.Errorf("offset = %d, want 10", id)
	}

	// Channels are independent.
	id, _ = s.LastUpdateID("discord")
	if id != 0 {
		t.Errorf("discord offset = %d, want 0", id)
	}
}
