package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryTokenRevoker(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("tok-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("tok-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected token to be revoked")
	}
	revoked, err = r.IsRevoked("tok-2")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatalf("expected unknown token to be unrevoked")
	}
}

func TestMemoryTokenRevokerExpiry(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("tok-1", time.Millisecond); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	revoked, err := r.IsRevoked("tok-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatalf("expected expired revocation to lapse")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	srv := miniredis.RunT(t)
	r := NewRedisTokenRevoker(srv.Addr(), "")
	if err := r.Revoke("tok-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("tok-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected token to be revoked")
	}
	srv.FastForward(2 * time.Minute)
	revoked, err = r.IsRevoked("tok-1")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if revoked {
		t.Fatalf("expected revocation to expire")
	}
}
