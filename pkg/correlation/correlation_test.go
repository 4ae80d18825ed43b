// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-capsule.
//
// go-capsule is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}

func TestMissing(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	if got := RequestID(nil); got != "" {
		t.Fatalf("expected empty id for nil context, got %q", got)
	}
}

func TestNilContext(t *testing.T) {
	ctx := WithRequestID(nil, "req-2")
	if got := RequestID(ctx); got != "req-2" {
		t.Fatalf("expected req-2, got %q", got)
	}
}

func TestNewID(t *testing.T) {
	id := NewID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected a uuid, got %q: %v", id, err)
	}
	if NewID() == id {
		t.Fatal("ids should be unique")
	}
}

func TestGetOrGenerate(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-3")
	if got := GetOrGenerate(ctx); got != "req-3" {
		t.Fatalf("expected existing id, got %q", got)
	}

	minted := GetOrGenerate(context.Background())
	if minted == "" {
		t.Fatal("expected a minted id")
	}
	if _, err := uuid.Parse(minted); err != nil {
		t.Fatalf("minted id should be a uuid: %v", err)
	}
}

func TestForeignKeyDoesNotCollide(t *testing.T) {
	type otherKey string
	ctx := context.WithValue(context.Background(), otherKey("request-id"), "foreign")
	if got := RequestID(ctx); got != "" {
		t.Fatalf("foreign context value should not be visible, got %q", got)
	}
}
