package rbac

import "testing"

func TestCheckerHas(t *testing.T) {
	c := NewChecker(nil)
	if !c.Has("student", "attempt:create") {
		t.Fatalf("student cannot create attempts")
	}
	if c.Has("student", "attempt:view-all") {
		t.Fatalf("student sees all attempts")
	}
	if !c.Has("admin", "anything:at-all") {
		t.Fatalf("admin wildcard broken")
	}
	if c.Has("unknown-role", "quiz:view") {
		t.Fatalf("unknown role granted a permission")
	}
}

func TestCheckerAny(t *testing.T) {
	c := NewChecker(nil)
	if !c.Any("student", "attempt:view-all", "attempt:view-own") {
		t.Fatalf("Any missed view-own")
	}
	if c.Any("student", "quiz:create", "quiz:delete") {
		t.Fatalf("Any granted teacher permissions to student")
	}
}

func TestMatchPermWildcard(t *testing.T) {
	if !matchPerm("attempt:*", "attempt:grade") {
		t.Fatalf("prefix wildcard broken")
	}
	if matchPerm("attempt:*", "quiz:view") {
		t.Fatalf("prefix wildcard over-matched")
	}
}
