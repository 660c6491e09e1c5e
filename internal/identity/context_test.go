package identity

import (
	"context"
	"testing"
)

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{ID: "op-1", Role: RoleOperator})
	actor, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatal("actor not found in context")
	}
	if actor.ID != "op-1" || actor.Role != RoleOperator {
		t.Errorf("actor = %+v", actor)
	}
}

func TestActorMissing(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatal("empty context should have no actor")
	}
}

func TestCanAssign(t *testing.T) {
	if !(Actor{ID: "a", Role: RoleAdmin}).CanAssign() {
		t.Error("admin should assign")
	}
	if !(Actor{ID: "o", Role: RoleOperator}).CanAssign() {
		t.Error("operator should assign")
	}
	if (Actor{ID: "v", Role: RoleViewer}).CanAssign() {
		t.Error("viewer should not assign")
	}
}
