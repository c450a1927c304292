package jobstate

import (
	"context"
	"testing"

	"github.com/alexbckr/sdk/internal/stepmodel"
	"github.com/stretchr/testify/require"
)

func TestJobState_DuplicateKeyRejected(t *testing.T) {
	engine := NewEngine("", nil, nil)
	ctx := context.Background()

	first := engine.NewJobState("step-a")
	require.NoError(t, first.AddEntity(ctx, &stepmodel.Entity{Key: "k1", Type: "acme_widget"}))
	require.NoError(t, first.Flush(ctx))

	second := engine.NewJobState("step-b")
	err := second.AddEntity(ctx, &stepmodel.Entity{Key: "k1", Type: "acme_widget"})
	require.Error(t, err)

	var dupErr *DuplicateKeyError
	require.ErrorAs(t, err, &dupErr)
	require.Equal(t, "k1", dupErr.Key)
	require.Equal(t, "step-a", dupErr.FirstStepID)
	require.Equal(t, "step-b", dupErr.SecondStepID)
}

func TestJobState_EncounteredTypesPerStep(t *testing.T) {
	engine := NewEngine("", nil, nil)
	ctx := context.Background()

	js := engine.NewJobState("step-a")
	require.NoError(t, js.AddEntity(ctx, &stepmodel.Entity{Key: "k1", Type: "acme_widget"}))
	require.NoError(t, js.AddEntity(ctx, &stepmodel.Entity{Key: "k2", Type: "acme_gadget"}))

	types := js.EncounteredTypes()
	require.ElementsMatch(t, []string{"acme_widget", "acme_gadget"}, types)
}

func TestJobState_FindAndIterateAfterFlush(t *testing.T) {
	engine := NewEngine("", nil, nil)
	ctx := context.Background()

	writer := engine.NewJobState("step-a")
	require.NoError(t, writer.AddEntity(ctx, &stepmodel.Entity{Key: "k1", Type: "acme_widget"}))
	require.NoError(t, writer.AddEntity(ctx, &stepmodel.Entity{Key: "k2", Type: "acme_widget"}))

	reader := engine.NewJobState("step-b")
	_, ok, _ := reader.FindEntity(ctx, "k1")
	require.False(t, ok, "entity must not be visible to other steps before flush")

	require.NoError(t, writer.Flush(ctx))

	e, ok, err := reader.FindEntity(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "acme_widget", e.Type)

	var seen []string
	require.NoError(t, reader.IterateEntities(ctx, "acme_widget", func(e *stepmodel.Entity) error {
		seen = append(seen, e.Key)
		return nil
	}))
	require.ElementsMatch(t, []string{"k1", "k2"}, seen)
}

func TestJobState_SharedDataStore(t *testing.T) {
	engine := NewEngine("", nil, nil)

	producer := engine.NewJobState("producer")
	producer.SetData("global", "artifact", 42)

	consumer := engine.NewJobState("consumer")
	v, ok := consumer.GetData("global", "artifact")
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestJobState_BeforeAddEntityHook(t *testing.T) {
	hookCalls := 0
	hook := func(ctx context.Context, e *stepmodel.Entity) (*stepmodel.Entity, error) {
		hookCalls++
		e.Properties = map[string]any{"tagged": true}
		return e, nil
	}
	engine := NewEngine("", hook, nil)
	ctx := context.Background()

	js := engine.NewJobState("step-a")
	require.NoError(t, js.AddEntity(ctx, &stepmodel.Entity{Key: "k1", Type: "acme_widget"}))
	require.Equal(t, 1, hookCalls)

	e, ok, _ := js.FindEntity(ctx, "k1")
	require.False(t, ok, "not flushed yet")

	require.NoError(t, js.Flush(ctx))
	e, ok, _ = js.FindEntity(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, true, e.Properties["tagged"])
}

func TestJobState_RelationshipsSkipBeforeAddHook(t *testing.T) {
	hookCalls := 0
	hook := func(ctx context.Context, e *stepmodel.Entity) (*stepmodel.Entity, error) {
		hookCalls++
		return e, nil
	}
	engine := NewEngine("", hook, nil)
	ctx := context.Background()

	js := engine.NewJobState("step-a")
	require.NoError(t, js.AddRelationship(ctx, &stepmodel.Relationship{
		Key:           "rel1",
		Type:          "acme_widget_has_gadget",
		FromEntityKey: "k1",
		ToEntityKey:   "k2",
	}))
	require.Equal(t, 0, hookCalls)
}
