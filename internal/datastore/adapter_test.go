package datastore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/studyplanner/planner-service/internal/identity"
	"github.com/studyplanner/planner-service/internal/plugin/store/memory"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, profileID string) *Adapter {
	t.Helper()
	ids := identity.NewResolver(profileID, t.TempDir())
	return NewAdapter(memory.New(), ids, "artifacts", "study-planner-v1")
}

func TestCreateStampsResolvedOwner(t *testing.T) {
	a := newTestAdapter(t, "p1")
	ctx := context.Background()

	// A spoofed owner field must lose to the resolved profile.
	id, err := a.Create(ctx, "M_tasks", map[string]any{
		"text":           "read ch. 4",
		"completed":      false,
		"ownerProfileId": "someone-else",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := a.FetchDocument(ctx, "M_tasks", id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "p1", rec.Owner())
	require.Equal(t, "read ch. 4", rec["text"])
}

func TestCreateAttributesWritesWithoutAuth(t *testing.T) {
	// No injected profile and no auth user: the persisted local id owns
	// the document.
	ids := identity.NewResolver("", t.TempDir())
	a := NewAdapter(memory.New(), ids, "artifacts", "study-planner-v1")

	id, err := a.Create(context.Background(), "M_tasks", map[string]any{"text": "x"})
	require.NoError(t, err)

	rec, err := a.FetchDocument(context.Background(), "M_tasks", id)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rec.Owner(), "local_"), "owner %q", rec.Owner())
}

func TestCreatedRecordRoundTrips(t *testing.T) {
	a := newTestAdapter(t, "p1")
	ctx := context.Background()

	id, err := a.Create(ctx, "M_grades", map[string]any{
		"courseId": "c1",
		"grade":    18.5,
		"maxGrade": 20.0,
	})
	require.NoError(t, err)

	q, err := a.QueryOrdered("M_grades", "")
	require.NoError(t, err)
	records, err := a.FetchOnce(ctx, q)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, id, records[0].ID())
	require.False(t, records[0].CreatedAt().IsZero())
	require.Equal(t, 18.5, records[0]["grade"])
}

func TestQueryOrderedSortsByCustomField(t *testing.T) {
	a := newTestAdapter(t, "p1")
	ctx := context.Background()

	_, err := a.Create(ctx, "M_schedule", map[string]any{"title": "physics", "day": 3})
	require.NoError(t, err)
	_, err = a.Create(ctx, "M_schedule", map[string]any{"title": "algebra", "day": 1})
	require.NoError(t, err)

	q, err := a.QueryOrdered("M_schedule", "day")
	require.NoError(t, err)
	records, err := a.FetchOnce(ctx, q)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "algebra", records[0]["title"])
	require.Equal(t, "physics", records[1]["title"])
}

func TestUpdateMergesPatch(t *testing.T) {
	a := newTestAdapter(t, "p1")
	ctx := context.Background()

	id, err := a.Create(ctx, "M_tasks", map[string]any{"text": "essay", "completed": false})
	require.NoError(t, err)

	require.NoError(t, a.Update(ctx, "M_tasks", id, map[string]any{"completed": true}))

	rec, err := a.FetchDocument(ctx, "M_tasks", id)
	require.NoError(t, err)
	require.Equal(t, true, rec["completed"])
	require.Equal(t, "essay", rec["text"])
}

func TestUpdateMissingDocumentIsWriteError(t *testing.T) {
	a := newTestAdapter(t, "p1")

	err := a.Update(context.Background(), "M_tasks", "nope", map[string]any{"completed": true})
	require.Error(t, err)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	require.Equal(t, "update", we.Op)

	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDeleteMissingDocumentIsWriteError(t *testing.T) {
	a := newTestAdapter(t, "p1")

	err := a.Delete(context.Background(), "M_tasks", "nope")
	var we *WriteError
	require.ErrorAs(t, err, &we)
	require.Equal(t, "delete", we.Op)
}

func TestPathValidationErrorsPassThrough(t *testing.T) {
	a := newTestAdapter(t, "p1")

	_, err := a.Create(context.Background(), "", map[string]any{"text": "x"})
	require.Error(t, err)
	var we *WriteError
	require.False(t, errors.As(err, &we), "path errors are not write errors")
}
