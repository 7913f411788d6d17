package memoir

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir/internal/domain"
	models "memoir/internal/domain/models/memoir"
	memoirSvc "memoir/internal/domain/services/memoir"
)

func TestAppendValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  *memoirSvc.AppendContentRequest
	}{
		{"missing project", &memoirSvc.AppendContentRequest{ContributorID: "a", ContentType: "text", Content: map[string]interface{}{"text": "x"}}},
		{"unknown type", &memoirSvc.AppendContentRequest{ProjectID: "p", ContributorID: "a", ContentType: "video", Content: map[string]interface{}{"url": "x"}}},
		{"text without text", &memoirSvc.AppendContentRequest{ProjectID: "p", ContributorID: "a", ContentType: "text", Content: map[string]interface{}{"body": "x"}}},
		{"qa without answer", &memoirSvc.AppendContentRequest{ProjectID: "p", ContributorID: "a", ContentType: "structured_qa", Content: map[string]interface{}{"question_text": "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.content.Append(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestAppendNormalizesTags(t *testing.T) {
	env := newTestEnv(t)
	item := env.addAnswer(t, "proj", "alice", "Yes.", " Childhood", "childhood", "CAREER")
	assert.Equal(t, []string{"childhood", "career"}, item.Tags)
	assert.Equal(t, 1, item.Version)
	assert.Equal(t, testNow, item.CreatedAt)
}

func TestSupersedeOnlyLatestVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	original := env.addAnswer(t, "proj", "alice", "Born in 1940.", "birth")

	corrected, err := env.content.Supersede(ctx, original.ID, &memoirSvc.SupersedeContentRequest{
		Content: map[string]interface{}{"question_text": "When were you born?", "answer_text": "Born in 1941."},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, corrected.Version)
	assert.Equal(t, original.ID, *corrected.PreviousVersionID)
	assert.Equal(t, original.Tags, corrected.Tags)
	assert.Equal(t, "alice", corrected.ContributorID)
	assert.Greater(t, corrected.Sequence, original.Sequence)

	_, err = env.content.Supersede(ctx, original.ID, &memoirSvc.SupersedeContentRequest{
		Content: map[string]interface{}{"answer_text": "Born in 1942."},
	})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.ReasonNotLatest, conflict.Reason)

	current, err := env.content.ListCurrent(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, corrected.ID, current[0].ID)

	lineage, err := env.content.Lineage(ctx, corrected.ID)
	require.NoError(t, err)
	require.Len(t, lineage, 2)
	assert.Equal(t, original.ID, lineage[0].ID)
	assert.Equal(t, corrected.ID, lineage[1].ID)
}

func TestListSincePagesInSequenceOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, env.addAnswer(t, "proj", "alice", fmt.Sprintf("Memory %d", i)).ID)
	}
	env.addAnswer(t, "elsewhere", "zoe", "Not in this pool.")

	page, err := env.content.ListSince(ctx, "proj", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], contentIDs(page.Items))
	assert.True(t, page.HasMore)

	page, err = env.content.ListSince(ctx, "proj", page.After, 10)
	require.NoError(t, err)
	assert.Equal(t, ids[2:], contentIDs(page.Items))
	assert.False(t, page.HasMore)

	empty, err := env.content.ListSince(ctx, "proj", page.After, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, page.After, empty.After)

	var walked []string
	err = env.content.Iterate(ctx, "proj", 0, func(item models.ContentItem) error {
		walked = append(walked, item.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ids, walked)
}

func contentIDs(items []models.ContentItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
