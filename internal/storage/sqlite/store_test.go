package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/asfreeas-aatto/aatto/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "games.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSession(t *testing.T, s *Store, id string, created time.Time) {
	t.Helper()
	_, err := s.CreateSession(context.Background(), storage.SessionRecord{
		ID:        id,
		Mode:      "rank",
		Theme:     "벚꽃",
		PlayerIDs: [2]string{"alice", "bob"},
		TimeLimit: 180 * time.Second,
		CreatedAt: created,
	})
	require.NoError(t, err)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.db")
	s, err := Open(path)
	require.NoError(t, err)
	seedSession(t, s, "g1", time.Now())
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err, "migrations should be idempotent")
	defer s.Close()
	rec, err := s.GetSession(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "벚꽃", rec.Theme)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedSession(t, s, "g1", created)

	_, err := s.CreateSession(ctx, storage.SessionRecord{ID: "g1", Mode: "rank"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	rec, err := s.GetSession(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusActive, rec.Status)
	assert.Equal(t, [2]string{"alice", "bob"}, rec.PlayerIDs)
	assert.Equal(t, 180*time.Second, rec.TimeLimit)
	assert.True(t, created.Equal(rec.CreatedAt))
	assert.True(t, rec.EndedAt.IsZero())

	ended := created.Add(4 * time.Minute)
	require.NoError(t, s.FinalizeSession(ctx, "g1", "alice", ended))
	rec, err = s.GetSession(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFinished, rec.Status)
	assert.Equal(t, "alice", rec.WinnerID)
	assert.True(t, ended.Equal(rec.EndedAt))

	assert.ErrorIs(t, s.FinalizeSession(ctx, "nope", "", ended), storage.ErrNotFound)
	_, err = s.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSubmissionsAndVotes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedSession(t, s, "g1", now)

	for i, who := range []string{"alice", "bob"} {
		_, err := s.AppendSubmission(ctx, storage.SubmissionRecord{
			ID:            "p-" + who,
			SessionID:     "g1",
			ParticipantID: who,
			Theme:         "벚꽃",
			Lines:         [3]string{"벚", "꽃", who},
			CreatedAt:     now.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	_, err := s.AppendSubmission(ctx, storage.SubmissionRecord{ID: "p-again", SessionID: "g1", ParticipantID: "alice"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists, "one poem per participant")

	require.NoError(t, s.AppendVote(ctx, storage.VoteRecord{SessionID: "g1", VoterID: "v1", SubmissionID: "p-bob", CreatedAt: now}))
	require.NoError(t, s.AppendVote(ctx, storage.VoteRecord{SessionID: "g1", VoterID: "v2", SubmissionID: "p-bob", CreatedAt: now}))
	err = s.AppendVote(ctx, storage.VoteRecord{SessionID: "g1", VoterID: "v1", SubmissionID: "p-alice", CreatedAt: now})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists, "one vote per voter")
	assert.Error(t, s.AppendVote(ctx, storage.VoteRecord{SessionID: "g1", VoterID: "v3", SubmissionID: "missing", CreatedAt: now}))

	poems, err := s.ListSubmissions(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, poems, 2)
	assert.Equal(t, "p-bob", poems[0].ID, "most voted first")
	assert.Equal(t, 2, poems[0].Votes)
	assert.Equal(t, 0, poems[1].Votes)
	assert.Equal(t, [3]string{"벚", "꽃", "alice"}, poems[1].Lines)
}

func TestCancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CreateSession(ctx, storage.SessionRecord{ID: "g1"})
	assert.ErrorIs(t, err, context.Canceled)
}
