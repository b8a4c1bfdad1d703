package works

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dlhub/pkg/database"
	"dlhub/pkg/models"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()

	cfg := database.Config{Path: filepath.Join(t.TempDir(), "test.db")}
	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db))
	return NewRepo(db)
}

func testWork(id, title, circle, category string, ts time.Time) models.Work {
	return models.Work{
		ID:            id,
		ProductID:     id,
		Title:         title,
		Circle:        circle,
		Category:      category,
		WorkURL:       "https://www.dlsite.com/maniax/work/=/product_id/" + id + ".html",
		ThumbnailURL:  "https://img.dlsite.jp/x/" + id + ".webp",
		Price:         models.Price{Current: 880, Currency: "JPY"},
		CreatedAt:     ts,
		UpdatedAt:     ts,
		LastFetchedAt: ts,
	}
}

func TestSaveWorks_Upsert(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	w := testWork("RJ100001", "初版タイトル", "しろねこ屋", "SOU", ts)
	require.NoError(t, r.SaveWorks(ctx, []models.Work{w}))

	w.Title = "改訂タイトル"
	w.UpdatedAt = ts.Add(time.Hour)
	require.NoError(t, r.SaveWorks(ctx, []models.Work{w}))

	got, err := r.GetWork(ctx, "RJ100001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "改訂タイトル", got.Title)

	n, err := r.CountWorks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetWork_Missing(t *testing.T) {
	r := newTestRepo(t)

	got, err := r.GetWork(context.Background(), "RJ999999")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetWorks_Chunked(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	var saved []models.Work
	var ids []string
	for i := 1; i <= 25; i++ {
		id := fmt.Sprintf("RJ%06d", i)
		saved = append(saved, testWork(id, "作品"+id, "工房", "SOU", ts))
		ids = append(ids, id)
	}
	require.NoError(t, r.SaveWorks(ctx, saved))

	// 25 ids crosses several IN-clause chunks
	ids = append(ids, "RJ999999")
	got, err := r.GetWorks(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, got, 25)
	assert.Equal(t, "作品RJ000007", got["RJ000007"].Title)
	assert.NotContains(t, got, "RJ999999")
}

func TestList_Filters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	require.NoError(t, r.SaveWorks(ctx, []models.Work{
		testWork("RJ100001", "ねこみみカフェ", "しろねこ屋", "SOU", ts),
		testWork("RJ100002", "魔王討伐記", "ゆうしゃ団", "RPG", ts.Add(time.Minute)),
		testWork("RJ100003", "ねこの大冒険", "しろねこ屋", "RPG", ts.Add(2*time.Minute)),
	}))

	items, err := r.List(ctx, ListQuery{Q: "ねこ"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = r.List(ctx, ListQuery{Category: "rpg"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = r.List(ctx, ListQuery{Q: "ねこ", Category: "RPG"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "RJ100003", items[0].ID)

	total, err := r.Count(ctx, ListQuery{Q: "ねこ"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// circle name matches too
	items, err = r.List(ctx, ListQuery{Q: "ゆうしゃ"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestList_OrderAndPaging(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		w := testWork(fmt.Sprintf("RJ%06d", i), "作品", "工房", "SOU", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, r.SaveWorks(ctx, []models.Work{w}))
	}

	items, err := r.List(ctx, ListQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	// most recently updated first
	assert.Equal(t, "RJ000005", items[0].ID)
	assert.Equal(t, "RJ000004", items[1].ID)

	items, err = r.List(ctx, ListQuery{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "RJ000001", items[0].ID)
}

func TestStats(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	require.NoError(t, r.SaveWorks(ctx, []models.Work{
		testWork("RJ100001", "a", "c1", "SOU", ts),
		testWork("RJ100002", "b", "c2", "SOU", ts),
		testWork("RJ100003", "c", "c3", "RPG", ts),
	}))

	st, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalWorks)
	assert.Equal(t, map[string]int{"SOU": 2, "RPG": 1}, st.ByCategory)
}
