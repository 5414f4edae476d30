package index

import (
	"context"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ragmag/ragmag/domain/document"
)

func newMockedRedis(t *testing.T) (*RedisBackend, *mock.Client) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	return newRedisBackendWithClient(client, "ragmag", discardLogger()), client
}

func TestRedisBackend_InsertCreatesIndexAndWritesHashes(t *testing.T) {
	b, client := newMockedRedis(t)

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE" && cmd[1] == "ragmag:idx"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	client.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			results := make([]rueidis.RedisResult, len(cmds))
			for i := range cmds {
				require.Equal(t, "HSET", cmds[i].Commands()[0])
				results[i] = mock.Result(mock.RedisInt64(6))
			}
			return results
		})

	fragments, vectors := pageFragments("doc-1", 2)
	err := b.Insert(context.Background(), fragments, vectors)
	require.NoError(t, err)
}

func TestRedisBackend_InsertToleratesExistingIndex(t *testing.T) {
	b, client := newMockedRedis(t)

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	client.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{mock.Result(mock.RedisInt64(6))})

	fragments, vectors := pageFragments("doc-1", 1)
	err := b.Insert(context.Background(), fragments, vectors)
	require.NoError(t, err)
}

func TestRedisBackend_InsertRejectsEmpty(t *testing.T) {
	b, _ := newMockedRedis(t)

	err := b.Insert(context.Background(), nil, nil)
	require.ErrorIs(t, err, document.ErrNoFragments)
}

func TestRedisBackend_DeleteByDocument(t *testing.T) {
	b, client := newMockedRedis(t)

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[1] == "ragmag:idx"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("ragmag:frag:f1"),
			mock.RedisArray(mock.RedisString("doc"), mock.RedisString("doc-1")),
			mock.RedisString("ragmag:frag:f2"),
			mock.RedisArray(mock.RedisString("doc"), mock.RedisString("doc-1")),
		)))

	client.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			results := make([]rueidis.RedisResult, len(cmds))
			for i := range cmds {
				require.Equal(t, "DEL", cmds[i].Commands()[0])
				results[i] = mock.Result(mock.RedisInt64(1))
			}
			return results
		})

	err := b.DeleteByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
}

func TestRedisBackend_DeleteUnknownDocument(t *testing.T) {
	b, client := newMockedRedis(t)

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	err := b.DeleteByDocument(context.Background(), "nope")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestRedisBackend_DeleteBeforeFirstInsert(t *testing.T) {
	b, client := newMockedRedis(t)

	// Before the first insert there is no FT index. The missing-index reply
	// is treated as an empty result, so the document reads as unknown.
	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisError("no such index")))

	err := b.DeleteByDocument(context.Background(), "doc-1")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestRedisBackend_ReassignDocument(t *testing.T) {
	b, client := newMockedRedis(t)

	// Target id must be vacant.
	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "@doc:{doc\\-1}"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "@doc:{staging\\-1}"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("ragmag:frag:f1"),
			mock.RedisArray(mock.RedisString("doc"), mock.RedisString("staging-1")),
		)))

	client.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			parts := cmds[0].Commands()
			require.Equal(t, []string{"HSET", "ragmag:frag:f1", "doc", "doc-1"}, parts)
			return []rueidis.RedisResult{mock.Result(mock.RedisInt64(0))}
		})

	err := b.ReassignDocument(context.Background(), "staging-1", "doc-1")
	require.NoError(t, err)
}

func TestRedisBackend_GetFragment(t *testing.T) {
	b, client := newMockedRedis(t)

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "ragmag:frag:f1")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"doc":      mock.RedisString("doc-1"),
			"filename": mock.RedisString("manual.pdf"),
			"page":     mock.RedisString("3"),
			"text":     mock.RedisString("page text"),
			"image":    mock.RedisString(`{"kind":"local","location":"/img/doc-1/page_3.jpg"}`),
		})))

	f, err := b.GetFragment(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "f1", f.ID())
	assert.Equal(t, "doc-1", f.DocumentID())
	assert.Equal(t, "manual.pdf", f.Filename())
	assert.Equal(t, 3, f.PageNumber())
	assert.Equal(t, "/img/doc-1/page_3.jpg", f.Image().Location)
}

func TestRedisBackend_GetFragmentMissing(t *testing.T) {
	b, client := newMockedRedis(t)

	client.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "ragmag:frag:gone")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	_, err := b.GetFragment(context.Background(), "gone")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestRedisBackend_Search(t *testing.T) {
	b, client := newMockedRedis(t)

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "*=>[KNN 2 @vector $BLOB]"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("ragmag:frag:f1"),
			mock.RedisArray(
				mock.RedisString("doc"), mock.RedisString("doc-1"),
				mock.RedisString("filename"), mock.RedisString("a.pdf"),
				mock.RedisString("page"), mock.RedisString("1"),
				mock.RedisString("text"), mock.RedisString("about cats"),
				mock.RedisString("__vector_score"), mock.RedisString("0.1"),
			),
			mock.RedisString("ragmag:frag:f2"),
			mock.RedisArray(
				mock.RedisString("doc"), mock.RedisString("doc-2"),
				mock.RedisString("filename"), mock.RedisString("b.pdf"),
				mock.RedisString("page"), mock.RedisString("4"),
				mock.RedisString("text"), mock.RedisString("about dogs"),
				mock.RedisString("__vector_score"), mock.RedisString("0.4"),
			),
		)))

	results, err := b.Search(context.Background(), []float64{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "f1", results[0].Fragment.ID())
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
	assert.Equal(t, "about dogs", results[1].Fragment.Text())
	assert.InDelta(t, 0.6, results[1].Score, 1e-9)
}

func TestRedisBackend_PersistIsNoop(t *testing.T) {
	b, _ := newMockedRedis(t)
	require.NoError(t, b.Persist(context.Background()))
}

func TestVectorToBytes(t *testing.T) {
	encoded := vectorToBytes([]float64{1.0, 2.0})
	assert.Len(t, encoded, 8)
}

func TestEscapeTag(t *testing.T) {
	assert.Equal(t, `a\-b\.c`, escapeTag("a-b.c"))
}
