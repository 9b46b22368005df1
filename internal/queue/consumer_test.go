package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
)

func TestFormatEvent(t *testing.T) {
    t.Run("movie created", func(t *testing.T) {
        body, err := json.Marshal(MovieCreatedEvent{
            MovieID: 3, UserID: 1, Username: "alice", Title: "Heat", PublicationDate: "2024-01-02T03:04:05Z",
        })
        require.NoError(t, err)

        line, err := FormatEvent(TypeMovieCreated, body)
        require.NoError(t, err)
        assert.Equal(t, "[2024-01-02T03:04:05Z] Movie created | movie_id=3 | user_id=1 | username=\"alice\" | title=\"Heat\"\n", line)
    })

    t.Run("opinion cleared", func(t *testing.T) {
        body, err := json.Marshal(OpinionChangedEvent{
            MovieID: 3, UserID: 2, LikesCounter: 4, HatesCounter: 1, OccurredAt: "2024-01-02T03:04:05Z",
        })
        require.NoError(t, err)

        line, err := FormatEvent(TypeOpinionChanged, body)
        require.NoError(t, err)
        assert.Contains(t, line, "opinion=none")
        assert.Contains(t, line, "likes=4 | hates=1")
    })

    t.Run("unknown type", func(t *testing.T) {
        _, err := FormatEvent("movie.deleted", []byte(`{}`))
        assert.ErrorContains(t, err, "unknown event type")
    })

    t.Run("bad body", func(t *testing.T) {
        _, err := FormatEvent(TypeOpinionChanged, []byte(`{`))
        assert.Error(t, err)
    })
}

func TestConsumerHandleAppends(t *testing.T) {
    path := filepath.Join(t.TempDir(), "logs", "activity.log")
    c := &Consumer{LogPath: path, Log: zap.NewNop()}

    body, err := json.Marshal(OpinionChangedEvent{MovieID: 1, UserID: 2, Opinion: "L", LikesCounter: 1})
    require.NoError(t, err)
    require.NoError(t, c.handle(TypeOpinionChanged, body))
    require.NoError(t, c.handle(TypeOpinionChanged, body))

    data, err := os.ReadFile(path)
    require.NoError(t, err)
    lines := 0
    for _, b := range data {
        if b == '\n' {
            lines++
        }
    }
    assert.Equal(t, 2, lines)
    assert.Contains(t, string(data), "opinion=L")
}
