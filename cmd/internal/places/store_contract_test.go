package places

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises behavior every Store must share.
// creator must reference an existing user for stores that enforce it.
func runStoreContract(t *testing.T, newStore func(t *testing.T) (Store, string)) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		s, creator := newStore(t)

		p, err := s.Create(ctx, CreateInput{Name: "  Old Mill ", Info: "by the river", CreatedBy: creator, Now: base})
		require.NoError(t, err)
		assert.Len(t, p.ID, 26)
		assert.Equal(t, "Old Mill", p.Name)
		assert.Equal(t, creator, p.CreatedBy)
		assert.True(t, p.CreatedAt.Equal(base))

		got, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, "by the river", got.Info)
	})

	t.Run("get missing", func(t *testing.T) {
		s, _ := newStore(t)
		_, err := s.Get(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("invalid input", func(t *testing.T) {
		s, creator := newStore(t)
		_, err := s.Create(ctx, CreateInput{Name: "  ", CreatedBy: creator})
		var fe FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "name", fe.Field)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("offset and limit are independent", func(t *testing.T) {
		s, creator := newStore(t)
		for i := 0; i < 5; i++ {
			_, err := s.Create(ctx, CreateInput{
				Name:      fmt.Sprintf("place-%d", i),
				CreatedBy: creator,
				Now:       base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		names := func(ps []Place) []string {
			out := make([]string, 0, len(ps))
			for _, p := range ps {
				out = append(out, p.Name)
			}
			return out
		}

		all, err := s.List(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"place-0", "place-1", "place-2", "place-3", "place-4"}, names(all))

		page, err := s.List(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"place-1", "place-2"}, names(page))

		tail, err := s.List(ctx, 3, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"place-3", "place-4"}, names(tail))

		empty, err := s.List(ctx, 10, 10)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})
}
