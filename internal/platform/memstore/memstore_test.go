package memstore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	ID   string
	Name string
}

func newEntries() *Collection[*entry] {
	return New(func(e *entry) string { return e.ID })
}

func TestCollection_CRUD(t *testing.T) {
	c := newEntries()

	require.NoError(t, c.Insert(&entry{ID: "a", Name: "one"}))
	require.NoError(t, c.Insert(&entry{ID: "b", Name: "two"}))
	assert.ErrorIs(t, c.Insert(&entry{ID: "a"}), ErrExists)

	got, err := c.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Name)

	require.NoError(t, c.Replace(&entry{ID: "a", Name: "uno"}))
	assert.Equal(t, "uno", c.All()[0].Name, "replace keeps position")
	assert.ErrorIs(t, c.Replace(&entry{ID: "zz"}), ErrNotFound)

	removed, err := c.Remove("a")
	require.NoError(t, err)
	assert.Equal(t, "uno", removed.Name)
	_, err = c.Remove("a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, c.Len())
}

func TestCollection_SnapshotIsStable(t *testing.T) {
	c := newEntries()
	require.NoError(t, c.Insert(&entry{ID: "a"}))

	snap := c.All()
	require.NoError(t, c.Insert(&entry{ID: "b"}))
	_, err := c.Remove("a")
	require.NoError(t, err)

	assert.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].ID)
	assert.Len(t, c.All(), 1)
	assert.Equal(t, "b", c.All()[0].ID)
}

func TestCollection_ConcurrentInsert(t *testing.T) {
	c := newEntries()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Insert(&entry{ID: fmt.Sprintf("e%d", i)})
			_ = c.All()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}

func TestCollection_Filter(t *testing.T) {
	c := newEntries()
	for _, id := range []string{"a1", "b1", "a2"} {
		require.NoError(t, c.Insert(&entry{ID: id}))
	}
	got := c.Filter(func(e *entry) bool { return e.ID[0] == 'a' })
	assert.Len(t, got, 2)
}

func TestCollection_Update(t *testing.T) {
	c := newEntries()
	require.NoError(t, c.Insert(&entry{ID: "a", Name: "one"}))
	before := c.All()

	got, err := c.Update("a", func(e *entry) (*entry, error) {
		return &entry{ID: e.ID, Name: e.Name + "!"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "one!", got.Name)
	assert.Equal(t, "one", before[0].Name, "old snapshot untouched")

	_, err = c.Update("a", func(e *entry) (*entry, error) {
		return nil, fmt.Errorf("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, "one!", c.All()[0].Name)

	_, err = c.Update("a", func(e *entry) (*entry, error) {
		return &entry{ID: "other"}, nil
	})
	assert.Error(t, err)

	_, err = c.Update("missing", func(e *entry) (*entry, error) { return e, nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollection_ConcurrentUpdate(t *testing.T) {
	c := New(func(e entry) string { return e.ID })
	require.NoError(t, c.Insert(entry{ID: "n", Name: ""}))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Update("n", func(e entry) (entry, error) {
				e.Name += "x"
				return e, nil
			})
		}()
	}
	wg.Wait()
	got, _ := c.Get("n")
	assert.Len(t, got.Name, 100)
}
