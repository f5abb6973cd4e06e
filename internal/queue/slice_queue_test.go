package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type cmdItem struct {
	text string
}

func TestSliceQueue(t *testing.T) {
	assert := assert.New(t)

	t.Run("Empty Queue", func(t *testing.T) {
		q := NewSliceQueue[*cmdItem](1)

		assert.True(q.IsEmpty())
		assert.Equal(0, q.Length())

		item, ok := q.Dequeue()
		assert.False(ok)
		assert.Nil(item)

		item, ok = q.Peek()
		assert.False(ok)
		assert.Nil(item)
	})

	t.Run("Enqueue and Dequeue", func(t *testing.T) {
		q := NewSliceQueue[*cmdItem](1)

		item1 := &cmdItem{"G0 X1"}
		q.Enqueue(item1)
		assert.False(q.IsEmpty())
		assert.Equal(1, q.Length())

		item2 := &cmdItem{"G0 X2"}
		q.Enqueue(item2)
		assert.Equal(2, q.Length())

		got, ok := q.Dequeue()
		assert.True(ok)
		assert.Same(item1, got)
		assert.Equal(1, q.Length())

		got, ok = q.Dequeue()
		assert.True(ok)
		assert.Same(item2, got)
		assert.True(q.IsEmpty())

		_, ok = q.Dequeue()
		assert.False(ok)
	})

	t.Run("Peek", func(t *testing.T) {
		q := NewSliceQueue[*cmdItem](1)

		item1 := &cmdItem{"G0 X1"}
		item2 := &cmdItem{"G0 X2"}
		q.Enqueue(item1)

		got, ok := q.Peek()
		assert.True(ok)
		assert.Same(item1, got)
		assert.Equal(1, q.Length()) // Length should not change after peek

		q.Enqueue(item2)

		got, _ = q.Peek()
		assert.Same(item1, got)
	})

	t.Run("Drain and Items", func(t *testing.T) {
		q := NewSliceQueue[int](4)
		for i := 1; i <= 5; i++ {
			q.Enqueue(i)
		}

		_, _ = q.Dequeue()
		assert.Equal([]int{2, 3, 4, 5}, q.Items())
		assert.Equal(4, q.Length())

		assert.Equal([]int{2, 3, 4, 5}, q.Drain())
		assert.True(q.IsEmpty())
		assert.Empty(q.Items())
	})

	t.Run("FIFO order survives compaction", func(t *testing.T) {
		q := NewSliceQueue[int](2)
		next := 0
		for i := 0; i < 1000; i++ {
			q.Enqueue(i)
			if i%3 == 0 {
				v, ok := q.Dequeue()
				assert.True(ok)
				assert.Equal(next, v)
				next++
			}
		}

		for !q.IsEmpty() {
			v, _ := q.Dequeue()
			assert.Equal(next, v)
			next++
		}
		assert.Equal(1000, next)
	})

	t.Run("Reset", func(t *testing.T) {
		q := NewSliceQueue[string](2)
		q.Enqueue("a")
		q.Enqueue("b")
		q.Reset()

		assert.True(q.IsEmpty())
		q.Enqueue("c")

		v, ok := q.Peek()
		assert.True(ok)
		assert.Equal("c", v)
	})
}
