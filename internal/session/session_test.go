package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkAndForget(t *testing.T) {
	s := New(func(string) error { return nil })

	assert.False(t, s.IsBaseDecrypted("e1"))
	assert.False(t, s.IsTagDecrypted("e1"))

	s.MarkBaseDecrypted("e1")
	s.MarkTagDecrypted("e2")

	assert.True(t, s.IsBaseDecrypted("e1"))
	assert.False(t, s.IsTagDecrypted("e1"))
	assert.True(t, s.IsTagDecrypted("e2"))
	assert.False(t, s.IsBaseDecrypted("e2"))

	s.ForgetBase("e1")
	s.ForgetTag("e2")

	assert.False(t, s.IsBaseDecrypted("e1"))
	assert.False(t, s.IsTagDecrypted("e2"))
}

func TestTempPaths(t *testing.T) {
	s := New(func(string) error { return nil })

	_, ok := s.TempPath("enc/a.encrypted")
	assert.False(t, ok)

	s.SetTempPath("enc/a.encrypted", "tmp/a.m4a")

	got, ok := s.TempPath("enc/a.encrypted")
	assert.True(t, ok)
	assert.Equal(t, "tmp/a.m4a", got)

	s.DropTempPath("enc/a.encrypted")
	_, ok = s.TempPath("enc/a.encrypted")
	assert.False(t, ok)
}

func TestDropTempPathRemovesFile(t *testing.T) {
	var removed []string
	s := New(func(path string) error {
		removed = append(removed, path)
		return nil
	})

	s.SetTempPath("enc/a.encrypted", "tmp/a.m4a")
	s.DropTempPath("enc/a.encrypted")

	assert.Equal(t, []string{"tmp/a.m4a"}, removed)
}

func TestClearAll(t *testing.T) {
	var mu sync.Mutex
	var removed []string
	s := New(func(path string) error {
		mu.Lock()
		defer mu.Unlock()
		removed = append(removed, path)
		return nil
	})

	s.MarkBaseDecrypted("e1")
	s.MarkTagDecrypted("e1")
	s.MarkTagDecrypted("e2")
	s.SetTempPath("enc/a.encrypted", "tmp/a.m4a")
	s.SetTempPath("enc/b.baseenc", "tmp/b.m4a")

	s.ClearAll()

	assert.False(t, s.IsBaseDecrypted("e1"))
	assert.False(t, s.IsTagDecrypted("e1"))
	assert.False(t, s.IsTagDecrypted("e2"))
	_, ok := s.TempPath("enc/a.encrypted")
	assert.False(t, ok)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"tmp/a.m4a", "tmp/b.m4a"}, removed)
}

func TestConcurrentAccess(t *testing.T) {
	s := New(func(string) error { return nil })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.MarkTagDecrypted("e1")
			s.IsTagDecrypted("e1")
		}()
		go func() {
			defer wg.Done()
			s.MarkBaseDecrypted("e1")
			s.ForgetBase("e1")
		}()
	}
	wg.Wait()
}
