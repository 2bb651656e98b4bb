package mirror_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/aqcollect/internal/history"
	"github.com/breatheroute/aqcollect/internal/mirror"
)

type recordingSink struct {
	name  string
	err   error
	calls int
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Replace(context.Context, *history.Dataset) error {
	s.calls++
	return s.err
}

func TestMulti_ReplaceAll(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	m := mirror.NewMulti(zerolog.Nop(), a, b)

	assert.NoError(t, m.Replace(context.Background(), &history.Dataset{}))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 2, m.Len())
}

func TestMulti_JoinsErrorsAndContinues(t *testing.T) {
	errA := errors.New("quota exceeded")
	errC := errors.New("connection refused")
	a := &recordingSink{name: "sheets", err: errA}
	b := &recordingSink{name: "ok"}
	c := &recordingSink{name: "postgres", err: errC}

	err := mirror.NewMulti(zerolog.Nop(), a, b, c).Replace(context.Background(), &history.Dataset{})

	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errC)
	assert.Contains(t, err.Error(), "sheets: quota exceeded")
	assert.Equal(t, 1, b.calls, "later sinks still attempted")
	assert.Equal(t, 1, c.calls)
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, mirror.NewMulti(zerolog.Nop()).Replace(context.Background(), nil))
}

func TestNop(t *testing.T) {
	var s mirror.Sink = mirror.Nop{}
	assert.Equal(t, "nop", s.Name())
	assert.NoError(t, s.Replace(context.Background(), nil))
}
