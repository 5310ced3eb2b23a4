package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	called := false
	r.Register("send_email", func(ctx context.Context, payload []byte) error {
		called = true
		return nil
	})

	h, err := r.Lookup("send_email")
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), nil))
	assert.True(t, called)
}

func TestLookupUnknownType(t *testing.T) {
	r := New()
	_, err := r.Lookup("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegisterReplaces(t *testing.T) {
	r := New()
	r.Register("job", func(ctx context.Context, payload []byte) error {
		return fmt.Errorf("old")
	})
	r.Register("job", func(ctx context.Context, payload []byte) error {
		return nil
	})

	h, err := r.Lookup("job")
	require.NoError(t, err)
	assert.NoError(t, h(context.Background(), nil))
}

func TestTypesSorted(t *testing.T) {
	r := New()
	noop := func(ctx context.Context, payload []byte) error { return nil }
	r.Register("zeta", noop)
	r.Register("alpha", noop)
	r.Register("mid", noop)

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Types())
}

func TestFatalErrorUnwraps(t *testing.T) {
	cause := fmt.Errorf("bad payload")
	err := Fatal(cause)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, cause, fatal.Cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bad payload", err.Error())
}
