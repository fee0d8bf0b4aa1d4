package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := NotFound("Content not found")
	wrapped := fmt.Errorf("resolve content: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, "Content not found", Message(wrapped))
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindNotFound}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindProvider}))
}

func TestKindOf_Unclassified(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "boom", Message(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindProvider, "twitter request failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "twitter request failed: dial tcp: refused", err.Error())
	assert.Equal(t, "twitter request failed", Message(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindConfig:       http.StatusInternalServerError,
		KindNotFound:     http.StatusNotFound,
		KindUnsupported:  http.StatusUnprocessableEntity,
		KindProvider:     http.StatusBadGateway,
		KindUnauthorized: http.StatusUnauthorized,
		KindValidation:   http.StatusBadRequest,
		KindConflict:     http.StatusConflict,
	}
	for kind, want := range cases {
		assert.Equalf(t, want, HTTPStatus(New(kind, "x")), "kind %s", kind)
	}
}
