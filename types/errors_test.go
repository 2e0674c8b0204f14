package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrNetworkNotFound, nil, "network %s not found", "net-1")
	assert.Equal(t, "code: NetworkNotFound, msg: network net-1 not found", err.Error())

	cause := errors.New("bolt: database not open")
	err = NewError(ErrInternalError, cause, "put binding")
	assert.Equal(t, "code: InternalError, msg: put binding, bolt: database not open", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("delete network: %w", NewError(ErrNetworkNotFound, nil, "missing"))

	assert.True(t, IsCode(err, ErrNetworkNotFound))
	assert.False(t, IsCode(err, ErrBindingNotFound))
	assert.False(t, IsCode(errors.New("plain"), ErrNetworkNotFound))
	assert.False(t, IsCode(nil, ErrNetworkNotFound))
}
