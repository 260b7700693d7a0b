package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/session"
)

func TestNewRegistry(t *testing.T) {
	sessions, err := session.NewRegistry(nil, zap.NewNop())
	require.NoError(t, err)

	r := NewRegistry(Options{Sessions: sessions})

	assert.Same(t, sessions, r.Sessions())
	assert.Nil(t, r.Executor())
	assert.Nil(t, r.Requirements())
	assert.Nil(t, r.System())
	assert.Nil(t, r.Generator())
	assert.Nil(t, r.Gate())
	assert.Nil(t, r.Advisor())
	assert.Nil(t, r.Client())
}
