package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personhood/internal/worldid/service"
)

func TestNewPostgresRunsOnPool(t *testing.T) {
	db := &sql.DB{}
	s := NewPostgres(db)
	assert.Same(t, db, s.exec)
}

func TestBoundStoreRefusesNestedTransaction(t *testing.T) {
	bound := newPostgresTx(&sql.Tx{})

	called := false
	err := bound.RunInTx(context.Background(), func(service.Store) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
