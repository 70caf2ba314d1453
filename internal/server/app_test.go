package server

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/server/auth"
	"github.com/dmitrijs2005/shiftsync/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueToken(t *testing.T) {
	c := &config.Config{SecretKey: "k", AccessTokenValidityDuration: time.Hour}

	tok, err := IssueToken(c, "site-7")
	require.NoError(t, err)

	user, err := auth.GetUserIDFromToken(tok, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "site-7", user)

	_, err = IssueToken(c, "")
	require.Error(t, err)
}
