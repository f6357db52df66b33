package trade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zillionare/backtesting/internal/common"
	"github.com/zillionare/backtesting/internal/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	days := marchDays()
	return NewRegistry(newMemFeed(days), NewCalendar(days), common.NewDefaultConfig(), common.NewSilentLogger())
}

func params(name, token string) AccountParams {
	start, _ := models.ParseDate("2022-03-01")
	end, _ := models.ParseDate("2022-03-31")
	return AccountParams{
		Name: name, Token: token, Principal: 1_000_000, Commission: 1e-4,
		Start: start, End: end,
	}
}

func TestRegistry_CreateAndLookup(t *testing.T) {
	r := newTestRegistry(t)

	acct, err := r.Create(params("alpha", "tok-1"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", acct.Name())

	got, err := r.Get("tok-1")
	require.NoError(t, err)
	assert.Same(t, acct, got)

	got, err = r.GetByName("alpha")
	require.NoError(t, err)
	assert.Same(t, acct, got)

	_, err = r.Get("no-such-token")
	te, ok := models.AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeNotFound, te.Code)
}

func TestRegistry_UniquenessOfNameAndToken(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Create(params("alpha", "tok-1"))
	require.NoError(t, err)

	_, err = r.Create(params("alpha", "tok-2"))
	te, _ := models.AsTradeError(err)
	assert.Equal(t, models.CodeAccountExists, te.Code)

	_, err = r.Create(params("beta", "tok-1"))
	te, _ = models.AsTradeError(err)
	assert.Equal(t, models.CodeAccountExists, te.Code)
}

func TestRegistry_CreateValidation(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Create(params("", "tok"))
	te, ok := models.AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, models.KindBadParameter, te.Kind)
	assert.Equal(t, models.CodeBadParam, te.Code)

	p := params("alpha", "tok")
	p.Principal = 0
	_, err = r.Create(p)
	te, ok = models.AsTradeError(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeBadParam, te.Code)

	p = params("alpha", "tok")
	p.Start, p.End = p.End.Add(24*time.Hour), p.Start
	_, err = r.Create(p)
	te, _ = models.AsTradeError(err)
	assert.Equal(t, models.CodeBadDatetime, te.Code)
}

func TestRegistry_DeleteAndDeleteAll(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Create(params("alpha", "tok-1"))
	require.NoError(t, err)
	_, err = r.Create(params("beta", "tok-2"))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, r.List())

	require.NoError(t, r.Delete("alpha"))
	_, err = r.Get("tok-1")
	require.Error(t, err)

	err = r.Delete("alpha")
	te, _ := models.AsTradeError(err)
	assert.Equal(t, models.CodeNotFound, te.Code)

	assert.Equal(t, 1, r.DeleteAll())
	assert.Empty(t, r.List())
}

func TestRegistry_AttachReplaces(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Create(params("alpha", "tok-1"))
	require.NoError(t, err)

	days := marchDays()
	restored := NewAccount(params("alpha", "tok-9"),
		newMemFeed(days), NewCalendar(days), common.NewDefaultConfig(), common.NewSilentLogger())
	r.Attach(restored)

	got, err := r.Get("tok-9")
	require.NoError(t, err)
	assert.Same(t, restored, got)

	_, err = r.Get("tok-1")
	assert.Error(t, err, "stale token should be evicted")
}
