package rulestore

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
)

// --- fakes ---

type fakeKV struct {
	data     map[string][]byte
	getErr   error
	putErr   error
	putCalls int
	closed   bool
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (f *fakeKV) Get(key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Put(key string, value []byte) error {
	f.putCalls++
	if f.putErr != nil {
		return f.putErr
	}
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeKV) Stats() StoreStats { return StoreStats{Keys: uint64(len(f.data))} }
func (f *fakeKV) Close() error      { f.closed = true; return nil }

type recLogger struct{ msgs []string }

func (l *recLogger) Info(_ map[string]any, msg string)  { l.msgs = append(l.msgs, msg) }
func (l *recLogger) Error(_ map[string]any, msg string) { l.msgs = append(l.msgs, msg) }
func (l *recLogger) Debug(_ map[string]any, msg string) {}
func (l *recLogger) Warn(_ map[string]any, msg string)  { l.msgs = append(l.msgs, msg) }
func (l *recLogger) Panic(_ map[string]any, msg string) {}
func (l *recLogger) Fatal(_ map[string]any, msg string) {}

func TestNew_DefaultKey(t *testing.T) {
	s := New(newFakeKV(), "", nil)
	assert.Equal(t, DefaultKey, s.Key())
	assert.Equal(t, "custom", New(newFakeKV(), "custom", log.NewNoopLogger()).Key())
}

func TestLoad_MissingEntryIsEmpty(t *testing.T) {
	s := New(newFakeKV(), "", log.NewNoopLogger())
	rules := s.Load()
	require.NotNil(t, rules)
	assert.Empty(t, rules)
}

func TestLoad_ReadErrorFailsOpen(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("disk on fire")
	lg := &recLogger{}
	s := New(kv, "", lg)

	assert.Empty(t, s.Load())
	assert.Contains(t, lg.msgs, "rule_store_read_failed")
}

func TestLoad_CorruptDataFailsOpen(t *testing.T) {
	kv := newFakeKV()
	kv.data[DefaultKey] = []byte("{not json")
	lg := &recLogger{}
	s := New(kv, "", lg)

	assert.Empty(t, s.Load())
	assert.Contains(t, lg.msgs, "rule_store_decode_failed")
}

func TestSaveLoad_RoundTripPreservesOrder(t *testing.T) {
	kv := newFakeKV()
	s := New(kv, "", log.NewNoopLogger())
	in := []domain.BlockRule{
		{ID: "b", URL: "https://b.example", IsBlocked: true},
		{ID: "a", URL: "https://a.example", IsBlocked: false},
		{ID: "c", URL: "https://c.example", IsBlocked: true},
	}
	require.NoError(t, s.Save(in))
	assert.Equal(t, in, s.Load())
}

func TestSave_WireFormat(t *testing.T) {
	kv := newFakeKV()
	s := New(kv, "", log.NewNoopLogger())
	require.NoError(t, s.Save([]domain.BlockRule{{ID: "x", URL: "https://example.com", IsBlocked: true}}))

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(kv.data[DefaultKey], &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "x", raw[0]["id"])
	assert.Equal(t, "https://example.com", raw[0]["url"])
	assert.Equal(t, true, raw[0]["isBlocked"])
}

func TestSave_NilWritesEmptyArray(t *testing.T) {
	kv := newFakeKV()
	s := New(kv, "", log.NewNoopLogger())
	require.NoError(t, s.Save(nil))
	assert.Equal(t, "[]", string(kv.data[DefaultKey]))
}

func TestSave_PutErrorIsReturned(t *testing.T) {
	kv := newFakeKV()
	kv.putErr = errors.New("read-only")
	s := New(kv, "", log.NewNoopLogger())
	err := s.Save([]domain.BlockRule{{ID: "x", URL: "https://example.com"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.putErr)
}

func TestLoad_DropsMissingAndDuplicateIDs(t *testing.T) {
	kv := newFakeKV()
	kv.data[DefaultKey] = []byte(`[
		{"id":"a","url":"https://a.example","isBlocked":true},
		{"id":"","url":"https://nobody.example","isBlocked":true},
		{"id":"a","url":"https://dup.example","isBlocked":true},
		{"id":"b","url":"not a url","isBlocked":true}
	]`)
	lg := &recLogger{}
	s := New(kv, "", lg)

	got := s.Load()
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.example", got[0].URL)
	assert.Equal(t, "b", got[1].ID, "invalid url rules are kept for display")
	assert.Contains(t, lg.msgs, "rule_store_skip_missing_id")
	assert.Contains(t, lg.msgs, "rule_store_skip_duplicate_id")
	assert.Contains(t, lg.msgs, "rule_store_invalid_url")
}

func TestLoad_IgnoresUnknownFields(t *testing.T) {
	kv := newFakeKV()
	kv.data[DefaultKey] = []byte(`[{"id":"a","url":"https://a.example","isBlocked":true,"color":"red"}]`)
	s := New(kv, "", log.NewNoopLogger())
	assert.Equal(t, []domain.BlockRule{{ID: "a", URL: "https://a.example", IsBlocked: true}}, s.Load())
}

func TestStatsAndClose(t *testing.T) {
	kv := newFakeKV()
	s := New(kv, "", log.NewNoopLogger())
	require.NoError(t, s.Save(nil))
	assert.Equal(t, uint64(1), s.Stats().Keys)
	require.NoError(t, s.Close())
	assert.True(t, kv.closed)
}
