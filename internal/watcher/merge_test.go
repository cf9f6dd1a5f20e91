package watcher

import (
	"fmt"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/changefeed/internal/errors"
)

func TestAdapter_TranslateErrors(t *testing.T) {
	errorAdapter := adapter{channel: ChannelError}

	tests := []struct {
		name string
		err  error
		want signalKind
	}{
		{"queue overflow", ErrQueueOverflow, signalOverflow},
		{"fsnotify overflow", fsnotify.ErrEventOverflow, signalOverflow},
		{"wrapped overflow", fmt.Errorf("read: %w", fsnotify.ErrEventOverflow), signalOverflow},
		{"coded overflow", errors.Overflow("kernel queue dropped events"), signalOverflow},
		{"wrapped coded overflow", fmt.Errorf("read: %w", ErrQueueOverflow), signalOverflow},
		{"closed watch", errors.Closed("watch is closed"), signalFault},
		{"fault caused by overflow", errors.TerminalFault(ErrQueueOverflow, "buffer exhausted"), signalFault},
		{"other fault", fmt.Errorf("permission denied"), signalFault},
		{"missing error", nil, signalFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := errorAdapter.translate(Native{Err: tt.err})
			assert.Equal(t, tt.want, s.kind)
			assert.Error(t, s.err)
		})
	}
}

func TestAdapter_TranslateRecords(t *testing.T) {
	tests := []struct {
		channel Channel
		kind    Kind
	}{
		{ChannelCreated, Created},
		{ChannelDeleted, Deleted},
		{ChannelChanged, Changed},
	}

	for _, tt := range tests {
		t.Run(tt.channel.String(), func(t *testing.T) {
			s := adapter{channel: tt.channel}.translate(Native{Name: "a.txt", FullPath: "/w/a.txt"})
			require.Equal(t, signalRecord, s.kind)
			assert.Equal(t, tt.kind, s.record.Kind())
			assert.Equal(t, "a.txt", s.record.Name())
		})
	}

	s := adapter{channel: ChannelRenamed}.translate(Native{
		Name: "b.txt", FullPath: "/w/b.txt", OldName: "a.txt", OldFullPath: "/w/a.txt",
	})
	require.Equal(t, signalRecord, s.kind)
	assert.Equal(t, Renamed, s.record.Kind())
	assert.Equal(t, "a.txt", s.record.OldName())
}

func TestAdapter_TranslateMalformed(t *testing.T) {
	s := adapter{channel: ChannelRenamed}.translate(Native{Name: "b.txt", FullPath: "/w/b.txt"})
	assert.Equal(t, signalMalformed, s.kind)
	assert.True(t, errors.Is(s.err, errors.ErrInvalidArgument))

	s = adapter{channel: ChannelCreated}.translate(Native{FullPath: "/w/b.txt"})
	assert.Equal(t, signalMalformed, s.kind)
}

func TestAdapter_ReleaseOnce(t *testing.T) {
	watch := newFakeWatch()
	q := newSignalQueue(4)

	release, err := adapter{channel: ChannelChanged}.open(watch, 7, q.push)
	require.NoError(t, err)

	watch.emit(ChannelChanged, Native{Name: "a.txt", FullPath: "/w/a.txt"})
	signals := drainQueue(q)
	require.Len(t, signals, 1)
	assert.Equal(t, uint64(7), signals[0].gen, "signals carry the subscription generation")

	require.NoError(t, release())
	require.NoError(t, release())

	subscribes, unsubscribes, stale := watch.counts()
	assert.Equal(t, 1, subscribes)
	assert.Equal(t, 1, unsubscribes)
	assert.Zero(t, stale, "a handle must never be released twice")

	watch.emit(ChannelChanged, Native{Name: "b.txt", FullPath: "/w/b.txt"})
	assert.Empty(t, drainQueue(q), "released adapters deliver nothing")
}

func TestMerge_RejectsEmptyMask(t *testing.T) {
	for _, mask := range []ChangeMask{0, 0x30} {
		watch := newFakeWatch()
		_, err := merge(watch, mask, 1, newSignalQueue(4))

		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
		assert.Zero(t, watch.callCount(), "native watch must not be touched")
	}
}

func TestMerge_SelectsMaskedChannels(t *testing.T) {
	watch := newFakeWatch()
	q := newSignalQueue(4)

	sub, err := merge(watch, MaskOf(Created, Deleted), 1, q)
	require.NoError(t, err)

	assert.True(t, watch.liveOn(ChannelError), "the error channel is always merged")
	assert.True(t, watch.liveOn(ChannelCreated))
	assert.True(t, watch.liveOn(ChannelDeleted))
	assert.False(t, watch.liveOn(ChannelChanged))
	assert.False(t, watch.liveOn(ChannelRenamed))

	require.NoError(t, sub.close())
	assert.Zero(t, watch.liveCount())
}

func TestMerge_PreservesArrivalOrder(t *testing.T) {
	watch := newFakeWatch()
	q := newSignalQueue(4)

	_, err := merge(watch, MaskAll, 3, q)
	require.NoError(t, err)

	watch.emit(ChannelCreated, Native{Name: "a", FullPath: "/w/a"})
	watch.emit(ChannelChanged, Native{Name: "a", FullPath: "/w/a"})
	watch.emit(ChannelError, Native{Err: ErrQueueOverflow})
	watch.emit(ChannelRenamed, Native{Name: "b", FullPath: "/w/b", OldName: "a", OldFullPath: "/w/a"})
	watch.emit(ChannelDeleted, Native{Name: "b", FullPath: "/w/b"})

	signals := drainQueue(q)
	require.Len(t, signals, 5)

	assert.Equal(t, Created, signals[0].record.Kind())
	assert.Equal(t, Changed, signals[1].record.Kind())
	assert.Equal(t, signalOverflow, signals[2].kind, "failures share the feed with records")
	assert.Equal(t, Renamed, signals[3].record.Kind())
	assert.Equal(t, Deleted, signals[4].record.Kind())
	for _, s := range signals {
		assert.Equal(t, uint64(3), s.gen)
	}
}

func TestMerge_ReleasesOnPartialFailure(t *testing.T) {
	watch := newFakeWatch()
	watch.subscribeErr[ChannelDeleted] = fmt.Errorf("no more handles")

	_, err := merge(watch, MaskOf(Created, Deleted, Changed), 1, newSignalQueue(4))
	require.Error(t, err)

	assert.Zero(t, watch.liveCount(), "handles opened before the failure must be released")
	assert.False(t, watch.subscribedEver(ChannelChanged), "nothing opens after the failure")
}
