package watcher

import (
	"fmt"
	"sync"
)

// signalKind tags what travels through the merged queue.
type signalKind uint8

const (
	signalRecord signalKind = iota
	signalOverflow
	signalFault
	signalMalformed
)

// signal is one entry in the merged queue. gen is the subscription
// generation that produced it.
type signal struct {
	kind   signalKind
	gen    uint64
	record Record
	err    error
}

// adapter translates one native channel into signals.
type adapter struct {
	channel Channel
}

// adapterFor returns the adapter of the channel carrying kind.
func adapterFor(kind Kind) adapter {
	switch kind {
	case Created:
		return adapter{channel: ChannelCreated}
	case Deleted:
		return adapter{channel: ChannelDeleted}
	case Changed:
		return adapter{channel: ChannelChanged}
	default:
		return adapter{channel: ChannelRenamed}
	}
}

// translate turns a native payload into a signal.
func (a adapter) translate(n Native) signal {
	var (
		rec Record
		err error
	)
	switch a.channel {
	case ChannelError:
		if isOverflow(n.Err) {
			return signal{kind: signalOverflow, err: n.Err}
		}
		if n.Err == nil {
			n.Err = fmt.Errorf("native watch reported an unspecified error")
		}
		return signal{kind: signalFault, err: n.Err}
	case ChannelCreated:
		rec, err = NewChange(Created, n.Name, n.FullPath)
	case ChannelDeleted:
		rec, err = NewChange(Deleted, n.Name, n.FullPath)
	case ChannelChanged:
		rec, err = NewChange(Changed, n.Name, n.FullPath)
	case ChannelRenamed:
		rec, err = NewRename(n.OldName, n.OldFullPath, n.Name, n.FullPath)
	default:
		err = fmt.Errorf("unknown channel %d", uint8(a.channel))
	}
	if err != nil {
		return signal{kind: signalMalformed, err: fmt.Errorf("%s notification: %w", a.channel, err)}
	}
	return signal{kind: signalRecord, record: rec}
}

// open subscribes to the adapter's channel. Every translated signal is
// tagged with gen and passed to emit. The returned release func
// unsubscribes exactly once, however many times it is called.
func (a adapter) open(w NativeWatch, gen uint64, emit func(signal)) (func() error, error) {
	token, err := w.Subscribe(a.channel, func(n Native) {
		s := a.translate(n)
		s.gen = gen
		emit(s)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s channel: %w", a.channel, err)
	}

	var once sync.Once
	var releaseErr error
	return func() error {
		once.Do(func() {
			releaseErr = w.Unsubscribe(token)
		})
		return releaseErr
	}, nil
}
